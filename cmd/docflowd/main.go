package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docflow/internal/app"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/export"
	"github.com/joseph-ayodele/docflow/internal/repository"
	"github.com/joseph-ayodele/docflow/internal/server"
	"github.com/joseph-ayodele/docflow/web"
)

const healthInterval = 15 * time.Second

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("docflowd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	stores, err := app.OpenStores(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer stores.Close(logger)

	// Ping DB to ensure connectivity
	for _, db := range []*repository.DB{stores.StagingDB, stores.VerifiedDB} {
		if err := repository.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
			return err
		}
	}

	proc, closeLLM, err := app.NewProcessor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLLM()

	pingers := map[string]server.Pinger{
		"staging": func(ctx context.Context) error {
			return repository.HealthCheck(ctx, stores.StagingDB, 0, logger)
		},
		"verified": func(ctx context.Context) error {
			return repository.HealthCheck(ctx, stores.VerifiedDB, 0, logger)
		},
	}

	srv := server.New(server.Config{
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, server.Deps{
		Processor: proc,
		Staging:   stores.Staging,
		Verified:  stores.Verified,
		Exporter:  export.NewService(logger),
		Pingers:   pingers,
		UI:        web.Files,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("docflowd listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Server.GRPCAddr != "" {
		hs := server.NewHealthServer(pingers, logger)
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
			return hs.GRPC.Serve(lis)
		})
		g.Go(func() error {
			hs.Watch(gctx, healthInterval)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.GRPC.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}
