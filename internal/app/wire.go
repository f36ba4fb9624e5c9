// Package app builds the collaborators shared by the daemon and the CLI from a loaded config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/llm"
	"github.com/joseph-ayodele/docflow/internal/llm/openai"
	"github.com/joseph-ayodele/docflow/internal/llm/vertex"
	"github.com/joseph-ayodele/docflow/internal/ocr"
	"github.com/joseph-ayodele/docflow/internal/pipeline"
	"github.com/joseph-ayodele/docflow/internal/raster"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

const (
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
)

// Stores holds both document stores and their connections.
type Stores struct {
	StagingDB  *repository.DB
	VerifiedDB *repository.DB
	Staging    *repository.DocumentTable
	Verified   *repository.DocumentTable
}

// Close closes both connections.
func (s *Stores) Close(logger *slog.Logger) {
	repository.Close(s.StagingDB, logger)
	repository.Close(s.VerifiedDB, logger)
}

func dbConfig(cfg common.DatabaseConfig, name, dsn string) repository.Config {
	return repository.Config{
		Driver:           cfg.Driver,
		DSN:              dsn,
		Name:             name,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}
}

// OpenStores connects to the staging and verified stores.
func OpenStores(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*Stores, error) {
	staging, err := repository.Open(ctx, dbConfig(cfg, "staging", cfg.StagingDSN), logger)
	if err != nil {
		return nil, fmt.Errorf("open staging store: %w", err)
	}
	verified, err := repository.Open(ctx, dbConfig(cfg, "verified", cfg.VerifiedDSN), logger)
	if err != nil {
		repository.Close(staging, logger)
		return nil, fmt.Errorf("open verified store: %w", err)
	}
	return &Stores{
		StagingDB:  staging,
		VerifiedDB: verified,
		Staging:    repository.NewDocumentTable(staging, cfg.StagingTable, logger),
		Verified:   repository.NewDocumentTable(verified, cfg.VerifiedTable, logger),
	}, nil
}

// NewOCR returns the Read API client.
func NewOCR(cfg common.OCRConfig, logger *slog.Logger) *ocr.Client {
	return ocr.NewClient(ocr.Config{
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.APIKey,
		Language: cfg.Language,
		Timeout:  cfg.Timeout,
	}, logger)
}

// NewRasterizer returns the configured PDF backend.
func NewRasterizer(cfg common.PDFConfig, logger *slog.Logger) (*raster.PDFRasterizer, error) {
	return raster.New(raster.Config{
		Backend:  cfg.Rasterizer,
		Pdftoppm: cfg.Pdftoppm,
		DPI:      cfg.DPI,
		MaxPages: cfg.MaxPages,
	}, logger)
}

// NewCompleter returns the chat provider named by cfg.Provider. The close func is never nil.
func NewCompleter(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Completer, func(), error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger), func() {}, nil
	case ProviderVertex:
		c, err := vertex.NewClient(ctx, vertex.Config{
			ProjectID:   cfg.VertexProject,
			Region:      cfg.VertexRegion,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   int32(cfg.MaxTokens),
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {
			if err := c.Close(); err != nil {
				logger.Warn("vertex.close_failed", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewProcessor wires OCR, rasterization and structuring into a pipeline.Processor.
func NewProcessor(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*pipeline.Processor, func(), error) {
	rast, err := NewRasterizer(cfg.PDF, logger)
	if err != nil {
		return nil, nil, err
	}
	completer, closeFn, err := NewCompleter(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.NewProcessor(logger, NewOCR(cfg.OCR, logger), rast, llm.NewClient(completer, logger)), closeFn, nil
}
