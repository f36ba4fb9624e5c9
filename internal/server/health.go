package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const pingTimeout = 3 * time.Second

type healthBody struct {
	Status string            `json:"status"`
	Stores map[string]string `json:"stores,omitempty"`
}

// checkStores pings every store and returns the failures by name.
func checkStores(ctx context.Context, pingers map[string]Pinger) map[string]string {
	failed := map[string]string{}
	names := make([]string, 0, len(pingers))
	for name := range pingers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := pingers[name](pctx)
		cancel()
		if err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	failed := checkStores(r.Context(), s.deps.Pingers)
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, healthBody{Status: "unavailable", Stores: failed}, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, healthBody{Status: "ok"}, s.logger)
}

// HealthServer exposes grpc.health.v1 and keeps the overall status in step with the stores.
type HealthServer struct {
	GRPC    *grpc.Server
	health  *health.Server
	pingers map[string]Pinger
	logger  *slog.Logger
}

func NewHealthServer(pingers map[string]Pinger, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	// Set the service as serving (empty string means overall server health)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	return &HealthServer{GRPC: gs, health: hs, pingers: pingers, logger: logger}
}

// Refresh pings the stores once and updates the serving status.
func (h *HealthServer) Refresh(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if failed := checkStores(ctx, h.pingers); len(failed) > 0 {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("health.stores.unavailable", "stores", failed)
	}
	h.health.SetServingStatus("", status)
	return status
}

// Watch refreshes the status every interval until ctx is done, then marks the server as shutting down.
func (h *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}
