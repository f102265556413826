package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crossmod/internal/core/app"
)

// ObservabilityServer exposes Prometheus metrics, the health check and the
// latest cycle report of every project while watch mode runs.
type ObservabilityServer struct {
	addr          string
	healthService *app.HealthService
	workspace     *app.Workspace
	server        *http.Server
}

func NewObservabilityServer(addr string, ws *app.Workspace, healthService *app.HealthService) *ObservabilityServer {
	return &ObservabilityServer{
		addr:          addr,
		healthService: healthService,
		workspace:     ws,
	}
}

// Handler returns the server routes.
func (s *ObservabilityServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := s.healthService.Check(r.Context())
		code := http.StatusOK
		if status.Status != "up" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})

	mux.HandleFunc("/cycles", func(w http.ResponseWriter, r *http.Request) {
		reports := make([]app.CycleReport, 0)
		if s.workspace != nil {
			for _, name := range s.workspace.Projects() {
				session, ok := s.workspace.Session(name)
				if !ok {
					continue
				}
				if last := session.LastReport(); last.Project != "" {
					reports = append(reports, last)
				}
			}
		}
		writeJSON(w, http.StatusOK, reports)
	})

	return mux
}

func (s *ObservabilityServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	slog.Info("observability server starting", "addr", listener.Addr().String())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server failed", "error", err)
		}
	}()

	return nil
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
