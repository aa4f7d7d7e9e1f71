package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyFunc reports whether the process can take work.
type ReadyFunc func(ctx context.Context) error

// ObservabilityServer serves /metrics, /health and /ready over HTTP.
type ObservabilityServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewObservabilityHandler builds the HTTP mux.
func NewObservabilityHandler(gatherer prometheus.Gatherer, ready ReadyFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func NewObservabilityServer(addr string, handler http.Handler, logger *slog.Logger) *ObservabilityServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObservabilityServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving until Shutdown.
func (o *ObservabilityServer) Start() error {
	o.logger.Info("observability server listening", "addr", o.server.Addr,
		"metrics", fmt.Sprintf("http://%s/metrics", o.server.Addr))
	if err := o.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("observability server failed: %w", err)
	}
	return nil
}

func (o *ObservabilityServer) Shutdown(ctx context.Context) error {
	o.logger.Info("shutting down observability server")
	return o.server.Shutdown(ctx)
}
