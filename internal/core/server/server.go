package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/config"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/health"
	middleware "github.com/mohammed-shakir/kg-feature-bridge/internal/core/middleware"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/router"
)

// Provider is what the HTTP surface needs from the bridge.
type Provider interface {
	router.DataProvider
	health.ReadinessReporter
	Services() []string
}

// NewHandler builds the route tree: the feature-service endpoints under the
// configured prefix plus the probes and metrics.
func NewHandler(cfg config.Config, logger *slog.Logger, p Provider) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(p))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	pre := cfg.RoutePrefix
	r.Get(pre+"/rest/info", restInfo(p))
	for _, route := range []string{
		"/{service}/FeatureServer",
		"/{service}/FeatureServer/{layer}",
		"/{service}/FeatureServer/{layer}/{method}",
	} {
		r.Get(pre+route, router.HandleRequest(logger, route, p))
	}
	return r
}

func restInfo(p Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"services": p.Services()})
	}
}

// Run serves until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, p Provider) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, p),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr, "prefix", cfg.RoutePrefix)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
