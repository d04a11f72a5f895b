// Package core provides the HTTP chassis for the billing service: the chi
// router, the global middleware chain, the JSON envelope and health checks.
// It is served directly by cmd/api and adapted to API Gateway events by
// cmd/webhook-lambda.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cashier/internal/config"
)

// MetricsCollector records per-request telemetry.
type MetricsCollector interface {
	RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration)
}

// Server holds every dependency of the HTTP surface so tests can swap them.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. main.go fills them
	// so core never imports handler packages.
	V1RouteRegistrars []func(chi.Router)

	// WebhookGate runs in front of WebhookHandler; it is the signature check.
	// A nil gate is refused by MountRoutes.
	WebhookGate    func(http.Handler) http.Handler
	WebhookHandler http.Handler

	// OnShutdown runs in order during Shutdown (pool close, flushes).
	OnShutdown []func(context.Context) error

	router *chi.Mux
}

// NewServer validates the critical dependencies and returns a Server ready
// for MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs the OnShutdown hooks and returns every error they produced.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, hook := range s.OnShutdown {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
