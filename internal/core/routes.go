package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"cashier/internal/types"
)

const (
	defaultRequestTimeout = 29 * time.Second
	defaultWebhookPath    = "/paddle/webhook"
)

// defaultRedactedHeaders are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Admin-Key",
	"Paddle-Signature",
}

// ErrWebhookGateMissing is returned by MountRoutes when a webhook handler is
// configured without a signature gate.
var ErrWebhookGateMissing = errors.New("webhook handler configured without a signature gate")

// MountRoutes registers the middleware chain and every route.
//
// Middleware order:
//  1. Recoverer        outermost so every panic is caught
//  2. ContextTimeout
//  3. RequestID
//  4. SecurityHeaders
//  5. RequestLogger    headers redacted
//  6. CORS
//  7. Metrics
func (s *Server) MountRoutes() error {
	if s.WebhookHandler != nil && s.WebhookGate == nil {
		return ErrWebhookGateMissing
	}

	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, s.redactedHeaders()))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/version", s.HandleVersion)

	if s.WebhookHandler != nil {
		s.router.With(s.WebhookGate).Post(s.webhookPath(), s.WebhookHandler.ServeHTTP)
	}

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	return nil
}

// HandleVersion reports the build metadata.
func (s *Server) HandleVersion(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: s.Config.Build})
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) webhookPath() string {
	if s.Config != nil && s.Config.Server.WebhookPath != "" {
		return s.Config.Server.WebhookPath
	}
	return defaultWebhookPath
}

// redactedHeaders adds a custom signature header name to the default set.
func (s *Server) redactedHeaders() []string {
	headers := append([]string(nil), defaultRedactedHeaders...)
	if s.Config != nil && s.Config.Paddle.SignatureHeader != "" {
		headers = append(headers, s.Config.Paddle.SignatureHeader)
	}
	return headers
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// ContextTimeoutMiddleware bounds the request context. Set it below the
// Lambda timeout so handlers can still write a response.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses an inbound X-Request-Id or generates one, stores
// it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fallback-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}
