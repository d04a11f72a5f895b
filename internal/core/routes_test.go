package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"cashier/internal/config"
	"cashier/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordedRequest struct {
	method, endpoint, status string
}

type fakeMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (m *fakeMetrics) RecordRequest(_ context.Context, method, endpoint, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method, endpoint, status})
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Server:      config.ServerConfig{WebhookPath: "/paddle/webhook"},
		Paddle:      config.PaddleConfig{SignatureHeader: "Paddle-Signature"},
		Security:    config.SecurityConfig{CorsAllowedOrigins: []string{"*"}},
		Build:       config.BuildInfo{Version: "1.2.3", Commit: "abc123"},
	}
}

// rejectAll stands in for the signature gate.
func rejectAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.ErrAccessDenied())
	})
}

func passThrough(next http.Handler) http.Handler { return next }

func newTestServer(t *testing.T, configure func(*Server)) *Server {
	t.Helper()

	srv, err := NewServer(testConfig(), discardLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	srv.Metrics = &fakeMetrics{}
	if configure != nil {
		configure(srv)
	}
	if err := srv.MountRoutes(); err != nil {
		t.Fatalf("MountRoutes failed: %v", err)
	}
	return srv
}

func TestMountRoutes_MiddlewareCount(t *testing.T) {
	srv := newTestServer(t, nil)

	if got := len(srv.Router().Middlewares()); got != 7 {
		t.Errorf("expected 7 middleware, got %d", got)
	}
}

func TestMountRoutes_Health(t *testing.T) {
	srv := newTestServer(t, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestMountRoutes_Version(t *testing.T) {
	srv := newTestServer(t, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	var body struct {
		Data config.BuildInfo `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Version != "1.2.3" {
		t.Errorf("version = %q", body.Data.Version)
	}
}

func TestMountRoutes_WebhookBehindGate(t *testing.T) {
	called := false
	srv := newTestServer(t, func(s *Server) {
		s.WebhookGate = rejectAll
		s.WebhookHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})
	})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/paddle/webhook", strings.NewReader("{}")))

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if called {
		t.Error("webhook handler must not run when the gate rejects")
	}
}

func TestMountRoutes_WebhookCustomPath(t *testing.T) {
	srv, err := NewServer(testConfig(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	srv.Config.Server.WebhookPath = "/hooks/paddle"
	srv.WebhookGate = passThrough
	srv.WebhookHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := srv.MountRoutes(); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/hooks/paddle", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 on custom path, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/paddle/webhook", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on default path, got %d", w.Code)
	}
}

func TestMountRoutes_WebhookWithoutGateRefused(t *testing.T) {
	srv, err := NewServer(testConfig(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	srv.WebhookHandler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	if err := srv.MountRoutes(); !errors.Is(err, ErrWebhookGateMissing) {
		t.Fatalf("expected ErrWebhookGateMissing, got %v", err)
	}
}

func TestMountRoutes_V1Registrars(t *testing.T) {
	srv := newTestServer(t, func(s *Server) {
		s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
				JSON(w, r, http.StatusOK, APIResponse{Data: "pong"})
			})
		})
	})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	metrics := srv.Metrics.(*fakeMetrics)
	if len(metrics.requests) != 1 || metrics.requests[0].endpoint != "/v1/ping" {
		t.Errorf("unexpected metrics: %+v", metrics.requests)
	}
}

func TestRequestIDMiddleware_PropagatesInbound(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen != "req-123" || w.Header().Get("X-Request-Id") != "req-123" {
		t.Errorf("request id not propagated: ctx=%q header=%q", seen, w.Header().Get("X-Request-Id"))
	}
}

func TestRequestIDMiddleware_Generates(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := w.Header().Get("X-Request-Id"); len(got) != 32 {
		t.Errorf("expected 32 hex chars, got %q", got)
	}
}

func TestContextTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := ContextTimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !ok || time.Until(deadline) > time.Second {
		t.Errorf("expected a deadline within 1s, got %v (set=%v)", deadline, ok)
	}
}

func TestServer_Shutdown(t *testing.T) {
	srv, err := NewServer(testConfig(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	boom := errors.New("pool close failed")
	srv.OnShutdown = []func(context.Context) error{
		func(context.Context) error { order = append(order, "first"); return boom },
		func(context.Context) error { order = append(order, "second"); return nil },
	}

	err = srv.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(order) != 2 {
		t.Errorf("every hook must run, got %v", order)
	}
}

func TestNewServer_RequiresDeps(t *testing.T) {
	if _, err := NewServer(nil, discardLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(testConfig(), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}
