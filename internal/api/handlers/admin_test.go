package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cashier/internal/billing"
	"cashier/internal/core"
	"cashier/internal/external"
	"cashier/internal/types"
)

type fakeSyncer struct {
	calls []string
	res   *billing.SyncResult
	err   error
}

func (s *fakeSyncer) SyncCustomer(_ context.Context, id string) (*billing.SyncResult, error) {
	s.calls = append(s.calls, id)
	return s.res, s.err
}

// subscriptionCall is one SubscriptionManager invocation.
type subscriptionCall struct {
	action        string
	id            string
	effectiveFrom string
}

type fakeSubscriptions struct {
	calls []subscriptionCall
	sub   *types.Subscription
	err   error
}

func (f *fakeSubscriptions) CancelSubscription(_ context.Context, id, effectiveFrom string) (*types.Subscription, error) {
	f.calls = append(f.calls, subscriptionCall{"cancel", id, effectiveFrom})
	return f.sub, f.err
}

func (f *fakeSubscriptions) PauseSubscription(_ context.Context, id, effectiveFrom string) (*types.Subscription, error) {
	f.calls = append(f.calls, subscriptionCall{"pause", id, effectiveFrom})
	return f.sub, f.err
}

func (f *fakeSubscriptions) ResumeSubscription(_ context.Context, id string) (*types.Subscription, error) {
	f.calls = append(f.calls, subscriptionCall{"resume", id, ""})
	return f.sub, f.err
}

type fakeEvents map[string]*types.WebhookEvent

func (f fakeEvents) Get(_ context.Context, eventID string) (*types.WebhookEvent, error) {
	if ev, ok := f[eventID]; ok {
		return ev, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundEvent, "webhook event not found", nil)
}

func newAdminRouter(t *testing.T, syncer CustomerSyncer, key string) http.Handler {
	t.Helper()
	return newAdminRouterWith(t, AdminDeps{Syncer: syncer}, key)
}

func newAdminRouterWith(t *testing.T, deps AdminDeps, key string) http.Handler {
	t.Helper()
	var hash types.SecretString
	if key != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
		require.NoError(t, err)
		hash = types.SecretString(h)
	}

	r := chi.NewRouter()
	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(AdminKeyMiddleware(hash, discardLogger()))
		deps.Validator = core.NewValidator(discardLogger())
		deps.Logger = discardLogger()
		NewAdminHandler(deps).RegisterRoutes(r)
	})
	return r
}

func adminRequest(path, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set(AdminKeyHeader, key)
	}
	return req
}

func TestAdminSync_Success(t *testing.T) {
	syncer := &fakeSyncer{res: &billing.SyncResult{
		Customer:      &types.Customer{PaddleID: "ctm_01"},
		Subscriptions: 2,
		Transactions:  5,
	}}
	router := newAdminRouter(t, syncer, "s3cret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest("/v1/admin/customers/ctm_01/sync", "s3cret"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ctm_01"}, syncer.calls)

	var resp struct {
		Data billing.SyncResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Subscriptions)
	assert.Equal(t, 5, resp.Data.Transactions)
}

func TestAdminSync_Auth(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"missing key", "s3cret", "", http.StatusUnauthorized, types.ErrCodeAuthTokenMissing},
		{"wrong key", "s3cret", "guess", http.StatusForbidden, types.ErrCodePermissionAdmin},
		{"admin disabled", "", "anything", http.StatusForbidden, types.ErrCodePermissionAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{}
			rec := httptest.NewRecorder()
			newAdminRouter(t, syncer, tt.configured).
				ServeHTTP(rec, adminRequest("/v1/admin/customers/ctm_01/sync", tt.sent))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeErrorCode(t, rec))
			assert.Empty(t, syncer.calls)
		})
	}
}

func TestAdminSync_InvalidCustomerID(t *testing.T) {
	syncer := &fakeSyncer{}
	rec := httptest.NewRecorder()
	newAdminRouter(t, syncer, "s3cret").ServeHTTP(rec, adminRequest("/v1/admin/customers/sub_01/sync", "s3cret"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidFormat), decodeErrorCode(t, rec))
	assert.Empty(t, syncer.calls)
}

func TestAdminSync_UpstreamError(t *testing.T) {
	syncer := &fakeSyncer{err: types.NewAppError(types.ErrCodeUpstreamPaddle, "paddle API returned 503", nil)}
	rec := httptest.NewRecorder()
	newAdminRouter(t, syncer, "s3cret").ServeHTTP(rec, adminRequest("/v1/admin/customers/ctm_01/sync", "s3cret"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(types.ErrCodeUpstreamPaddle), decodeErrorCode(t, rec))
}

func adminJSONRequest(method, path, key, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(AdminKeyHeader, key)
	return req
}

func TestAdminSubscriptionActions(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want subscriptionCall
	}{
		{"cancel defaults to period end", "/v1/admin/subscriptions/sub_01/cancel", "",
			subscriptionCall{"cancel", "sub_01", external.EffectiveNextBillingPeriod}},
		{"cancel immediately", "/v1/admin/subscriptions/sub_01/cancel", `{"effective_from":"immediately"}`,
			subscriptionCall{"cancel", "sub_01", external.EffectiveImmediately}},
		{"pause defaults to period end", "/v1/admin/subscriptions/sub_01/pause", "",
			subscriptionCall{"pause", "sub_01", external.EffectiveNextBillingPeriod}},
		{"pause immediately", "/v1/admin/subscriptions/sub_01/pause", `{"effective_from":"immediately"}`,
			subscriptionCall{"pause", "sub_01", external.EffectiveImmediately}},
		{"resume", "/v1/admin/subscriptions/sub_01/resume", "",
			subscriptionCall{"resume", "sub_01", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &fakeSubscriptions{sub: &types.Subscription{PaddleID: "sub_01", Status: types.SubStatusPaused}}
			router := newAdminRouterWith(t, AdminDeps{Subscriptions: subs}, "s3cret")

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, adminJSONRequest(http.MethodPost, tt.path, "s3cret", tt.body))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, []subscriptionCall{tt.want}, subs.calls)

			var resp struct {
				Data types.Subscription `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "sub_01", resp.Data.PaddleID)
		})
	}
}

func TestAdminSubscriptionActions_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		key        string
		body       string
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"no key", "/v1/admin/subscriptions/sub_01/cancel", "", "", http.StatusUnauthorized, types.ErrCodeAuthTokenMissing},
		{"wrong prefix", "/v1/admin/subscriptions/ctm_01/cancel", "s3cret", "", http.StatusBadRequest, types.ErrCodeValidationInvalidFormat},
		{"bad effective_from", "/v1/admin/subscriptions/sub_01/pause", "s3cret", `{"effective_from":"tomorrow"}`, http.StatusBadRequest, types.ErrCodeValidationInvalidFormat},
		{"unknown field", "/v1/admin/subscriptions/sub_01/cancel", "s3cret", `{"when":"now"}`, http.StatusBadRequest, types.ErrCodeValidationInvalidJSON},
		{"malformed body", "/v1/admin/subscriptions/sub_01/cancel", "s3cret", `{"effective_from":`, http.StatusBadRequest, types.ErrCodeValidationInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &fakeSubscriptions{}
			router := newAdminRouterWith(t, AdminDeps{Subscriptions: subs}, "s3cret")

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, adminJSONRequest(http.MethodPost, tt.path, tt.key, tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeErrorCode(t, rec))
			assert.Empty(t, subs.calls)
		})
	}
}

func TestAdminSubscriptionActions_UnknownSubscription(t *testing.T) {
	subs := &fakeSubscriptions{err: types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)}
	router := newAdminRouterWith(t, AdminDeps{Subscriptions: subs}, "s3cret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminJSONRequest(http.MethodPost, "/v1/admin/subscriptions/sub_99/resume", "s3cret", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundSubscription), decodeErrorCode(t, rec))
}

func TestAdminGetWebhookEvent(t *testing.T) {
	processed := time.Date(2024, 4, 12, 10, 18, 50, 0, time.UTC)
	events := fakeEvents{
		"evt_01": {
			EventID:     "evt_01",
			EventType:   types.EventSubscriptionCreated,
			Status:      types.WebhookEventFailed,
			Payload:     json.RawMessage(`{"event_id":"evt_01"}`),
			ReceivedAt:  processed.Add(-time.Second),
			ProcessedAt: &processed,
			Error:       "customer not found",
		},
	}
	router := newAdminRouterWith(t, AdminDeps{Events: events}, "s3cret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminJSONRequest(http.MethodGet, "/v1/admin/webhook-events/evt_01", "s3cret", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data types.WebhookEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.WebhookEventFailed, resp.Data.Status)
	assert.Equal(t, "customer not found", resp.Data.Error)
	assert.JSONEq(t, `{"event_id":"evt_01"}`, string(resp.Data.Payload))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminJSONRequest(http.MethodGet, "/v1/admin/webhook-events/evt_02", "s3cret", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundEvent), decodeErrorCode(t, rec))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminJSONRequest(http.MethodGet, "/v1/admin/webhook-events/sub_01", "s3cret", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
