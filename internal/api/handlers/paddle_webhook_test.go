package handlers

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashier/internal/billing"
	"cashier/internal/core"
	"cashier/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLedger is an in-memory EventLedger.
type fakeLedger struct {
	mu       sync.Mutex
	status   map[string]types.WebhookEventStatus
	reasons  map[string]string
	payloads map[string][]byte
	claimErr error
	markErr  error
	// honorCtx makes the Mark methods fail on a done context, the way a
	// database driver does.
	honorCtx bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		status:   map[string]types.WebhookEventStatus{},
		reasons:  map[string]string{},
		payloads: map[string][]byte{},
	}
}

func (l *fakeLedger) Claim(_ context.Context, eventID, _ string, payload []byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimErr != nil {
		return false, l.claimErr
	}
	if st, ok := l.status[eventID]; ok && st != types.WebhookEventFailed {
		return false, nil
	}
	l.status[eventID] = types.WebhookEventProcessing
	l.payloads[eventID] = payload
	return true, nil
}

func (l *fakeLedger) MarkProcessed(ctx context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.markErr != nil {
		return l.markErr
	}
	if l.honorCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	l.status[eventID] = types.WebhookEventProcessed
	return nil
}

func (l *fakeLedger) MarkFailed(ctx context.Context, eventID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.honorCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	l.status[eventID] = types.WebhookEventFailed
	l.reasons[eventID] = reason
	return nil
}

// fakeApplier records Apply calls and returns a fixed result.
type fakeApplier struct {
	calls   []string
	outcome billing.Outcome
	err     error
}

func (a *fakeApplier) Apply(_ context.Context, eventType string, data json.RawMessage) (billing.Outcome, error) {
	a.calls = append(a.calls, eventType)
	return a.outcome, a.err
}

type fakePublisher struct {
	msgs []types.WebhookHandledMessage
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg types.WebhookHandledMessage) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

type fakeProcessed struct {
	statuses []types.WebhookEventStatus
}

func (f *fakeProcessed) RecordWebhookProcessed(_ context.Context, _ string, status types.WebhookEventStatus) {
	f.statuses = append(f.statuses, status)
}

type webhookFixture struct {
	handler   *PaddleWebhookHandler
	ledger    *fakeLedger
	applier   *fakeApplier
	publisher *fakePublisher
	metrics   *fakeProcessed
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		ledger:    newFakeLedger(),
		applier:   &fakeApplier{outcome: billing.Outcome{Handled: true, Billable: &types.Billable{Type: "user", ID: "42"}}},
		publisher: &fakePublisher{},
		metrics:   &fakeProcessed{},
	}
	f.handler = NewPaddleWebhookHandler(f.ledger, f.applier, core.NewValidator(discardLogger()), f.publisher, f.metrics, discardLogger())
	return f
}

const subscriptionCreatedEvent = `{
	"event_id": "evt_01hv8x2acma2gz2t3c8bg8z6v3",
	"event_type": "subscription.created",
	"occurred_at": "2024-04-12T10:18:49.621022Z",
	"notification_id": "ntf_01hv8x2af6c4kyv8fwpbnpsy4a",
	"data": {"id": "sub_01", "status": "active", "customer_id": "ctm_01"}
}`

func (f *webhookFixture) serve(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/paddle/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) webhookAck {
	t.Helper()
	var resp struct {
		Data webhookAck `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestPaddleWebhook_Processed(t *testing.T) {
	f := newWebhookFixture()
	rec := f.serve(subscriptionCreatedEvent)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, webhookAck{EventID: "evt_01hv8x2acma2gz2t3c8bg8z6v3", Status: ackProcessed}, decodeAck(t, rec))
	assert.Equal(t, []string{types.EventSubscriptionCreated}, f.applier.calls)
	assert.Equal(t, types.WebhookEventProcessed, f.ledger.status["evt_01hv8x2acma2gz2t3c8bg8z6v3"])
	assert.JSONEq(t, subscriptionCreatedEvent, string(f.ledger.payloads["evt_01hv8x2acma2gz2t3c8bg8z6v3"]))

	require.Len(t, f.publisher.msgs, 1)
	msg := f.publisher.msgs[0]
	assert.Equal(t, types.WebhookEventProcessed, msg.Status)
	assert.Equal(t, "42", msg.Billable.ID)
	assert.False(t, msg.HandledAt.IsZero())
	assert.Equal(t, []types.WebhookEventStatus{types.WebhookEventProcessed}, f.metrics.statuses)
}

func TestPaddleWebhook_DuplicateIsNoop(t *testing.T) {
	f := newWebhookFixture()
	require.Equal(t, http.StatusOK, f.serve(subscriptionCreatedEvent).Code)

	rec := f.serve(subscriptionCreatedEvent)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ackDuplicate, decodeAck(t, rec).Status)
	assert.Len(t, f.applier.calls, 1, "duplicate must not be applied twice")
	assert.Len(t, f.publisher.msgs, 1)
}

func TestPaddleWebhook_IgnoredEvent(t *testing.T) {
	f := newWebhookFixture()
	f.applier.outcome = billing.Outcome{}

	rec := f.serve(`{"event_id":"evt_02","event_type":"address.created","data":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ackIgnored, decodeAck(t, rec).Status)
	assert.Equal(t, types.WebhookEventProcessed, f.ledger.status["evt_02"])
}

func TestPaddleWebhook_ApplyFailureReturns500AndCanRetry(t *testing.T) {
	f := newWebhookFixture()
	f.applier.err = types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", errors.New("conn reset"))

	rec := f.serve(subscriptionCreatedEvent)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalDB), decodeErrorCode(t, rec))
	assert.Equal(t, types.WebhookEventFailed, f.ledger.status["evt_01hv8x2acma2gz2t3c8bg8z6v3"])
	assert.Contains(t, f.ledger.reasons["evt_01hv8x2acma2gz2t3c8bg8z6v3"], "failed to upsert subscription")
	require.Len(t, f.publisher.msgs, 1)
	assert.Equal(t, types.WebhookEventFailed, f.publisher.msgs[0].Status)

	// Paddle's retry reclaims the failed event.
	f.applier.err = nil
	rec = f.serve(subscriptionCreatedEvent)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ackProcessed, decodeAck(t, rec).Status)
	assert.Len(t, f.applier.calls, 2)
}

func (f *webhookFixture) serveCanceled(body string) *httptest.ResponseRecorder {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/paddle/webhook", strings.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestPaddleWebhook_CanceledRequestStillMarksFailed(t *testing.T) {
	f := newWebhookFixture()
	f.ledger.honorCtx = true
	f.applier.err = context.Canceled

	rec := f.serveCanceled(subscriptionCreatedEvent)
	assert.NotEqual(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.WebhookEventFailed, f.ledger.status["evt_01hv8x2acma2gz2t3c8bg8z6v3"],
		"a canceled request must not leave the row in processing")

	// The retry reclaims the failed row and applies it.
	f.applier.err = nil
	rec = f.serve(subscriptionCreatedEvent)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ackProcessed, decodeAck(t, rec).Status)
	assert.Len(t, f.applier.calls, 2)
}

func TestPaddleWebhook_CanceledRequestStillMarksProcessed(t *testing.T) {
	f := newWebhookFixture()
	f.ledger.honorCtx = true

	rec := f.serveCanceled(subscriptionCreatedEvent)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.WebhookEventProcessed, f.ledger.status["evt_01hv8x2acma2gz2t3c8bg8z6v3"])

	rec = f.serve(subscriptionCreatedEvent)
	assert.Equal(t, ackDuplicate, decodeAck(t, rec).Status)
	assert.Len(t, f.applier.calls, 1)
}

func TestPaddleWebhook_InvalidEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode types.ErrorCode
	}{
		{"not json", `event_id=evt_01`, types.ErrCodeValidationInvalidJSON},
		{"missing event id", `{"event_type":"subscription.created","data":{}}`, types.ErrCodeValidationMissingField},
		{"missing data", `{"event_id":"evt_01","event_type":"subscription.created"}`, types.ErrCodeValidationMissingField},
		{"bad event id", `{"event_id":"sub_01","event_type":"subscription.created","data":{}}`, types.ErrCodeValidationInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture()
			rec := f.serve(tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeErrorCode(t, rec))
			assert.Empty(t, f.applier.calls)
			assert.Empty(t, f.ledger.status)
		})
	}
}

func TestPaddleWebhook_LedgerFailure(t *testing.T) {
	f := newWebhookFixture()
	f.ledger.claimErr = types.NewAppError(types.ErrCodeInternalDB, "failed to claim", nil)

	rec := f.serve(subscriptionCreatedEvent)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.applier.calls)
}

func TestPaddleWebhook_MarkProcessedFailure(t *testing.T) {
	f := newWebhookFixture()
	f.ledger.markErr = types.NewAppError(types.ErrCodeInternalDB, "failed to finish", nil)

	rec := f.serve(subscriptionCreatedEvent)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.publisher.msgs)
}

func TestPaddleWebhook_PublishFailureStillAcknowledged(t *testing.T) {
	f := newWebhookFixture()
	f.publisher.err = errors.New("sqs unavailable")

	rec := f.serve(subscriptionCreatedEvent)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaddleWebhook_NilOptionalDeps(t *testing.T) {
	ledger := newFakeLedger()
	h := NewPaddleWebhookHandler(ledger, &fakeApplier{}, core.NewValidator(discardLogger()), nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/paddle/webhook", strings.NewReader(subscriptionCreatedEvent))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
