// Package handlers contains the HTTP handlers of the billing service.
//
// PaddleWebhookHandler is mounted behind the signature gate from
// internal/webhook, so it only ever sees authenticated deliveries.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cashier/internal/billing"
	"cashier/internal/core"
	"cashier/internal/types"
)

// EventLedger records deliveries by event id so each event is applied once.
type EventLedger interface {
	// Claim returns false when the event is already processing or processed.
	Claim(ctx context.Context, eventID, eventType string, payload []byte) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, reason string) error
}

// EventApplier applies the data object of an event.
type EventApplier interface {
	Apply(ctx context.Context, eventType string, data json.RawMessage) (billing.Outcome, error)
}

// HandledPublisher announces processed deliveries.
type HandledPublisher interface {
	Publish(ctx context.Context, msg types.WebhookHandledMessage) error
}

// ProcessedRecorder counts ledger outcomes.
type ProcessedRecorder interface {
	RecordWebhookProcessed(ctx context.Context, eventType string, status types.WebhookEventStatus)
}

// ledgerTimeout bounds the ledger write that settles a claimed event. It
// runs detached from the request so a client disconnect cannot strand the
// row in processing.
const ledgerTimeout = 5 * time.Second

// paddleNotification is the envelope of every Paddle webhook delivery.
type paddleNotification struct {
	EventID        string          `json:"event_id" validate:"required,paddle_id=evt"`
	EventType      string          `json:"event_type" validate:"required"`
	OccurredAt     time.Time       `json:"occurred_at"`
	NotificationID string          `json:"notification_id"`
	Data           json.RawMessage `json:"data" validate:"required"`
}

// webhookAck is the body of a 200 response.
type webhookAck struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// Acknowledgement statuses.
const (
	ackProcessed = "processed"
	ackIgnored   = "ignored"
	ackDuplicate = "duplicate"
)

// PaddleWebhookHandler applies verified Paddle deliveries.
type PaddleWebhookHandler struct {
	ledger    EventLedger
	applier   EventApplier
	validator *core.Validator
	publisher HandledPublisher
	metrics   ProcessedRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewPaddleWebhookHandler creates a handler. publisher and metrics may be nil.
func NewPaddleWebhookHandler(
	ledger EventLedger,
	applier EventApplier,
	validator *core.Validator,
	publisher HandledPublisher,
	metrics ProcessedRecorder,
	logger *slog.Logger,
) *PaddleWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaddleWebhookHandler{
		ledger:    ledger,
		applier:   applier,
		validator: validator,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ServeHTTP implements http.Handler.
//
// Responses: 200 when the event was applied, ignored, or already seen; 400
// for an envelope that is not a Paddle notification; 500 when applying
// failed, so Paddle retries the delivery and the failed ledger row is
// reclaimed.
func (h *PaddleWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "failed to read request body", err))
		return
	}

	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must be a JSON notification", err))
		return
	}
	if err := h.validator.ValidateStruct(&n); err != nil {
		core.Error(w, r, err)
		return
	}

	log := h.logger.With("event_id", n.EventID, "event_type", n.EventType)

	claimed, err := h.ledger.Claim(ctx, n.EventID, n.EventType, payload)
	if err != nil {
		log.ErrorContext(ctx, "failed to claim webhook event", "error", err)
		core.Error(w, r, err)
		return
	}
	if !claimed {
		log.InfoContext(ctx, "duplicate webhook delivery")
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: webhookAck{EventID: n.EventID, Status: ackDuplicate}})
		return
	}

	outcome, applyErr := h.applier.Apply(ctx, n.EventType, n.Data)

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()

	if applyErr != nil {
		log.ErrorContext(ctx, "webhook event processing failed", "error", applyErr)
		if err := h.ledger.MarkFailed(lctx, n.EventID, applyErr.Error()); err != nil {
			log.ErrorContext(ctx, "failed to mark webhook event failed", "error", err)
		}
		h.finish(ctx, n, types.WebhookEventFailed, nil)
		core.Error(w, r, applyErr)
		return
	}

	if err := h.ledger.MarkProcessed(lctx, n.EventID); err != nil {
		log.ErrorContext(ctx, "failed to mark webhook event processed", "error", err)
		core.Error(w, r, err)
		return
	}
	h.finish(ctx, n, types.WebhookEventProcessed, outcome.Billable)

	status := ackProcessed
	if !outcome.Handled {
		status = ackIgnored
	}
	log.InfoContext(ctx, "webhook event applied", "status", status)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: webhookAck{EventID: n.EventID, Status: status}})
}

// finish records the outcome and publishes it. Publishing failures are
// logged only; the ledger already holds the result.
func (h *PaddleWebhookHandler) finish(ctx context.Context, n paddleNotification, status types.WebhookEventStatus, billable *types.Billable) {
	if h.metrics != nil {
		h.metrics.RecordWebhookProcessed(ctx, n.EventType, status)
	}
	if h.publisher == nil {
		return
	}
	err := h.publisher.Publish(ctx, types.WebhookHandledMessage{
		EventID:   n.EventID,
		EventType: n.EventType,
		Status:    status,
		Billable:  billable,
		HandledAt: h.now().UTC(),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to publish webhook outcome",
			"event_id", n.EventID,
			"error", err,
		)
	}
}
