package db

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"cashier/internal/types"
)

// ProcessingLease is how long a claim holds an event. A processing row older
// than this belongs to a worker that died before settling it and may be
// claimed again.
const ProcessingLease = 5 * time.Minute

// WebhookEventRepository is the idempotency ledger for webhook deliveries.
// Raw payloads are kept zstd-compressed for replay and audit.
type WebhookEventRepository struct {
	db  DBTX
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewWebhookEventRepository creates the ledger repository. The zstd encoder
// and decoder are used only through EncodeAll/DecodeAll, which are safe for
// concurrent use.
func NewWebhookEventRepository(db DBTX) (*WebhookEventRepository, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &WebhookEventRepository{db: db, enc: enc, dec: dec}, nil
}

// Claim records a delivery as processing. It returns false when the event is
// already processed or is processing under a live claim, in which case the
// caller must not apply it again. A failed event, or one whose claim is older
// than ProcessingLease, is reclaimed so Paddle's retry can succeed.
func (r *WebhookEventRepository) Claim(ctx context.Context, eventID, eventType string, payload []byte) (bool, error) {
	var compressed []byte
	if len(payload) > 0 {
		compressed = r.enc.EncodeAll(payload, nil)
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO webhook_events (event_id, event_type, status, payload_zstd, received_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (event_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     payload_zstd = EXCLUDED.payload_zstd,
		     received_at = NOW(),
		     processed_at = NULL,
		     error_message = NULL
		 WHERE webhook_events.status = $5
		    OR (webhook_events.status = $3
		        AND webhook_events.received_at < NOW() - $6::float8 * INTERVAL '1 second')`,
		eventID, eventType, types.WebhookEventProcessing, compressed, types.WebhookEventFailed,
		ProcessingLease.Seconds(),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record webhook event", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkProcessed finalizes a successful delivery.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	return r.finish(ctx, eventID, types.WebhookEventProcessed, "")
}

// MarkFailed finalizes a failed delivery with the error message.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, eventID, reason string) error {
	return r.finish(ctx, eventID, types.WebhookEventFailed, reason)
}

func (r *WebhookEventRepository) finish(ctx context.Context, eventID string, status types.WebhookEventStatus, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE webhook_events
		 SET status = $2, processed_at = NOW(), error_message = NULLIF($3, '')
		 WHERE event_id = $1`,
		eventID, status, reason,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update webhook event", err)
	}
	return nil
}

// Get returns a ledger row with its payload decompressed.
func (r *WebhookEventRepository) Get(ctx context.Context, eventID string) (*types.WebhookEvent, error) {
	var (
		ev         types.WebhookEvent
		compressed []byte
		errMsg     *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT event_id, event_type, status, payload_zstd, received_at, processed_at, error_message
		 FROM webhook_events WHERE event_id = $1`,
		eventID,
	).Scan(&ev.EventID, &ev.EventType, &ev.Status, &compressed, &ev.ReceivedAt, &ev.ProcessedAt, &errMsg)
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundEvent, "webhook event")
	}

	if len(compressed) > 0 {
		payload, err := r.dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decompress webhook payload", err)
		}
		ev.Payload = payload
	}
	if errMsg != nil {
		ev.Error = *errMsg
	}
	return &ev, nil
}
