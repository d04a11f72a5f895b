package types

import "time"

// WebhookHandledMessage is published to SQS once a webhook delivery has been
// applied or has failed. Downstream consumers use it to refresh entitlements.
type WebhookHandledMessage struct {
	MessageID string             `json:"message_id"`
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	Status    WebhookEventStatus `json:"status"`
	Billable  *Billable          `json:"billable,omitempty"`
	TraceID   string             `json:"trace_id,omitempty"`
	HandledAt time.Time          `json:"handled_at"`
}
