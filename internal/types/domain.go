package types

import (
	"encoding/json"
	"time"
)

// Billable identifies the local entity that owns Paddle billing records.
type Billable struct {
	Type string `json:"billable_type" validate:"required"`
	ID   string `json:"billable_id" validate:"required"`
}

// Customer links a billable to a Paddle customer.
type Customer struct {
	ID          string     `json:"id"`
	PaddleID    string     `json:"paddle_id"`
	Billable    Billable   `json:"billable"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// OnGenericTrial reports whether the customer is on a trial that is not tied
// to any subscription.
func (c *Customer) OnGenericTrial(now time.Time) bool {
	return c.TrialEndsAt != nil && now.Before(*c.TrialEndsAt)
}

// Subscription is the local mirror of a Paddle subscription.
type Subscription struct {
	ID          string             `json:"id"`
	Billable    Billable           `json:"billable"`
	Type        string             `json:"type"`
	PaddleID    string             `json:"paddle_id"`
	Status      SubscriptionStatus `json:"status"`
	TrialEndsAt *time.Time         `json:"trial_ends_at,omitempty"`
	PausedAt    *time.Time         `json:"paused_at,omitempty"`
	EndsAt      *time.Time         `json:"ends_at,omitempty"`
	Items       []SubscriptionItem `json:"items,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// SubscriptionItem is one price line of a subscription.
type SubscriptionItem struct {
	SubscriptionID string `json:"subscription_id"`
	ProductID      string `json:"product_id"`
	PriceID        string `json:"price_id"`
	Status         string `json:"status"`
	Quantity       int    `json:"quantity"`
}

// Valid reports whether the subscription grants access at now.
func (s *Subscription) Valid(now time.Time) bool {
	return s.Active(now) || s.OnTrial(now) || s.PastDue() || s.OnPausedGracePeriod(now)
}

// Active reports whether the subscription is active or on its cancellation
// grace period.
func (s *Subscription) Active(now time.Time) bool {
	if s.Status == SubStatusActive || s.Status == SubStatusTrialing || s.Status == SubStatusPastDue {
		return true
	}
	return s.OnGracePeriod(now)
}

// OnTrial reports whether the subscription is trialing and the trial has not ended.
func (s *Subscription) OnTrial(now time.Time) bool {
	return s.Status == SubStatusTrialing && s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
}

// PastDue reports whether the last payment failed.
func (s *Subscription) PastDue() bool {
	return s.Status == SubStatusPastDue
}

// Paused reports whether the subscription is paused.
func (s *Subscription) Paused() bool {
	return s.Status == SubStatusPaused
}

// OnPausedGracePeriod reports whether a pause is scheduled but not yet effective.
func (s *Subscription) OnPausedGracePeriod(now time.Time) bool {
	return s.PausedAt != nil && now.Before(*s.PausedAt)
}

// Canceled reports whether the subscription has been canceled.
func (s *Subscription) Canceled() bool {
	return s.EndsAt != nil || s.Status == SubStatusCanceled
}

// OnGracePeriod reports whether a cancellation is scheduled but not yet effective.
func (s *Subscription) OnGracePeriod(now time.Time) bool {
	return s.EndsAt != nil && now.Before(*s.EndsAt)
}

// HasPrice reports whether any item of the subscription is on priceID.
func (s *Subscription) HasPrice(priceID string) bool {
	for _, item := range s.Items {
		if item.PriceID == priceID {
			return true
		}
	}
	return false
}

// Transaction is the local mirror of a Paddle transaction.
// Amounts are kept as the decimal strings Paddle sends (lowest currency unit).
type Transaction struct {
	ID                   string            `json:"id"`
	Billable             Billable          `json:"billable"`
	PaddleID             string            `json:"paddle_id"`
	PaddleSubscriptionID string            `json:"paddle_subscription_id,omitempty"`
	InvoiceNumber        string            `json:"invoice_number,omitempty"`
	Status               TransactionStatus `json:"status"`
	Total                string            `json:"total"`
	Tax                  string            `json:"tax"`
	Currency             string            `json:"currency"`
	BilledAt             time.Time         `json:"billed_at"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// WebhookEvent is one row of the webhook event ledger.
type WebhookEvent struct {
	EventID     string             `json:"event_id"`
	EventType   string             `json:"event_type"`
	Status      WebhookEventStatus `json:"status"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	ReceivedAt  time.Time          `json:"received_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
	Error       string             `json:"error,omitempty"`
}
