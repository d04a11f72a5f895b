package external

import (
	"encoding/json"
	"strconv"
	"time"
)

// CustomData is the free-form custom_data object Paddle stores on customers,
// subscriptions and transactions and echoes back in API responses and
// webhook payloads.
type CustomData map[string]any

// String returns the value under key as a string. Numeric ids, which some
// checkouts send as JSON numbers, are formatted without an exponent.
func (d CustomData) String(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// PaddleCustomer is the customer entity.
type PaddleCustomer struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Status     string     `json:"status"`
	CustomData CustomData `json:"custom_data"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// PaddlePrice is the subset of a price used on subscription items.
type PaddlePrice struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
}

// PaddleSubscriptionItem is one line of a subscription.
type PaddleSubscriptionItem struct {
	Status   string      `json:"status"`
	Quantity int         `json:"quantity"`
	Price    PaddlePrice `json:"price"`
}

// PaddleScheduledChange is a pause, cancel or resume queued for a future date.
type PaddleScheduledChange struct {
	Action      string     `json:"action"`
	EffectiveAt time.Time  `json:"effective_at"`
	ResumeAt    *time.Time `json:"resume_at"`
}

// PaddleSubscription is the subscription entity.
type PaddleSubscription struct {
	ID              string                   `json:"id"`
	Status          string                   `json:"status"`
	CustomerID      string                   `json:"customer_id"`
	CurrencyCode    string                   `json:"currency_code"`
	NextBilledAt    *time.Time               `json:"next_billed_at"`
	PausedAt        *time.Time               `json:"paused_at"`
	CanceledAt      *time.Time               `json:"canceled_at"`
	ScheduledChange *PaddleScheduledChange   `json:"scheduled_change"`
	Items           []PaddleSubscriptionItem `json:"items"`
	CustomData      CustomData               `json:"custom_data"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// ScheduledAt returns the effective date of a scheduled change with the given
// action ("pause" or "cancel"), or nil when none is queued.
func (s *PaddleSubscription) ScheduledAt(action string) *time.Time {
	if s.ScheduledChange == nil || s.ScheduledChange.Action != action {
		return nil
	}
	at := s.ScheduledChange.EffectiveAt
	return &at
}

// PaddleTotals are decimal strings in the lowest currency unit.
type PaddleTotals struct {
	Subtotal   string `json:"subtotal"`
	Tax        string `json:"tax"`
	Total      string `json:"total"`
	GrandTotal string `json:"grand_total"`
}

// PaddleTransactionDetails carries the transaction totals.
type PaddleTransactionDetails struct {
	Totals PaddleTotals `json:"totals"`
}

// PaddleTransaction is the transaction entity.
type PaddleTransaction struct {
	ID             string                   `json:"id"`
	Status         string                   `json:"status"`
	CustomerID     string                   `json:"customer_id"`
	SubscriptionID string                   `json:"subscription_id"`
	InvoiceNumber  string                   `json:"invoice_number"`
	CurrencyCode   string                   `json:"currency_code"`
	BilledAt       *time.Time               `json:"billed_at"`
	Details        PaddleTransactionDetails `json:"details"`
	CustomData     CustomData               `json:"custom_data"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// Effective dates accepted by subscription cancel and pause.
const (
	EffectiveImmediately       = "immediately"
	EffectiveNextBillingPeriod = "next_billing_period"
)
