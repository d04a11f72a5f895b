package types

// SubscriptionStatus is the Paddle status of a subscription.
type SubscriptionStatus string

const (
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusPaused   SubscriptionStatus = "paused"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// TransactionStatus is the Paddle status of a transaction.
type TransactionStatus string

const (
	TxnStatusDraft     TransactionStatus = "draft"
	TxnStatusReady     TransactionStatus = "ready"
	TxnStatusBilled    TransactionStatus = "billed"
	TxnStatusPaid      TransactionStatus = "paid"
	TxnStatusCompleted TransactionStatus = "completed"
	TxnStatusCanceled  TransactionStatus = "canceled"
	TxnStatusPastDue   TransactionStatus = "past_due"
)

// WebhookEventStatus tracks a delivery through the event ledger.
type WebhookEventStatus string

const (
	WebhookEventProcessing WebhookEventStatus = "processing"
	WebhookEventProcessed  WebhookEventStatus = "processed"
	WebhookEventFailed     WebhookEventStatus = "failed"
)

// Paddle webhook event types handled by the billing service.
const (
	EventCustomerUpdated      = "customer.updated"
	EventTransactionCompleted = "transaction.completed"
	EventTransactionUpdated   = "transaction.updated"
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionPaused   = "subscription.paused"
	EventSubscriptionCanceled = "subscription.canceled"
)

// DefaultSubscriptionType is used when a checkout carries no explicit type.
const DefaultSubscriptionType = "default"
