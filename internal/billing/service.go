// Package billing applies Paddle webhook events and API snapshots to the
// local customer, subscription and transaction tables.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"cashier/internal/external"
	"cashier/internal/types"
)

// CustomerStore persists customers.
type CustomerStore interface {
	GetByPaddleID(ctx context.Context, paddleID string) (*types.Customer, error)
	Upsert(ctx context.Context, c *types.Customer) error
	UpdateContact(ctx context.Context, paddleID, name, email string) error
	EndGenericTrial(ctx context.Context, billable types.Billable, at time.Time) error
}

// SubscriptionStore persists subscriptions and their items.
type SubscriptionStore interface {
	GetByPaddleID(ctx context.Context, paddleID string) (*types.Subscription, error)
	Upsert(ctx context.Context, s *types.Subscription) error
	MarkPaused(ctx context.Context, paddleID string, pausedAt time.Time) error
	MarkCanceled(ctx context.Context, paddleID string, endsAt time.Time) error
}

// TransactionStore persists transactions.
type TransactionStore interface {
	Upsert(ctx context.Context, t *types.Transaction) error
	UpdateStatus(ctx context.Context, paddleID string, status types.TransactionStatus, total, tax string) error
}

// Deps are the collaborators of Service. Paddle is only needed by SyncCustomer.
type Deps struct {
	Customers     CustomerStore
	Subscriptions SubscriptionStore
	Transactions  TransactionStore
	Paddle        external.PaddleAPI
	// BillableType is used when custom_data names a billable id but no type.
	BillableType string
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Service applies billing state changes.
type Service struct {
	customers     CustomerStore
	subscriptions SubscriptionStore
	transactions  TransactionStore
	paddle        external.PaddleAPI
	billableType  string
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	billableType := deps.BillableType
	if billableType == "" {
		billableType = "user"
	}
	return &Service{
		customers:     deps.Customers,
		subscriptions: deps.Subscriptions,
		transactions:  deps.Transactions,
		paddle:        deps.Paddle,
		billableType:  billableType,
		logger:        logger,
		now:           clock,
	}
}

// Outcome describes what Apply did with an event.
type Outcome struct {
	// Handled is false for event types the service does not act on and for
	// events that reference records it does not know.
	Handled  bool
	Billable *types.Billable
}

type eventHandler func(s *Service, ctx context.Context, data json.RawMessage) (Outcome, error)

var handlers = map[string]eventHandler{
	types.EventCustomerUpdated:      (*Service).customerUpdated,
	types.EventTransactionCompleted: (*Service).transactionCompleted,
	types.EventTransactionUpdated:   (*Service).transactionUpdated,
	types.EventSubscriptionCreated:  (*Service).subscriptionCreated,
	types.EventSubscriptionUpdated:  (*Service).subscriptionUpdated,
	types.EventSubscriptionPaused:   (*Service).subscriptionPaused,
	types.EventSubscriptionCanceled: (*Service).subscriptionCanceled,
}

// Handles reports whether Apply acts on eventType.
func Handles(eventType string) bool {
	_, ok := handlers[eventType]
	return ok
}

// Apply dispatches the data object of a webhook event by its type. Unknown
// event types are ignored. Malformed data yields a validation AppError; store
// failures are returned as-is.
func (s *Service) Apply(ctx context.Context, eventType string, data json.RawMessage) (Outcome, error) {
	h, ok := handlers[eventType]
	if !ok {
		s.logger.DebugContext(ctx, "ignoring unhandled paddle event", "event_type", eventType)
		return Outcome{}, nil
	}
	return h(s, ctx, data)
}

func decode[T any](data json.RawMessage, what string) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidEvent, "malformed "+what+" payload", err)
	}
	return &v, nil
}

// isNotFound reports whether err is a not_found AppError.
func isNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.HTTPStatus() == 404
}

// resolveBillable finds the billable for a Paddle entity: custom_data wins,
// otherwise the local customer row for customerID. A nil result means the
// entity cannot be attributed.
func (s *Service) resolveBillable(ctx context.Context, custom external.CustomData, customerID string) (*types.Billable, error) {
	if id := custom.String("billable_id"); id != "" {
		typ := custom.String("billable_type")
		if typ == "" {
			typ = s.billableType
		}
		return &types.Billable{Type: typ, ID: id}, nil
	}
	if customerID == "" {
		return nil, nil
	}
	c, err := s.customers.GetByPaddleID(ctx, customerID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c.Billable, nil
}
