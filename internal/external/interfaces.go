package external

import "context"

// PaddleAPI is the subset of the Paddle REST API the service depends on.
// PaddleClient implements it; tests substitute fakes.
type PaddleAPI interface {
	GetCustomer(ctx context.Context, customerID string) (*PaddleCustomer, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]PaddleSubscription, error)
	ListTransactions(ctx context.Context, customerID string) ([]PaddleTransaction, error)
	CancelSubscription(ctx context.Context, subscriptionID, effectiveFrom string) (*PaddleSubscription, error)
	PauseSubscription(ctx context.Context, subscriptionID, effectiveFrom string) (*PaddleSubscription, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (*PaddleSubscription, error)
}

var _ PaddleAPI = (*PaddleClient)(nil)
