package billing

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"cashier/internal/external"
	"cashier/internal/types"
)

type mockCustomers struct {
	mock.Mock
}

func (m *mockCustomers) GetByPaddleID(ctx context.Context, paddleID string) (*types.Customer, error) {
	args := m.Called(ctx, paddleID)
	if c := args.Get(0); c != nil {
		return c.(*types.Customer), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCustomers) Upsert(ctx context.Context, c *types.Customer) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCustomers) UpdateContact(ctx context.Context, paddleID, name, email string) error {
	return m.Called(ctx, paddleID, name, email).Error(0)
}

func (m *mockCustomers) EndGenericTrial(ctx context.Context, billable types.Billable, at time.Time) error {
	return m.Called(ctx, billable, at).Error(0)
}

type mockSubscriptions struct {
	mock.Mock
}

func (m *mockSubscriptions) GetByPaddleID(ctx context.Context, paddleID string) (*types.Subscription, error) {
	args := m.Called(ctx, paddleID)
	if s := args.Get(0); s != nil {
		return s.(*types.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptions) Upsert(ctx context.Context, s *types.Subscription) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSubscriptions) MarkPaused(ctx context.Context, paddleID string, pausedAt time.Time) error {
	return m.Called(ctx, paddleID, pausedAt).Error(0)
}

func (m *mockSubscriptions) MarkCanceled(ctx context.Context, paddleID string, endsAt time.Time) error {
	return m.Called(ctx, paddleID, endsAt).Error(0)
}

type mockTransactions struct {
	mock.Mock
}

func (m *mockTransactions) Upsert(ctx context.Context, t *types.Transaction) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockTransactions) UpdateStatus(ctx context.Context, paddleID string, status types.TransactionStatus, total, tax string) error {
	return m.Called(ctx, paddleID, status, total, tax).Error(0)
}

type mockPaddle struct {
	mock.Mock
}

func (m *mockPaddle) GetCustomer(ctx context.Context, customerID string) (*external.PaddleCustomer, error) {
	args := m.Called(ctx, customerID)
	if c := args.Get(0); c != nil {
		return c.(*external.PaddleCustomer), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaddle) ListSubscriptions(ctx context.Context, customerID string) ([]external.PaddleSubscription, error) {
	args := m.Called(ctx, customerID)
	if s := args.Get(0); s != nil {
		return s.([]external.PaddleSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaddle) ListTransactions(ctx context.Context, customerID string) ([]external.PaddleTransaction, error) {
	args := m.Called(ctx, customerID)
	if t := args.Get(0); t != nil {
		return t.([]external.PaddleTransaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaddle) CancelSubscription(ctx context.Context, subscriptionID, effectiveFrom string) (*external.PaddleSubscription, error) {
	args := m.Called(ctx, subscriptionID, effectiveFrom)
	if s := args.Get(0); s != nil {
		return s.(*external.PaddleSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaddle) PauseSubscription(ctx context.Context, subscriptionID, effectiveFrom string) (*external.PaddleSubscription, error) {
	args := m.Called(ctx, subscriptionID, effectiveFrom)
	if s := args.Get(0); s != nil {
		return s.(*external.PaddleSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaddle) ResumeSubscription(ctx context.Context, subscriptionID string) (*external.PaddleSubscription, error) {
	args := m.Called(ctx, subscriptionID)
	if s := args.Get(0); s != nil {
		return s.(*external.PaddleSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ external.PaddleAPI = (*mockPaddle)(nil)

// fixture bundles a Service with its mocks.
type fixture struct {
	svc           *Service
	customers     *mockCustomers
	subscriptions *mockSubscriptions
	transactions  *mockTransactions
	paddle        *mockPaddle
	now           time.Time
}

func newFixture() *fixture {
	f := &fixture{
		customers:     new(mockCustomers),
		subscriptions: new(mockSubscriptions),
		transactions:  new(mockTransactions),
		paddle:        new(mockPaddle),
		now:           time.Date(2024, 4, 12, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Deps{
		Customers:     f.customers,
		Subscriptions: f.subscriptions,
		Transactions:  f.transactions,
		Paddle:        f.paddle,
		BillableType:  "user",
		Clock:         func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) assertExpectations(t mock.TestingT) {
	f.customers.AssertExpectations(t)
	f.subscriptions.AssertExpectations(t)
	f.transactions.AssertExpectations(t)
	f.paddle.AssertExpectations(t)
}
