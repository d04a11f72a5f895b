package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cashier/internal/external"
	"cashier/internal/types"
)

func TestSyncCustomer(t *testing.T) {
	f := newFixture()
	f.paddle.On("GetCustomer", mock.Anything, "ctm_01").Return(&external.PaddleCustomer{
		ID:         "ctm_01",
		Name:       "Ada",
		Email:      "ada@example.com",
		CustomData: external.CustomData{"billable_id": "42", "billable_type": "team"},
	}, nil)
	f.paddle.On("ListSubscriptions", mock.Anything, "ctm_01").Return([]external.PaddleSubscription{
		{ID: "sub_01", Status: "active", CustomData: external.CustomData{"subscription_type": "pro"}},
		{ID: "sub_02", Status: "canceled"},
	}, nil)
	f.paddle.On("ListTransactions", mock.Anything, "ctm_01").Return([]external.PaddleTransaction{
		{ID: "txn_01", Status: "completed"},
		{ID: "txn_02", Status: "draft"},
	}, nil)

	billable := types.Billable{Type: "team", ID: "42"}
	f.customers.On("Upsert", mock.Anything, mock.MatchedBy(func(c *types.Customer) bool {
		return c.PaddleID == "ctm_01" && c.Billable == billable && c.Email == "ada@example.com"
	})).Return(nil)

	var subTypes []string
	f.subscriptions.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { subTypes = append(subTypes, args.Get(1).(*types.Subscription).Type) }).
		Return(nil).Twice()
	f.transactions.On("Upsert", mock.Anything, mock.MatchedBy(func(txn *types.Transaction) bool {
		return txn.PaddleID == "txn_01" && txn.Billable == billable
	})).Return(nil).Once()

	res, err := f.svc.SyncCustomer(context.Background(), "ctm_01")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Subscriptions)
	assert.Equal(t, 1, res.Transactions)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"pro", types.DefaultSubscriptionType}, subTypes)
	f.assertExpectations(t)
}

func TestSyncCustomer_UpstreamFailure(t *testing.T) {
	f := newFixture()
	upstream := types.NewAppError(types.ErrCodeUpstreamUnavailable, "paddle down", nil)
	f.paddle.On("GetCustomer", mock.Anything, "ctm_01").Return(nil, upstream)
	f.paddle.On("ListSubscriptions", mock.Anything, "ctm_01").Return([]external.PaddleSubscription{}, nil).Maybe()
	f.paddle.On("ListTransactions", mock.Anything, "ctm_01").Return([]external.PaddleTransaction{}, nil).Maybe()

	_, err := f.svc.SyncCustomer(context.Background(), "ctm_01")
	assert.ErrorIs(t, err, upstream)
	f.customers.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestSyncCustomer_UnlinkedCustomer(t *testing.T) {
	f := newFixture()
	f.paddle.On("GetCustomer", mock.Anything, "ctm_01").Return(&external.PaddleCustomer{ID: "ctm_01"}, nil)
	f.paddle.On("ListSubscriptions", mock.Anything, "ctm_01").Return([]external.PaddleSubscription{}, nil)
	f.paddle.On("ListTransactions", mock.Anything, "ctm_01").Return([]external.PaddleTransaction{}, nil)
	f.customers.On("GetByPaddleID", mock.Anything, "ctm_01").Return(nil, errNotFoundCustomer)

	_, err := f.svc.SyncCustomer(context.Background(), "ctm_01")

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundCustomer, appErr.Code)
}

func TestSyncCustomer_NoClient(t *testing.T) {
	svc := NewService(Deps{})
	_, err := svc.SyncCustomer(context.Background(), "ctm_01")

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamPaddle, appErr.Code)
}
