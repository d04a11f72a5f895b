package billing

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"cashier/internal/external"
	"cashier/internal/types"
)

// SyncResult summarises a SyncCustomer run.
type SyncResult struct {
	Customer      *types.Customer `json:"customer"`
	Subscriptions int             `json:"subscriptions"`
	Transactions  int             `json:"transactions"`
	Skipped       int             `json:"skipped"`
}

// SyncCustomer re-pulls a customer with its subscriptions and transactions
// from Paddle and upserts them locally. The three API reads run concurrently;
// the first failure cancels the others.
func (s *Service) SyncCustomer(ctx context.Context, paddleCustomerID string) (*SyncResult, error) {
	if s.paddle == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamPaddle, "paddle API client is not configured", nil)
	}

	var (
		remote *external.PaddleCustomer
		subs   []external.PaddleSubscription
		txns   []external.PaddleTransaction
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		remote, err = s.paddle.GetCustomer(gCtx, paddleCustomerID)
		return err
	})
	g.Go(func() error {
		var err error
		subs, err = s.paddle.ListSubscriptions(gCtx, paddleCustomerID)
		return err
	})
	g.Go(func() error {
		var err error
		txns, err = s.paddle.ListTransactions(gCtx, paddleCustomerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	billable, err := s.resolveBillable(ctx, remote.CustomData, remote.ID)
	if err != nil {
		return nil, err
	}
	if billable == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundCustomer,
			fmt.Sprintf("customer %s is not linked to a billable", paddleCustomerID), nil)
	}

	customer := &types.Customer{
		PaddleID: remote.ID,
		Billable: *billable,
		Name:     remote.Name,
		Email:    remote.Email,
	}
	if err := s.customers.Upsert(ctx, customer); err != nil {
		return nil, err
	}

	res := &SyncResult{Customer: customer}
	for i := range subs {
		p := &subs[i]
		subType := p.CustomData.String("subscription_type")
		if subType == "" {
			subType = types.DefaultSubscriptionType
		}
		sub := &types.Subscription{Billable: *billable, Type: subType, PaddleID: p.ID}
		applySubscriptionState(sub, p)
		if err := s.subscriptions.Upsert(ctx, sub); err != nil {
			return nil, err
		}
		res.Subscriptions++
	}

	for i := range txns {
		t := &txns[i]
		// Drafts never reached checkout and carry no billing data.
		if t.Status == string(types.TxnStatusDraft) {
			res.Skipped++
			continue
		}
		if err := s.transactions.Upsert(ctx, transactionFromPaddle(t, *billable)); err != nil {
			return nil, err
		}
		res.Transactions++
	}

	s.logger.InfoContext(ctx, "customer synced from paddle",
		"customer_id", paddleCustomerID,
		"subscriptions", res.Subscriptions,
		"transactions", res.Transactions,
		"skipped", res.Skipped,
	)
	return res, nil
}
