package billing

import (
	"context"
	"encoding/json"
	"time"

	"cashier/internal/external"
	"cashier/internal/types"
)

func (s *Service) customerUpdated(ctx context.Context, data json.RawMessage) (Outcome, error) {
	c, err := decode[external.PaddleCustomer](data, "customer")
	if err != nil {
		return Outcome{}, err
	}

	if err := s.customers.UpdateContact(ctx, c.ID, c.Name, c.Email); err != nil {
		if isNotFound(err) {
			s.logger.InfoContext(ctx, "customer.updated for unknown customer", "customer_id", c.ID)
			return Outcome{}, nil
		}
		return Outcome{}, err
	}

	existing, err := s.customers.GetByPaddleID(ctx, c.ID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Handled: true, Billable: &existing.Billable}, nil
}

func (s *Service) transactionCompleted(ctx context.Context, data json.RawMessage) (Outcome, error) {
	t, err := decode[external.PaddleTransaction](data, "transaction")
	if err != nil {
		return Outcome{}, err
	}

	billable, err := s.resolveBillable(ctx, t.CustomData, t.CustomerID)
	if err != nil {
		return Outcome{}, err
	}
	if billable == nil {
		s.logger.InfoContext(ctx, "transaction for unknown billable",
			"transaction_id", t.ID,
			"customer_id", t.CustomerID,
		)
		return Outcome{}, nil
	}

	txn := transactionFromPaddle(t, *billable)
	txn.Status = types.TxnStatusCompleted
	if err := s.transactions.Upsert(ctx, txn); err != nil {
		return Outcome{}, err
	}
	return Outcome{Handled: true, Billable: billable}, nil
}

func (s *Service) transactionUpdated(ctx context.Context, data json.RawMessage) (Outcome, error) {
	t, err := decode[external.PaddleTransaction](data, "transaction")
	if err != nil {
		return Outcome{}, err
	}

	totals := t.Details.Totals
	err = s.transactions.UpdateStatus(ctx, t.ID, types.TransactionStatus(t.Status), totals.Total, totals.Tax)
	if err != nil {
		if isNotFound(err) {
			return Outcome{}, nil
		}
		return Outcome{}, err
	}
	return Outcome{Handled: true}, nil
}

func (s *Service) subscriptionCreated(ctx context.Context, data json.RawMessage) (Outcome, error) {
	p, err := decode[external.PaddleSubscription](data, "subscription")
	if err != nil {
		return Outcome{}, err
	}

	subType := p.CustomData.String("subscription_type")
	if subType == "" {
		s.logger.InfoContext(ctx, "subscription.created without subscription_type; not managed here",
			"subscription_id", p.ID,
		)
		return Outcome{}, nil
	}

	billable, err := s.resolveBillable(ctx, p.CustomData, p.CustomerID)
	if err != nil {
		return Outcome{}, err
	}
	if billable == nil {
		s.logger.InfoContext(ctx, "subscription for unknown billable",
			"subscription_id", p.ID,
			"customer_id", p.CustomerID,
		)
		return Outcome{}, nil
	}

	sub := &types.Subscription{Billable: *billable, Type: subType, PaddleID: p.ID}
	applySubscriptionState(sub, p)
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return Outcome{}, err
	}

	if err := s.customers.EndGenericTrial(ctx, *billable, s.now()); err != nil {
		return Outcome{}, err
	}
	return Outcome{Handled: true, Billable: billable}, nil
}

func (s *Service) subscriptionUpdated(ctx context.Context, data json.RawMessage) (Outcome, error) {
	p, err := decode[external.PaddleSubscription](data, "subscription")
	if err != nil {
		return Outcome{}, err
	}

	sub, err := s.subscriptions.GetByPaddleID(ctx, p.ID)
	if err != nil {
		if isNotFound(err) {
			return Outcome{}, nil
		}
		return Outcome{}, err
	}

	applySubscriptionState(sub, p)
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return Outcome{}, err
	}
	return Outcome{Handled: true, Billable: &sub.Billable}, nil
}

func (s *Service) subscriptionPaused(ctx context.Context, data json.RawMessage) (Outcome, error) {
	p, err := decode[external.PaddleSubscription](data, "subscription")
	if err != nil {
		return Outcome{}, err
	}

	at := s.now()
	if p.PausedAt != nil {
		at = *p.PausedAt
	}
	return s.setState(ctx, p.ID, s.subscriptions.MarkPaused, at)
}

func (s *Service) subscriptionCanceled(ctx context.Context, data json.RawMessage) (Outcome, error) {
	p, err := decode[external.PaddleSubscription](data, "subscription")
	if err != nil {
		return Outcome{}, err
	}

	at := s.now()
	if p.CanceledAt != nil {
		at = *p.CanceledAt
	}
	return s.setState(ctx, p.ID, s.subscriptions.MarkCanceled, at)
}

func (s *Service) setState(ctx context.Context, paddleID string, mark func(context.Context, string, time.Time) error, at time.Time) (Outcome, error) {
	if err := mark(ctx, paddleID, at); err != nil {
		if isNotFound(err) {
			return Outcome{}, nil
		}
		return Outcome{}, err
	}
	return Outcome{Handled: true}, nil
}

// applySubscriptionState copies status, dates and items from a Paddle
// subscription onto sub. A trial ends at the next billing date; pause and
// cancel dates fall back to scheduled changes.
func applySubscriptionState(sub *types.Subscription, p *external.PaddleSubscription) {
	sub.Status = types.SubscriptionStatus(p.Status)

	sub.TrialEndsAt = nil
	if sub.Status == types.SubStatusTrialing {
		sub.TrialEndsAt = p.NextBilledAt
	}

	sub.PausedAt = p.PausedAt
	if sub.PausedAt == nil {
		sub.PausedAt = p.ScheduledAt("pause")
	}

	sub.EndsAt = p.CanceledAt
	if sub.EndsAt == nil {
		sub.EndsAt = p.ScheduledAt("cancel")
	}

	sub.Items = make([]types.SubscriptionItem, 0, len(p.Items))
	for _, item := range p.Items {
		sub.Items = append(sub.Items, types.SubscriptionItem{
			ProductID: item.Price.ProductID,
			PriceID:   item.Price.ID,
			Status:    item.Status,
			Quantity:  item.Quantity,
		})
	}
}

func transactionFromPaddle(t *external.PaddleTransaction, billable types.Billable) *types.Transaction {
	txn := &types.Transaction{
		Billable:             billable,
		PaddleID:             t.ID,
		PaddleSubscriptionID: t.SubscriptionID,
		InvoiceNumber:        t.InvoiceNumber,
		Status:               types.TransactionStatus(t.Status),
		Total:                t.Details.Totals.Total,
		Tax:                  t.Details.Totals.Tax,
		Currency:             t.CurrencyCode,
		BilledAt:             t.CreatedAt,
	}
	if t.BilledAt != nil {
		txn.BilledAt = *t.BilledAt
	}
	return txn
}
