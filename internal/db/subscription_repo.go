package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cashier/internal/types"
)

// SubscriptionRepository persists subscriptions and their price items.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a SubscriptionRepository.
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetByPaddleID returns the subscription and its items.
func (r *SubscriptionRepository) GetByPaddleID(ctx context.Context, paddleID string) (*types.Subscription, error) {
	var s types.Subscription
	err := r.db.QueryRow(ctx,
		`SELECT id, billable_type, billable_id, type, paddle_id, status,
		        trial_ends_at, paused_at, ends_at, created_at, updated_at
		 FROM subscriptions WHERE paddle_id = $1`,
		paddleID,
	).Scan(
		&s.ID,
		&s.Billable.Type,
		&s.Billable.ID,
		&s.Type,
		&s.PaddleID,
		&s.Status,
		&s.TrialEndsAt,
		&s.PausedAt,
		&s.EndsAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundSubscription, "subscription")
	}

	items, err := r.listItems(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Items = items
	return &s, nil
}

func (r *SubscriptionRepository) listItems(ctx context.Context, subscriptionID string) ([]types.SubscriptionItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT subscription_id, product_id, price_id, status, quantity
		 FROM subscription_items WHERE subscription_id = $1 ORDER BY price_id`,
		subscriptionID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list subscription items", err)
	}
	defer rows.Close()

	var items []types.SubscriptionItem
	for rows.Next() {
		var it types.SubscriptionItem
		if err := rows.Scan(&it.SubscriptionID, &it.ProductID, &it.PriceID, &it.Status, &it.Quantity); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate subscription items", err)
	}
	return items, nil
}

// Upsert inserts s or updates the row with the same Paddle id, then replaces
// its items with s.Items. The billable and type of an existing row are kept.
func (r *SubscriptionRepository) Upsert(ctx context.Context, s *types.Subscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO subscriptions (id, billable_type, billable_id, type, paddle_id, status,
		                            trial_ends_at, paused_at, ends_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		 ON CONFLICT (paddle_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     trial_ends_at = EXCLUDED.trial_ends_at,
		     paused_at = EXCLUDED.paused_at,
		     ends_at = EXCLUDED.ends_at,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		s.ID, s.Billable.Type, s.Billable.ID, s.Type, s.PaddleID, s.Status,
		s.TrialEndsAt, s.PausedAt, s.EndsAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}

	return r.replaceItems(ctx, s)
}

func (r *SubscriptionRepository) replaceItems(ctx context.Context, s *types.Subscription) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM subscription_items WHERE subscription_id = $1`, s.ID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear subscription items", err)
	}

	for i := range s.Items {
		item := &s.Items[i]
		item.SubscriptionID = s.ID
		_, err := r.db.Exec(ctx,
			`INSERT INTO subscription_items (subscription_id, product_id, price_id, status, quantity)
			 VALUES ($1, $2, $3, $4, $5)`,
			item.SubscriptionID, item.ProductID, item.PriceID, item.Status, item.Quantity,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB,
				fmt.Sprintf("failed to insert subscription item %s", item.PriceID), err)
		}
	}
	return nil
}

// MarkPaused records a pause effective at pausedAt.
func (r *SubscriptionRepository) MarkPaused(ctx context.Context, paddleID string, pausedAt time.Time) error {
	return r.setState(ctx, paddleID,
		`UPDATE subscriptions SET status = $2, paused_at = $3, updated_at = NOW() WHERE paddle_id = $1`,
		types.SubStatusPaused, pausedAt,
	)
}

// MarkCanceled records a cancellation ending at endsAt.
func (r *SubscriptionRepository) MarkCanceled(ctx context.Context, paddleID string, endsAt time.Time) error {
	return r.setState(ctx, paddleID,
		`UPDATE subscriptions SET status = $2, ends_at = $3, paused_at = NULL, updated_at = NOW() WHERE paddle_id = $1`,
		types.SubStatusCanceled, endsAt,
	)
}

func (r *SubscriptionRepository) setState(ctx context.Context, paddleID, sql string, status types.SubscriptionStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx, sql, paddleID, status, at)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}
