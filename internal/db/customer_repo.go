package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cashier/internal/types"
)

// CustomerRepository persists the billable <-> Paddle customer link.
type CustomerRepository struct {
	db DBTX
}

// NewCustomerRepository creates a CustomerRepository.
func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `id, paddle_id, billable_type, billable_id, name, email, trial_ends_at, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (*types.Customer, error) {
	var c types.Customer
	err := row.Scan(
		&c.ID,
		&c.PaddleID,
		&c.Billable.Type,
		&c.Billable.ID,
		&c.Name,
		&c.Email,
		&c.TrialEndsAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByPaddleID returns the customer with the given Paddle customer id.
func (r *CustomerRepository) GetByPaddleID(ctx context.Context, paddleID string) (*types.Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE paddle_id = $1`,
		paddleID,
	))
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundCustomer, "customer")
	}
	return c, nil
}

// GetByBillable returns the customer owned by billable.
func (r *CustomerRepository) GetByBillable(ctx context.Context, billable types.Billable) (*types.Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE billable_type = $1 AND billable_id = $2`,
		billable.Type, billable.ID,
	))
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundCustomer, "customer")
	}
	return c, nil
}

// Upsert inserts c or refreshes name and email of the existing row with the
// same Paddle id. c.ID is set from the stored row.
func (r *CustomerRepository) Upsert(ctx context.Context, c *types.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO customers (id, paddle_id, billable_type, billable_id, name, email, trial_ends_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT (paddle_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     email = EXCLUDED.email,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		c.ID, c.PaddleID, c.Billable.Type, c.Billable.ID, c.Name, c.Email, c.TrialEndsAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert customer", err)
	}
	return nil
}

// UpdateContact sets name and email for a known Paddle customer.
func (r *CustomerRepository) UpdateContact(ctx context.Context, paddleID, name, email string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE customers SET name = $2, email = $3, updated_at = NOW() WHERE paddle_id = $1`,
		paddleID, name, email,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update customer", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCustomer, "customer not found", nil)
	}
	return nil
}

// EndGenericTrial clears a generic trial once a real subscription exists. It
// is a no-op when no trial is set.
func (r *CustomerRepository) EndGenericTrial(ctx context.Context, billable types.Billable, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE customers
		 SET trial_ends_at = NULL, updated_at = $3
		 WHERE billable_type = $1 AND billable_id = $2 AND trial_ends_at IS NOT NULL`,
		billable.Type, billable.ID, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to end generic trial", err)
	}
	return nil
}
