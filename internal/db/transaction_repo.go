package db

import (
	"context"

	"github.com/google/uuid"

	"cashier/internal/types"
)

// TransactionRepository persists Paddle transactions (receipts).
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a TransactionRepository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// GetByPaddleID returns the transaction with the given Paddle id.
func (r *TransactionRepository) GetByPaddleID(ctx context.Context, paddleID string) (*types.Transaction, error) {
	var t types.Transaction
	err := r.db.QueryRow(ctx,
		`SELECT id, billable_type, billable_id, paddle_id, paddle_subscription_id, invoice_number,
		        status, total, tax, currency, billed_at, created_at, updated_at
		 FROM transactions WHERE paddle_id = $1`,
		paddleID,
	).Scan(
		&t.ID,
		&t.Billable.Type,
		&t.Billable.ID,
		&t.PaddleID,
		&t.PaddleSubscriptionID,
		&t.InvoiceNumber,
		&t.Status,
		&t.Total,
		&t.Tax,
		&t.Currency,
		&t.BilledAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, types.ErrCodeNotFoundTransaction, "transaction")
	}
	return &t, nil
}

// Upsert inserts t or updates status, totals and invoice number of the
// existing row with the same Paddle id.
func (r *TransactionRepository) Upsert(ctx context.Context, t *types.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO transactions (id, billable_type, billable_id, paddle_id, paddle_subscription_id,
		                           invoice_number, status, total, tax, currency, billed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		 ON CONFLICT (paddle_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     invoice_number = EXCLUDED.invoice_number,
		     total = EXCLUDED.total,
		     tax = EXCLUDED.tax,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		t.ID, t.Billable.Type, t.Billable.ID, t.PaddleID, t.PaddleSubscriptionID,
		t.InvoiceNumber, t.Status, t.Total, t.Tax, t.Currency, t.BilledAt,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert transaction", err)
	}
	return nil
}

// UpdateStatus sets status and totals for a known transaction.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, paddleID string, status types.TransactionStatus, total, tax string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $2, total = $3, tax = $4, updated_at = NOW() WHERE paddle_id = $1`,
		paddleID, status, total, tax,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTransaction, "transaction not found", nil)
	}
	return nil
}
