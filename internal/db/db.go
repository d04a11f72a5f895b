// Package db holds the Postgres repositories for billing state and the
// webhook event ledger. Every repository takes a DBTX, satisfied by both
// *pgxpool.Pool and pgx.Tx, so the same code runs inside or outside a
// transaction.
package db

import (
	"context"
	_ "embed"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cashier/internal/types"
)

// DBTX is the subset of *pgxpool.Pool and pgx.Tx the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

//go:embed schema.sql
var schema string

// Migrate applies the idempotent schema. Used for local runs and tests;
// deployed environments manage the schema out of band.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply schema", err)
	}
	return nil
}

// notFoundOr maps pgx.ErrNoRows to a not-found AppError with code and any
// other error to an internal database error.
func notFoundOr(err error, code types.ErrorCode, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return types.NewAppError(code, what+" not found", err)
	}
	return types.NewAppError(types.ErrCodeInternalDB, "failed to load "+what, err)
}
