// Package storage defines the opaque transactional query interface the
// executor runs against, plus the concrete Postgres and in-memory backends.
package storage

import (
	"context"
)

// Result is the uniform shape returned by every query.
type Result struct {
	Rows     []map[string]any
	RowCount int
}

// Querier is the minimal persistence capability the executor depends on.
// It is treated as opaque: nothing above this package assumes a specific
// storage engine.
type Querier interface {
	// Query runs one statement outside any transaction.
	Query(ctx context.Context, query string, args ...any) (Result, error)

	// Begin opens a transaction handle owned exclusively by the caller.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one open transaction. Commit and Rollback are terminal; a handle
// must not be used after either returns.
type Tx interface {
	Query(ctx context.Context, query string, args ...any) (Result, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func Transaction(ctx context.Context, q Querier, fn func(tx Tx) error) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
