package database

import (
	"context"
	"database/sql"
)

// Executor is the subset of *sql.DB and *sql.Tx used by repositories.
// Repositories resolve their executor from the context so the same
// methods run against the pool directly or inside a transaction,
// depending on what the caller set up.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// InjectTx stores a transaction in the context for repositories to pick up.
func InjectTx(ctx context.Context, tx Executor) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Extract returns the transaction stored in ctx, or the fallback when
// no transaction is in flight.
func Extract(ctx context.Context, fallback Executor) Executor {
	if exec, ok := ctx.Value(txKey{}).(Executor); ok {
		return exec
	}
	return fallback
}

// Runner executes a function inside a database transaction. Services
// depend on this interface rather than *sql.DB so tests can substitute
// a pass-through implementation.
type Runner interface {
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxRunner runs functions inside a *sql.DB transaction. Nested Exec
// calls join the transaction already stored in the context instead of
// opening a second one.
type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner { return &TxRunner{db: db} }

// Exec begins a transaction, injects it into the context and invokes fn.
// The transaction is committed when fn returns nil and rolled back
// otherwise.
func (r *TxRunner) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(Executor); ok {
		return fn(ctx)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(InjectTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
