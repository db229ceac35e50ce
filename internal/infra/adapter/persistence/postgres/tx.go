package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Transactor implements repository.Transactor against a *sql.DB, following
// the same BeginTx/defer-Rollback/Commit shape as the teacher's
// RawSignalRepo.Create, generalized so the clusterer usecase can wrap its
// whole multi-step assignment protocol in one transaction.
type Transactor struct{ db *sql.DB }

// NewTransactor builds a Transactor over db.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx begins a transaction, runs fn with it attached to ctx, and
// commits if fn returns nil. Any error from fn or from Commit rolls back
// and is returned unwrapped so callers can match sentinel errors like
// entity.ErrAlreadyExists.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WithinTx: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("WithinTx: commit: %w", err)
	}
	return nil
}

type txKey struct{}

// WithTx stores tx in ctx so repository methods reach it via txFromContext
// instead of threading a *sql.Tx through every call. Used by the clusterer
// to run its whole assignment protocol — lock, candidate search, create,
// attach — against one transaction.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
