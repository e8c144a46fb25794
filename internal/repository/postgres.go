package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"claims-engine/internal/pkg/apperr"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the pgx-backed Repository.
type Postgres struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// NewPostgres creates a Repository over pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

// WithTx implements Repository. Nested calls join the outer transaction.
func (r *Postgres) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return apperr.WrapStorage("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Postgres{pool: r.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.WrapStorage("commit transaction", err)
	}
	return nil
}

// forUpdate returns the row-lock suffix when running inside a transaction.
func (r *Postgres) forUpdate() string {
	if r.inTx {
		return " FOR UPDATE"
	}
	return ""
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapErr converts driver errors into the apperr taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return apperr.IllegalStatef("%s: conflicts with existing row (%s)", op, pgErr.ConstraintName)
		case foreignKeyViolation:
			return apperr.NotFoundf("%s: referenced row missing (%s)", op, pgErr.ConstraintName)
		}
	}
	return apperr.WrapStorage(op, err)
}

// mapRowErr is mapErr for single-row lookups; no rows becomes NotFound.
func mapRowErr(op, what, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFoundf("%s %s not found", what, id)
	}
	return mapErr(op, err)
}

func collect[T any](rows pgx.Rows, op string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, apperr.WrapStorage(fmt.Sprintf("scan %s", op), err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.WrapStorage(fmt.Sprintf("iterate %s", op), err)
	}
	return out, nil
}

// atomic runs fn inside a transaction, joining the current one if any.
func (r *Postgres) atomic(ctx context.Context, fn func(tx *Postgres) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.WithTx(ctx, func(tx Repository) error {
		return fn(tx.(*Postgres))
	})
}
