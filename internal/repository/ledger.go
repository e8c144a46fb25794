package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"claims-engine/internal/model"
)

// LoadAccount loads an account. Inside a transaction the row stays locked
// until commit, which serializes postings across processes.
func (r *Postgres) LoadAccount(ctx context.Context, id string) (*model.Account, error) {
	query := `
		SELECT id, owner_kind, owner_id, closed, created_at
		FROM accounts
		WHERE id = $1` + r.forUpdate()

	rows, err := r.q.Query(ctx, query, id)
	if err != nil {
		return nil, mapErr("load account", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.Account])
	if err != nil {
		return nil, mapRowErr("load account", "account", id, err)
	}
	return a, nil
}

func (r *Postgres) SaveAccount(ctx context.Context, a *model.Account) error {
	const query = `
		INSERT INTO accounts (id, owner_kind, owner_id, closed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET closed = EXCLUDED.closed`
	_, err := r.q.Exec(ctx, query, a.ID, a.OwnerKind, a.OwnerID, a.Closed, a.CreatedAt)
	return mapErr("save account", err)
}

// AccountHead returns the balance and sequence of the latest transaction.
func (r *Postgres) AccountHead(ctx context.Context, accountID string) (AccountHead, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return AccountHead{}, mapErr("load account head", err)
	}
	if !exists {
		return AccountHead{}, mapRowErr("load account head", "account", accountID, pgx.ErrNoRows)
	}

	const query = `
		SELECT balance_after, seq
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT 1`

	var head AccountHead
	err := r.q.QueryRow(ctx, query, accountID).Scan(&head.Balance, &head.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountHead{}, nil
	}
	if err != nil {
		return AccountHead{}, mapErr("load account head", err)
	}
	return head, nil
}

// AppendTransaction inserts an immutable ledger row. A duplicate sequence
// number surfaces as an illegal-state error.
func (r *Postgres) AppendTransaction(ctx context.Context, tx *model.Transaction) error {
	const query = `
		INSERT INTO ledger_transactions
			(id, account_id, seq, type, amount, actor_id, description, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		tx.ID, tx.AccountID, tx.Seq, tx.Type, tx.Amount,
		tx.ActorID, tx.Description, tx.BalanceAfter, tx.CreatedAt)
	return mapErr("append transaction", err)
}

// ListTransactions returns an account's transactions, newest first.
func (r *Postgres) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, seq, account_id, type, amount, actor_id, description, balance_after, created_at
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.q.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, mapErr("list transactions", err)
	}
	txs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Transaction])
	if err != nil {
		return nil, mapErr("scan transactions", err)
	}
	return txs, nil
}
