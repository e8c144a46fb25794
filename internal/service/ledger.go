package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"claims-engine/internal/model"
	"claims-engine/internal/pkg/apperr"
	"claims-engine/internal/repository"
)

// Ledger posts transactions to claim and nation accounts. The balance of an
// account is always the BalanceAfter of its latest transaction, which equals
// the signed sum of its log. Debits never take a balance below zero.
type Ledger struct {
	Deps
}

// NewLedger creates a new Ledger.
func NewLedger(d Deps) *Ledger {
	return &Ledger{Deps: d}
}

// OpenAccount creates an empty account for an owner.
func (l *Ledger) OpenAccount(ctx context.Context, kind model.OwnerKind, ownerID string) (*model.Account, error) {
	a := &model.Account{ID: newID(), OwnerKind: kind, OwnerID: ownerID, CreatedAt: l.now()}
	if err := l.Repo.SaveAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CloseAccount rejects further postings. The history stays readable.
func (l *Ledger) CloseAccount(ctx context.Context, accountID string) error {
	return l.Locks.WithLock(ctx, accountKey(accountID), func() error {
		return l.Repo.WithTx(ctx, func(tx repository.Repository) error {
			return closeAccount(ctx, tx, accountID)
		})
	})
}

func closeAccount(ctx context.Context, tx repository.Repository, accountID string) error {
	a, err := tx.LoadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if a.Closed {
		return nil
	}
	a.Closed = true
	return tx.SaveAccount(ctx, a)
}

// Deposit credits amount to an account.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount model.Money, actorID, desc string) (*model.Transaction, error) {
	return l.post(ctx, accountID, model.TxDeposit, amount, actorID, desc)
}

// Withdraw debits amount, failing with an insufficient-funds error when the
// balance does not cover it.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount model.Money, actorID, desc string) (*model.Transaction, error) {
	return l.post(ctx, accountID, model.TxWithdraw, amount, actorID, desc)
}

// ChargeUpkeep debits a system upkeep charge. Discounts are applied by the caller.
func (l *Ledger) ChargeUpkeep(ctx context.Context, accountID string, amount model.Money, desc string) (*model.Transaction, error) {
	return l.post(ctx, accountID, model.TxUpkeep, amount, SystemActor, desc)
}

// ChargeTax debits a tax.
func (l *Ledger) ChargeTax(ctx context.Context, accountID string, amount model.Money, actorID, desc string) (*model.Transaction, error) {
	return l.post(ctx, accountID, model.TxTax, amount, actorID, desc)
}

// Refund credits a refund.
func (l *Ledger) Refund(ctx context.Context, accountID string, amount model.Money, actorID, desc string) (*model.Transaction, error) {
	return l.post(ctx, accountID, model.TxRefund, amount, actorID, desc)
}

func (l *Ledger) post(ctx context.Context, accountID string, typ model.TxType, amount model.Money, actorID, desc string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.Invalidf("amount must be positive, got %s", amount)
	}

	var out *model.Transaction
	err := l.Locks.WithLock(ctx, accountKey(accountID), func() error {
		return l.Repo.WithTx(ctx, func(tx repository.Repository) error {
			var err error
			out, err = l.postIn(ctx, tx, accountID, typ, signed(typ, amount), actorID, desc)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transfer moves amount between two accounts as one unit: a debit leg on
// from and a credit leg on to, both of type typ.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount model.Money, typ model.TxType, actorID, desc string) (debit, credit *model.Transaction, err error) {
	if amount <= 0 {
		return nil, nil, apperr.Invalidf("amount must be positive, got %s", amount)
	}
	if fromID == toID {
		return nil, nil, apperr.Invalidf("cannot transfer to the same account")
	}
	if !typ.Valid() || typ.IsCredit() {
		return nil, nil, apperr.Invalidf("transaction type %q cannot be used for transfers", typ)
	}

	err = l.Locks.WithLocks(ctx, []string{accountKey(fromID), accountKey(toID)}, func() error {
		return l.Repo.WithTx(ctx, func(tx repository.Repository) error {
			var err error
			debit, credit, err = l.transferIn(ctx, tx, fromID, toID, amount, typ, actorID, desc)
			return err
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return debit, credit, nil
}

func (l *Ledger) transferIn(ctx context.Context, tx repository.Repository, fromID, toID string, amount model.Money, typ model.TxType, actorID, desc string) (*model.Transaction, *model.Transaction, error) {
	debit, err := l.postIn(ctx, tx, fromID, typ, -amount, actorID, desc)
	if err != nil {
		return nil, nil, err
	}
	credit, err := l.postIn(ctx, tx, toID, typ, amount, actorID, desc)
	if err != nil {
		return nil, nil, err
	}
	return debit, credit, nil
}

// postIn appends one signed entry inside tx. The caller holds the account lock.
func (l *Ledger) postIn(ctx context.Context, tx repository.Repository, accountID string, typ model.TxType, amount model.Money, actorID, desc string) (*model.Transaction, error) {
	a, err := tx.LoadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.Closed {
		return nil, apperr.IllegalStatef("account %s is closed", accountID)
	}

	head, err := tx.AccountHead(ctx, accountID)
	if err != nil {
		return nil, err
	}
	after, ok := head.Balance.Add(amount)
	if !ok {
		return nil, apperr.Invalidf("posting %s to account %s overflows its balance %s", amount, accountID, head.Balance)
	}
	if amount < 0 && after < 0 {
		return nil, apperr.InsufficientFundsf("account %s holds %s, needs %s", accountID, head.Balance, -amount)
	}

	t := &model.Transaction{
		ID:           newID(),
		Seq:          head.Seq + 1,
		AccountID:    accountID,
		Type:         typ,
		Amount:       amount,
		ActorID:      actorRef(actorID),
		Description:  optional(desc),
		BalanceAfter: after,
		CreatedAt:    l.now(),
	}
	if err := tx.AppendTransaction(ctx, t); err != nil {
		return nil, err
	}

	log.Debug().
		Str("account", accountID).
		Str("type", string(typ)).
		Str("amount", amount.String()).
		Str("balance", after.String()).
		Msg("Ledger entry posted")
	return t, nil
}

func signed(typ model.TxType, amount model.Money) model.Money {
	if typ.IsCredit() {
		return amount
	}
	return -amount
}

// Balance returns the current balance of an account.
func (l *Ledger) Balance(ctx context.Context, accountID string) (model.Money, error) {
	head, err := l.Repo.AccountHead(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return head.Balance, nil
}

// GetHistory returns transactions newest first.
func (l *Ledger) GetHistory(ctx context.Context, accountID string, limit, offset int) ([]*model.Transaction, error) {
	if limit <= 0 || offset < 0 {
		return nil, apperr.Invalidf("invalid page limit=%d offset=%d", limit, offset)
	}
	if _, err := l.Repo.LoadAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return l.Repo.ListTransactions(ctx, accountID, limit, offset)
}
