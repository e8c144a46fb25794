package model

import "time"

// OwnerKind identifies what an account belongs to.
type OwnerKind string

const (
	OwnerClaim  OwnerKind = "claim"
	OwnerNation OwnerKind = "nation"
)

// Account is a ledger root. Its balance is derived from the transaction log.
type Account struct {
	ID        string    `db:"id"`
	OwnerKind OwnerKind `db:"owner_kind"`
	OwnerID   string    `db:"owner_id"`
	Closed    bool      `db:"closed"`
	CreatedAt time.Time `db:"created_at"`
}

// TxType categorizes a ledger transaction.
type TxType string

// Transaction types.
const (
	TxDeposit   TxType = "DEPOSIT"
	TxWithdraw  TxType = "WITHDRAW"
	TxUpkeep    TxType = "UPKEEP"
	TxTax       TxType = "TAX"
	TxRefund    TxType = "REFUND"
	TxNationTax TxType = "NATION_TAX"
)

// IsCredit reports whether transactions of this type add to the balance.
// NATION_TAX is signed per leg: negative on the payer, positive on the payee.
func (t TxType) IsCredit() bool {
	return t == TxDeposit || t == TxRefund
}

// Valid reports whether t is a defined type.
func (t TxType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdraw, TxUpkeep, TxTax, TxRefund, TxNationTax:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID           string    `db:"id"`
	Seq          int64     `db:"seq"` // per-account sequence, starting at 1
	AccountID    string    `db:"account_id"`
	Type         TxType    `db:"type"`
	Amount       Money     `db:"amount"` // signed
	ActorID      *string   `db:"actor_id"`
	Description  *string   `db:"description"`
	BalanceAfter Money     `db:"balance_after"`
	CreatedAt    time.Time `db:"created_at"`
}
