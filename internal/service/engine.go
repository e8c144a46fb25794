package service

import (
	"context"
	"time"

	"claims-engine/internal/benefit"
	"claims-engine/internal/model"
	"claims-engine/internal/pkg/async"
	"claims-engine/internal/pkg/clock"
	"claims-engine/internal/pkg/lock"
)

// Options tune the engine. Zero values take the defaults.
type Options struct {
	Curve           *benefit.Curve
	NoticePeriod    time.Duration
	DeclarationCost model.Money
}

// Engine wires every service over one set of collaborators.
type Engine struct {
	Permissions *Permissions
	Groups      *Groups
	Ledger      *Ledger
	Claims      *Claims
	Nations     *Nations
	Relations   *Relations
	Wars        *Wars
}

// New builds an Engine. Missing locks and clock are created.
func New(d Deps, opts Options) *Engine {
	if d.Locks == nil {
		d.Locks = lock.NewEntityLock()
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	curve := opts.Curve
	if curve == nil {
		curve = benefit.Default(20)
	}

	ledger := NewLedger(d)
	return &Engine{
		Permissions: NewPermissions(d),
		Groups:      NewGroups(d, curve),
		Ledger:      ledger,
		Claims:      NewClaims(d, ledger, curve),
		Nations:     NewNations(d, ledger),
		Relations:   NewRelations(d),
		Wars:        NewWars(d, ledger, opts.NoticePeriod, opts.DeclarationCost),
	}
}

// DepositAsync runs Deposit off the caller's goroutine.
func (e *Engine) DepositAsync(ctx context.Context, accountID string, amount model.Money, actorID, desc string) *async.Future[*model.Transaction] {
	return async.Go(ctx, func(ctx context.Context) (*model.Transaction, error) {
		return e.Ledger.Deposit(ctx, accountID, amount, actorID, desc)
	})
}

// WithdrawAsync runs Withdraw off the caller's goroutine.
func (e *Engine) WithdrawAsync(ctx context.Context, accountID string, amount model.Money, actorID, desc string) *async.Future[*model.Transaction] {
	return async.Go(ctx, func(ctx context.Context) (*model.Transaction, error) {
		return e.Ledger.Withdraw(ctx, accountID, amount, actorID, desc)
	})
}

// DeclareWarAsync runs DeclareWar off the caller's goroutine.
func (e *Engine) DeclareWarAsync(ctx context.Context, attackerID, defenderID, reason string) *async.Future[*model.War] {
	return async.Go(ctx, func(ctx context.Context) (*model.War, error) {
		return e.Wars.DeclareWar(ctx, attackerID, defenderID, reason)
	})
}

// RespondTributeAsync runs RespondTribute off the caller's goroutine.
func (e *Engine) RespondTributeAsync(ctx context.Context, tributeID string, accept bool) *async.Future[*model.War] {
	return async.Go(ctx, func(ctx context.Context) (*model.War, error) {
		return e.Wars.RespondTribute(ctx, tributeID, accept)
	})
}
