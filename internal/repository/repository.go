// Package repository provides the storage port of the engine and its
// PostgreSQL and in-memory implementations.
package repository

import (
	"context"

	"claims-engine/internal/model"
)

// AccountHead is the latest state of an account's log.
type AccountHead struct {
	Balance model.Money
	Seq     int64 // sequence of the latest transaction, 0 for an empty log
}

// Repository is the durable store consumed by the services. Lookups of a
// single missing entity fail with an apperr not-found error; collaborator
// failures surface as apperr storage errors.
type Repository interface {
	// WithTx runs fn so that all its writes become durable together or not
	// at all. Calls made on tx inside fn join the transaction.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	LoadClaim(ctx context.Context, id string) (*model.Claim, error)
	SaveClaim(ctx context.Context, c *model.Claim) error
	DeleteClaim(ctx context.Context, id string) error

	LoadGroup(ctx context.Context, id string) (*model.CustomGroup, error)
	SaveGroup(ctx context.Context, g *model.CustomGroup) error
	DeleteGroup(ctx context.Context, id string) error
	ListGroups(ctx context.Context, claimID string) ([]*model.CustomGroup, error)

	LoadAccount(ctx context.Context, id string) (*model.Account, error)
	SaveAccount(ctx context.Context, a *model.Account) error
	AccountHead(ctx context.Context, accountID string) (AccountHead, error)
	AppendTransaction(ctx context.Context, tx *model.Transaction) error
	ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]*model.Transaction, error)

	LoadNation(ctx context.Context, id string) (*model.Nation, error)
	SaveNation(ctx context.Context, n *model.Nation) error
	DeleteNation(ctx context.Context, id string) error
	FindNationByClaim(ctx context.Context, claimID string) (*model.Nation, error)

	// LoadRelation returns the stored edge type, RelationNeutral when absent.
	LoadRelation(ctx context.Context, a, b string) (model.RelationType, error)
	SaveRelation(ctx context.Context, r *model.NationRelation) error
	DeleteRelation(ctx context.Context, a, b string) error
	ListRelations(ctx context.Context, nationID string) ([]*model.NationRelation, error)
	DeleteRelationsOf(ctx context.Context, nationID string) error

	LoadWar(ctx context.Context, id string) (*model.War, error)
	SaveWar(ctx context.Context, w *model.War) error
	// TransitionWar stores w only if the stored state still equals from.
	// It reports whether the write happened.
	TransitionWar(ctx context.Context, w *model.War, from model.WarState) (bool, error)
	FindOpenWar(ctx context.Context, a, b string) (*model.War, error)
	ListWarsByState(ctx context.Context, state model.WarState) ([]*model.War, error)
	ListOpenWarsOf(ctx context.Context, nationID string) ([]*model.War, error)

	LoadShield(ctx context.Context, nationID string) (*model.WarShield, error)
	SaveShield(ctx context.Context, s *model.WarShield) error
	DeleteShield(ctx context.Context, nationID string) error

	LoadTribute(ctx context.Context, id string) (*model.WarTribute, error)
	SaveTribute(ctx context.Context, t *model.WarTribute) error
	ListTributes(ctx context.Context, warID string) ([]*model.WarTribute, error)
}
