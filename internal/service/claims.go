package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"claims-engine/internal/benefit"
	"claims-engine/internal/model"
	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/apperr"
	"claims-engine/internal/repository"
)

// Claims manages the lifecycle of claims: creation, territory, levels,
// upkeep and deletion.
type Claims struct {
	Deps
	ledger *Ledger
	curve  *benefit.Curve
}

// NewClaims creates a new Claims service.
func NewClaims(d Deps, ledger *Ledger, curve *benefit.Curve) *Claims {
	return &Claims{Deps: d, ledger: ledger, curve: curve}
}

// GetClaim loads a claim.
func (s *Claims) GetClaim(ctx context.Context, claimID string) (*model.Claim, error) {
	return s.Repo.LoadClaim(ctx, claimID)
}

// CreateClaim creates a level-1 claim with its bank account and the reserved
// owner group. Cells already owned by another claim are rejected.
func (s *Claims) CreateClaim(ctx context.Context, ownerID, region string, cells []model.Cell) (*model.Claim, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(region) == "" {
		return nil, apperr.Invalidf("owner and region are required")
	}
	cells = uniqueCells(nil, cells)
	if len(cells) == 0 {
		return nil, apperr.Invalidf("a claim needs at least one cell")
	}

	now := s.now()
	c := &model.Claim{
		ID:        newID(),
		OwnerID:   ownerID,
		Region:    region,
		Cells:     cells,
		AccountID: newID(),
		Level:     1,
		Members:   make(map[string]model.GroupRef),
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := &model.Account{ID: c.AccountID, OwnerKind: model.OwnerClaim, OwnerID: c.ID, CreatedAt: now}
	owner := &model.CustomGroup{
		ID:          newID(),
		ClaimID:     c.ID,
		Name:        model.OwnerGroupName,
		Priority:    math.MaxInt32,
		Permissions: model.UniversalPermissions,
		Reserved:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.Locks.WithLock(ctx, claimKey(c.ID), func() error {
		return s.Repo.WithTx(ctx, func(tx repository.Repository) error {
			if err := tx.SaveAccount(ctx, account); err != nil {
				return err
			}
			if err := tx.SaveClaim(ctx, c); err != nil {
				return err
			}
			return tx.SaveGroup(ctx, owner)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("claim", c.ID).Str("owner", ownerID).Str("region", region).Int("cells", len(cells)).Msg("Claim created")
	return c, nil
}

// DeleteClaim removes a claim with its groups, members and nation
// membership. Its account is closed; the ledger history is kept. The leader
// claim of a nation cannot be deleted before the nation is disbanded.
func (s *Claims) DeleteClaim(ctx context.Context, claimID, actorID string) error {
	c, err := s.Repo.LoadClaim(ctx, claimID)
	if err != nil {
		return err
	}
	keys := []string{claimKey(claimID), accountKey(c.AccountID)}
	nation, err := s.Repo.FindNationByClaim(ctx, claimID)
	switch {
	case err == nil:
		keys = append(keys, nationKey(nation.ID))
	case !errors.Is(err, apperr.ErrNotFound):
		return err
	}

	var members []string
	err = s.Locks.WithLocks(ctx, keys, func() error {
		return s.Repo.WithTx(ctx, func(tx repository.Repository) error {
			c, err := tx.LoadClaim(ctx, claimID)
			if err != nil {
				return err
			}
			if err := checkActor(actorID); err != nil {
				return err
			}
			if actorID != c.OwnerID {
				return apperr.Declined(apperr.ReasonNoPermission, "only the owner can delete claim %s", claimID)
			}

			n, err := tx.FindNationByClaim(ctx, claimID)
			switch {
			case err == nil:
				if n.LeaderClaimID == claimID {
					return apperr.IllegalStatef("claim %s leads nation %s; disband it first", claimID, n.ID)
				}
				delete(n.Members, claimID)
				if err := tx.SaveNation(ctx, n); err != nil {
					return err
				}
			case !errors.Is(err, apperr.ErrNotFound):
				return err
			}

			members = members[:0]
			for m := range c.Members {
				members = append(members, m)
			}
			if err := tx.DeleteClaim(ctx, claimID); err != nil {
				return err
			}
			return closeAccount(ctx, tx, c.AccountID)
		})
	})
	if err != nil {
		return err
	}

	log.Info().Str("claim", claimID).Int("members", len(members)).Msg("Claim deleted")
	var out outbox
	for _, m := range members {
		out.add(m, notify.KindClaimDeleted, notify.Payload{"claim": claimID})
	}
	s.flush(ctx, out)
	return nil
}

// AddCells extends a claim. Requires MANAGE_SETTINGS.
func (s *Claims) AddCells(ctx context.Context, claimID, actorID string, cells []model.Cell) (*model.Claim, error) {
	if len(cells) == 0 {
		return nil, apperr.Invalidf("no cells given")
	}

	var out *model.Claim
	err := s.Locks.WithLock(ctx, claimKey(claimID), func() error {
		return s.Repo.WithTx(ctx, func(tx repository.Repository) error {
			c, err := tx.LoadClaim(ctx, claimID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, tx, c, actorID, model.PermManageSettings); err != nil {
				return err
			}
			c.Cells = uniqueCells(c.Cells, cells)
			c.UpdatedAt = s.now()
			out = c
			return tx.SaveClaim(ctx, c)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func uniqueCells(have, add []model.Cell) []model.Cell {
	seen := make(map[model.Cell]struct{}, len(have)+len(add))
	out := make([]model.Cell, 0, len(have)+len(add))
	for _, list := range [][]model.Cell{have, add} {
		for _, cell := range list {
			if _, ok := seen[cell]; ok {
				continue
			}
			seen[cell] = struct{}{}
			out = append(out, cell)
		}
	}
	return out
}

// LevelUp raises a claim one level, charging cost to its account as TAX in
// the same unit. A zero cost is free.
func (s *Claims) LevelUp(ctx context.Context, claimID, actorID string, cost model.Money) (*model.Claim, error) {
	if cost < 0 {
		return nil, apperr.Invalidf("level cost must not be negative")
	}
	c, err := s.Repo.LoadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	var out *model.Claim
	err = s.Locks.WithLocks(ctx, []string{claimKey(claimID), accountKey(c.AccountID)}, func() error {
		return s.Repo.WithTx(ctx, func(tx repository.Repository) error {
			c, err := tx.LoadClaim(ctx, claimID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, tx, c, actorID, model.PermManageSettings); err != nil {
				return err
			}
			if c.Level >= s.curve.MaxLevel() {
				return apperr.IllegalStatef("claim %s is already at max level %d", claimID, s.curve.MaxLevel())
			}
			if cost > 0 {
				if _, err := s.ledger.postIn(ctx, tx, c.AccountID, model.TxTax, -cost, actorID, "claim level up"); err != nil {
					return err
				}
			}
			c.Level++
			c.UpdatedAt = s.now()
			out = c
			return tx.SaveClaim(ctx, c)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("claim", claimID).Int("level", out.Level).Msg("Claim leveled up")
	s.flush(ctx, outbox{{target: out.OwnerID, kind: notify.KindClaimLevelUp, payload: notify.Payload{"claim": claimID}}})
	return out, nil
}

// Benefits returns the perks of a claim's current level.
func (s *Claims) Benefits(ctx context.Context, claimID string) (benefit.Benefits, error) {
	c, err := s.Repo.LoadClaim(ctx, claimID)
	if err != nil {
		return benefit.Benefits{}, err
	}
	return s.curve.ForLevel(c.Level), nil
}

// UpkeepDue returns base reduced by the level discount of the claim.
func (s *Claims) UpkeepDue(c *model.Claim, base model.Money) model.Money {
	pct := s.curve.ForLevel(c.Level).UpkeepDiscountPct
	return base - base.Percent(pct)
}

// CollectUpkeep charges the discounted upkeep to a claim. It returns a nil
// transaction when the discount waives the whole charge.
func (s *Claims) CollectUpkeep(ctx context.Context, claimID string, base model.Money) (*model.Transaction, error) {
	if base <= 0 {
		return nil, apperr.Invalidf("upkeep must be positive")
	}
	c, err := s.Repo.LoadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	due := s.UpkeepDue(c, base)
	if due <= 0 {
		return nil, nil
	}

	t, err := s.ledger.ChargeUpkeep(ctx, c.AccountID, due, "claim upkeep")
	if err != nil {
		return nil, err
	}
	s.flush(ctx, outbox{{target: c.OwnerID, kind: notify.KindUpkeepCharged, payload: notify.Payload{
		"claim":  claimID,
		"amount": due.String(),
	}}})
	return t, nil
}
