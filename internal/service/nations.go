package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"claims-engine/internal/model"
	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/apperr"
	"claims-engine/internal/repository"
)

// Nations manages nation founding, membership, roles, taxes and disbanding.
type Nations struct {
	Deps
	ledger *Ledger
}

// NewNations creates a new Nations service.
func NewNations(d Deps, ledger *Ledger) *Nations {
	return &Nations{Deps: d, ledger: ledger}
}

// GetNation loads a nation.
func (s *Nations) GetNation(ctx context.Context, nationID string) (*model.Nation, error) {
	return s.Repo.LoadNation(ctx, nationID)
}

// NationOf returns the nation a claim belongs to.
func (s *Nations) NationOf(ctx context.Context, claimID string) (*model.Nation, error) {
	return s.Repo.FindNationByClaim(ctx, claimID)
}

// Found creates a nation led by leaderClaimID, with its own treasury.
// actorID must own the leader claim.
func (s *Nations) Found(ctx context.Context, name, leaderClaimID, actorID string) (*model.Nation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalidf("nation name is required")
	}

	now := s.now()
	n := &model.Nation{
		ID:                newID(),
		Name:              name,
		LeaderClaimID:     leaderClaimID,
		FoundedAt:         now,
		Level:             1,
		TreasuryAccountID: newID(),
		Members:           map[string]model.NationRole{leaderClaimID: model.RoleLeader},
	}
	treasury := &model.Account{ID: n.TreasuryAccountID, OwnerKind: model.OwnerNation, OwnerID: n.ID, CreatedAt: now}

	err := s.Locks.WithLocks(ctx, []string{claimKey(leaderClaimID), nationKey(n.ID)}, func() error {
		return s.Repo.WithTx(ctx, func(tx repository.Repository) error {
			c, err := tx.LoadClaim(ctx, leaderClaimID)
			if err != nil {
				return err
			}
			if err := checkActor(actorID); err != nil {
				return err
			}
			if actorID != c.OwnerID {
				return apperr.Declined(apperr.ReasonNoPermission, "only the owner of claim %s can found a nation with it", leaderClaimID)
			}
			if err := checkNationless(ctx, tx, leaderClaimID); err != nil {
				return err
			}
			if err := tx.SaveAccount(ctx, treasury); err != nil {
				return err
			}
			return tx.SaveNation(ctx, n)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("nation", n.ID).Str("name", name).Str("leader", leaderClaimID).Msg("Nation founded")
	s.flush(ctx, outbox{{target: n.ID, kind: notify.KindNationFounded, payload: notify.Payload{"name": name}}})
	return n, nil
}

func checkNationless(ctx context.Context, tx repository.Repository, claimID string) error {
	n, err := tx.FindNationByClaim(ctx, claimID)
	if err == nil {
		return apperr.IllegalStatef("claim %s already belongs to nation %s", claimID, n.ID)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

// Disband dissolves a nation. Its open wars end with a DISBANDED outcome and
// are kept; relations, shield and memberships are removed; the treasury is
// closed. Only the owner of the leader claim may disband.
func (s *Nations) Disband(ctx context.Context, nationID, actorID string) error {
	n, err := s.Repo.LoadNation(ctx, nationID)
	if err != nil {
		return err
	}
	wars, err := s.Repo.ListOpenWarsOf(ctx, nationID)
	if err != nil {
		return err
	}
	keys := []string{nationKey(nationID), accountKey(n.TreasuryAccountID)}
	for _, w := range wars {
		keys = append(keys, warKey(w.ID))
	}

	var (
		ended   []*model.War
		members []string
	)
	err = s.Locks.WithLocks(ctx, keys, func() error {
		return s.Repo.WithTx(ctx, func(tx repository.Repository) error {
			n, err := tx.LoadNation(ctx, nationID)
			if err != nil {
				return err
			}
			if err := s.requireRole(ctx, tx, n, actorID, model.RoleLeader); err != nil {
				return err
			}

			wars, err := tx.ListOpenWarsOf(ctx, nationID)
			if err != nil {
				return err
			}
			now := s.now()
			ended = ended[:0]
			for _, w := range wars {
				from := w.State
				w.State = model.WarEnded
				w.EndedAt = &now
				w.Outcome = &model.WarOutcome{Kind: model.OutcomeDisbanded, WinnerID: w.Opponent(nationID), LoserID: nationID}
				ok, err := tx.TransitionWar(ctx, w, from)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.IllegalStatef("war %s changed state during disband", w.ID)
				}
				if err := expireTributes(ctx, tx, w.ID, "", now); err != nil {
					return err
				}
				ended = append(ended, w)
			}

			if err := tx.DeleteRelationsOf(ctx, nationID); err != nil {
				return err
			}
			if err := tx.DeleteShield(ctx, nationID); err != nil {
				return err
			}
			members = members[:0]
			for claimID := range n.Members {
				members = append(members, claimID)
			}
			if err := tx.DeleteNation(ctx, nationID); err != nil {
				return err
			}
			return closeAccount(ctx, tx, n.TreasuryAccountID)
		})
	})
	if err != nil {
		return err
	}

	log.Info().Str("nation", nationID).Int("wars_ended", len(ended)).Int("members", len(members)).Msg("Nation disbanded")
	out := outbox{{target: nationID, kind: notify.KindNationDisbanded, payload: notify.Payload{"name": n.Name}}}
	for _, w := range ended {
		out.add(w.Opponent(nationID), notify.KindWarEnded, notify.Payload{
			"war":     w.ID,
			"outcome": string(model.OutcomeDisbanded),
		})
	}
	for _, claimID := range members {
		out.add(claimID, notify.KindNationLeft, notify.Payload{"nation": nationID})
	}
	s.flush(ctx, out)
	return nil
}

// AddMember brings a claim into a nation as MEMBER. The actor must own the
// leader or an officer claim.
func (s *Nations) AddMember(ctx context.Context, nationID, claimID, actorID string) (*model.Nation, error) {
	var out *model.Nation
	err := s.Locks.WithLocks(ctx, []string{nationKey(nationID), claimKey(claimID)}, func() error {
		return s.Repo.WithTx(ctx, func(tx repository.Repository) error {
			n, err := tx.LoadNation(ctx, nationID)
			if err != nil {
				return err
			}
			if err := s.requireRole(ctx, tx, n, actorID, model.RoleLeader, model.RoleOfficer); err != nil {
				return err
			}
			if _, err := tx.LoadClaim(ctx, claimID); err != nil {
				return err
			}
			if err := checkNationless(ctx, tx, claimID); err != nil {
				return err
			}
			n.Members[claimID] = model.RoleMember
			out = n
			return tx.SaveNation(ctx, n)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("nation", nationID).Str("claim", claimID).Msg("Claim joined nation")
	s.flush(ctx, outbox{{target: claimID, kind: notify.KindNationJoined, payload: notify.Payload{"nation": nationID}}})
	return out, nil
}

// RemoveMember takes a claim out of a nation. The leader claim cannot leave;
// the owner of a claim may always take it out.
func (s *Nations) RemoveMember(ctx context.Context, nationID, claimID, actorID string) (*model.Nation, error) {
	var out *model.Nation
	err := s.Locks.WithLocks(ctx, []string{nationKey(nationID), claimKey(claimID)}, func() error {
		return s.Repo.WithTx(ctx, func(tx repository.Repository) error {
			n, err := tx.LoadNation(ctx, nationID)
			if err != nil {
				return err
			}
			role, ok := n.Members[claimID]
			if !ok {
				return apperr.NotFoundf("claim %s is not in nation %s", claimID, nationID)
			}
			if role == model.RoleLeader {
				return apperr.IllegalStatef("the leader claim cannot leave nation %s", nationID)
			}
			if !s.ownsClaim(ctx, tx, claimID, actorID) {
				if err := s.requireRole(ctx, tx, n, actorID, model.RoleLeader, model.RoleOfficer); err != nil {
					return err
				}
			}
			delete(n.Members, claimID)
			out = n
			return tx.SaveNation(ctx, n)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("nation", nationID).Str("claim", claimID).Msg("Claim left nation")
	s.flush(ctx, outbox{{target: claimID, kind: notify.KindNationLeft, payload: notify.Payload{"nation": nationID}}})
	return out, nil
}

// SetRole changes the role of a member claim. Only the leader may do this.
// Making another claim LEADER hands over leadership; the old leader claim
// becomes an OFFICER.
func (s *Nations) SetRole(ctx context.Context, nationID, claimID, actorID string, role model.NationRole) (*model.Nation, error) {
	if !role.Valid() {
		return nil, apperr.Invalidf("unknown nation role %q", role)
	}

	var out *model.Nation
	err := s.Locks.WithLock(ctx, nationKey(nationID), func() error {
		return s.Repo.WithTx(ctx, func(tx repository.Repository) error {
			n, err := tx.LoadNation(ctx, nationID)
			if err != nil {
				return err
			}
			if err := s.requireRole(ctx, tx, n, actorID, model.RoleLeader); err != nil {
				return err
			}
			current, ok := n.Members[claimID]
			if !ok {
				return apperr.NotFoundf("claim %s is not in nation %s", claimID, nationID)
			}
			if current == role {
				out = n
				return nil
			}
			if current == model.RoleLeader {
				return apperr.IllegalStatef("leadership of nation %s must be handed to another claim", nationID)
			}
			if role == model.RoleLeader {
				n.Members[n.LeaderClaimID] = model.RoleOfficer
				n.LeaderClaimID = claimID
			}
			n.Members[claimID] = role
			out = n
			return tx.SaveNation(ctx, n)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("nation", nationID).Str("claim", claimID).Str("role", string(role)).Msg("Nation role changed")
	return out, nil
}

// CollectTax moves amount from every non-leader member claim into the
// treasury as NATION_TAX. Claims that cannot pay are skipped. It returns the
// total collected. Only the leader or an officer may collect.
func (s *Nations) CollectTax(ctx context.Context, nationID string, amount model.Money, actorID string) (model.Money, error) {
	if amount <= 0 {
		return 0, apperr.Invalidf("tax must be positive, got %s", amount)
	}
	n, err := s.Repo.LoadNation(ctx, nationID)
	if err != nil {
		return 0, err
	}
	if err := s.requireRole(ctx, s.Repo, n, actorID, model.RoleLeader, model.RoleOfficer); err != nil {
		return 0, err
	}

	var total model.Money
	for claimID, role := range n.Members {
		if role == model.RoleLeader {
			continue
		}
		c, err := s.Repo.LoadClaim(ctx, claimID)
		if err != nil {
			log.Warn().Err(err).Str("nation", nationID).Str("claim", claimID).Msg("Skipping tax for missing claim")
			continue
		}
		_, _, err = s.ledger.Transfer(ctx, c.AccountID, n.TreasuryAccountID, amount, model.TxNationTax, actorID, "nation tax")
		switch {
		case err == nil:
			total += amount
		case errors.Is(err, apperr.ErrInsufficientFunds):
			log.Info().Str("nation", nationID).Str("claim", claimID).Msg("Claim could not pay nation tax")
		default:
			return total, err
		}
	}

	log.Info().Str("nation", nationID).Str("collected", total.String()).Msg("Nation tax collected")
	return total, nil
}

// requireRole fails unless actorID owns a member claim of n holding one of roles.
func (s *Nations) requireRole(ctx context.Context, r repository.Repository, n *model.Nation, actorID string, roles ...model.NationRole) error {
	if err := checkActor(actorID); err != nil {
		return err
	}
	for claimID, role := range n.Members {
		if !slices.Contains(roles, role) {
			continue
		}
		if s.ownsClaim(ctx, r, claimID, actorID) {
			return nil
		}
	}
	return apperr.Declined(apperr.ReasonNoPermission, "%s holds no %v claim in nation %s", actorID, roles, n.ID)
}

func (s *Nations) ownsClaim(ctx context.Context, r repository.Repository, claimID, actorID string) bool {
	c, err := r.LoadClaim(ctx, claimID)
	return err == nil && c.OwnerID == actorID
}

// expireTributes marks every PENDING tribute of a war EXPIRED, except keep.
func expireTributes(ctx context.Context, tx repository.Repository, warID, keep string, now time.Time) error {
	tributes, err := tx.ListTributes(ctx, warID)
	if err != nil {
		return err
	}
	for _, t := range tributes {
		if t.Status != model.TributePending || t.ID == keep {
			continue
		}
		t.Status = model.TributeExpired
		t.RespondedAt = &now
		if err := tx.SaveTribute(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
