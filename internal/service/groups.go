package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"claims-engine/internal/benefit"
	"claims-engine/internal/model"
	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/apperr"
	"claims-engine/internal/repository"
)

// GroupSpec is the editable part of a custom group.
type GroupSpec struct {
	Name        string
	Priority    int
	Permissions model.PermissionSet
	Icon        string
	Color       string
}

// Groups manages custom groups and claim membership.
type Groups struct {
	Deps
	curve *benefit.Curve
}

// NewGroups creates a new Groups registry. The member limit of a claim is
// the MaxMembers benefit of its level.
func NewGroups(d Deps, curve *benefit.Curve) *Groups {
	return &Groups{Deps: d, curve: curve}
}

func (s GroupSpec) validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return apperr.Invalidf("group name is required")
	}
	if model.IsOwnerGroupName(name) {
		return apperr.Invalidf("group name %q is reserved", model.OwnerGroupName)
	}
	return nil
}

// CreateGroup adds a custom group to a claim. Requires MANAGE_GROUPS.
func (g *Groups) CreateGroup(ctx context.Context, claimID, actorID string, spec GroupSpec) (*model.CustomGroup, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	var out *model.CustomGroup
	err := g.Locks.WithLock(ctx, claimKey(claimID), func() error {
		return g.Repo.WithTx(ctx, func(tx repository.Repository) error {
			c, err := tx.LoadClaim(ctx, claimID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, tx, c, actorID, model.PermManageGroups); err != nil {
				return err
			}

			now := g.now()
			out = &model.CustomGroup{
				ID:          newID(),
				ClaimID:     claimID,
				Name:        strings.TrimSpace(spec.Name),
				Priority:    spec.Priority,
				Permissions: spec.Permissions,
				Icon:        spec.Icon,
				Color:       spec.Color,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			return tx.SaveGroup(ctx, out)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("claim", claimID).Str("group", out.ID).Str("name", out.Name).Msg("Custom group created")
	return out, nil
}

// UpdateGroup replaces the editable fields of a custom group.
func (g *Groups) UpdateGroup(ctx context.Context, groupID, actorID string, spec GroupSpec) (*model.CustomGroup, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	current, err := g.Repo.LoadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var out *model.CustomGroup
	err = g.Locks.WithLock(ctx, claimKey(current.ClaimID), func() error {
		return g.Repo.WithTx(ctx, func(tx repository.Repository) error {
			grp, _, err := g.loadEditable(ctx, tx, groupID, actorID)
			if err != nil {
				return err
			}
			grp.Name = strings.TrimSpace(spec.Name)
			grp.Priority = spec.Priority
			grp.Permissions = spec.Permissions
			grp.Icon = spec.Icon
			grp.Color = spec.Color
			grp.UpdatedAt = g.now()
			out = grp
			return tx.SaveGroup(ctx, grp)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteGroup removes a custom group. Its members fall back to the legacy
// MEMBER group in the same write.
func (g *Groups) DeleteGroup(ctx context.Context, groupID, actorID string) error {
	current, err := g.Repo.LoadGroup(ctx, groupID)
	if err != nil {
		return err
	}

	var moved []string
	err = g.Locks.WithLock(ctx, claimKey(current.ClaimID), func() error {
		return g.Repo.WithTx(ctx, func(tx repository.Repository) error {
			_, c, err := g.loadEditable(ctx, tx, groupID, actorID)
			if err != nil {
				return err
			}

			moved = moved[:0]
			for member, ref := range c.Members {
				if id, ok := ref.Custom(); ok && id == groupID {
					c.Members[member] = model.LegacyRef(model.LegacyMember)
					moved = append(moved, member)
				}
			}
			if len(moved) > 0 {
				c.UpdatedAt = g.now()
				if err := tx.SaveClaim(ctx, c); err != nil {
					return err
				}
			}
			return tx.DeleteGroup(ctx, groupID)
		})
	})
	if err != nil {
		return err
	}

	log.Info().Str("claim", current.ClaimID).Str("group", groupID).Int("moved", len(moved)).Msg("Custom group deleted")
	var out outbox
	for _, member := range moved {
		out.add(member, notify.KindGroupDeleted, notify.Payload{"claim": current.ClaimID, "group": current.Name})
	}
	g.flush(ctx, out)
	return nil
}

// loadEditable loads a non-reserved group and its claim and authorizes actorID.
func (g *Groups) loadEditable(ctx context.Context, tx repository.Repository, groupID, actorID string) (*model.CustomGroup, *model.Claim, error) {
	grp, err := tx.LoadGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if grp.Reserved {
		return nil, nil, apperr.IllegalStatef("the %s group cannot be modified", model.OwnerGroupName)
	}
	c, err := tx.LoadClaim(ctx, grp.ClaimID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(ctx, tx, c, actorID, model.PermManageGroups); err != nil {
		return nil, nil, err
	}
	return grp, c, nil
}

// ListGroups is the display listing of a claim's groups: the owner group
// first, then legacy and custom groups by priority and name.
func (g *Groups) ListGroups(ctx context.Context, claimID string) ([]model.GroupView, error) {
	if _, err := g.Repo.LoadClaim(ctx, claimID); err != nil {
		return nil, err
	}
	groups, err := g.Repo.ListGroups(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return groupViews(groups, true), nil
}

// MemberLimit returns the member capacity of a claim at its current level.
func (g *Groups) MemberLimit(c *model.Claim) int {
	return g.curve.ForLevel(c.Level).MaxMembers
}

// AddMember maps a new member to a group. Fails with a capacity error and
// no mutation when the claim is full. Requires MANAGE_MEMBERS.
func (g *Groups) AddMember(ctx context.Context, claimID, actorID, memberID string, ref model.GroupRef) error {
	if strings.TrimSpace(memberID) == "" {
		return apperr.Invalidf("member id is required")
	}
	if !ref.Valid() {
		return apperr.Invalidf("invalid group reference %q", ref)
	}

	err := g.Locks.WithLock(ctx, claimKey(claimID), func() error {
		return g.Repo.WithTx(ctx, func(tx repository.Repository) error {
			c, err := tx.LoadClaim(ctx, claimID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, tx, c, actorID, model.PermManageMembers); err != nil {
				return err
			}
			if memberID == c.OwnerID {
				return apperr.IllegalStatef("the owner of claim %s cannot be added as a member", claimID)
			}
			if _, ok := c.Members[memberID]; ok {
				return apperr.IllegalStatef("%s is already a member of claim %s", memberID, claimID)
			}
			if err := checkAssignable(ctx, tx, c, ref); err != nil {
				return err
			}
			if limit := g.MemberLimit(c); len(c.Members) >= limit {
				return apperr.Capacityf("claim %s is at its member limit of %d", claimID, limit)
			}

			c.Members[memberID] = ref
			c.UpdatedAt = g.now()
			return tx.SaveClaim(ctx, c)
		})
	})
	if err != nil {
		return err
	}

	log.Info().Str("claim", claimID).Str("member", memberID).Str("group", ref.String()).Msg("Member added")
	g.flush(ctx, outbox{{target: memberID, kind: notify.KindMemberAdded, payload: notify.Payload{"claim": claimID, "group": ref.String()}}})
	return nil
}

// SetMemberGroup moves an existing member to another group in one write.
func (g *Groups) SetMemberGroup(ctx context.Context, claimID, actorID, memberID string, ref model.GroupRef) error {
	if !ref.Valid() {
		return apperr.Invalidf("invalid group reference %q", ref)
	}

	err := g.Locks.WithLock(ctx, claimKey(claimID), func() error {
		return g.Repo.WithTx(ctx, func(tx repository.Repository) error {
			c, err := tx.LoadClaim(ctx, claimID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, tx, c, actorID, model.PermManageMembers); err != nil {
				return err
			}
			if _, ok := c.Members[memberID]; !ok {
				return apperr.NotFoundf("%s is not a member of claim %s", memberID, claimID)
			}
			if err := checkAssignable(ctx, tx, c, ref); err != nil {
				return err
			}

			c.Members[memberID] = ref
			c.UpdatedAt = g.now()
			return tx.SaveClaim(ctx, c)
		})
	})
	if err != nil {
		return err
	}

	g.flush(ctx, outbox{{target: memberID, kind: notify.KindMemberMoved, payload: notify.Payload{"claim": claimID, "group": ref.String()}}})
	return nil
}

// RemoveMember drops a member. Members may always remove themselves.
func (g *Groups) RemoveMember(ctx context.Context, claimID, actorID, memberID string) error {
	if err := checkActor(actorID); err != nil {
		return err
	}
	err := g.Locks.WithLock(ctx, claimKey(claimID), func() error {
		return g.Repo.WithTx(ctx, func(tx repository.Repository) error {
			c, err := tx.LoadClaim(ctx, claimID)
			if err != nil {
				return err
			}
			if actorID != memberID {
				if err := authorize(ctx, tx, c, actorID, model.PermManageMembers); err != nil {
					return err
				}
			}
			if _, ok := c.Members[memberID]; !ok {
				return apperr.NotFoundf("%s is not a member of claim %s", memberID, claimID)
			}

			delete(c.Members, memberID)
			c.UpdatedAt = g.now()
			return tx.SaveClaim(ctx, c)
		})
	})
	if err != nil {
		return err
	}

	log.Info().Str("claim", claimID).Str("member", memberID).Msg("Member removed")
	g.flush(ctx, outbox{{target: memberID, kind: notify.KindMemberRemoved, payload: notify.Payload{"claim": claimID}}})
	return nil
}

// checkAssignable verifies ref names a group members of c may hold.
func checkAssignable(ctx context.Context, tx repository.Repository, c *model.Claim, ref model.GroupRef) error {
	id, ok := ref.Custom()
	if !ok {
		return nil
	}
	grp, err := tx.LoadGroup(ctx, id)
	if err != nil {
		return err
	}
	if grp.ClaimID != c.ID {
		return apperr.NotFoundf("group %s not found in claim %s", id, c.ID)
	}
	if grp.Reserved {
		return apperr.IllegalStatef("members cannot be assigned to the %s group", model.OwnerGroupName)
	}
	return nil
}
