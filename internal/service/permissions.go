package service

import (
	"context"
	"errors"
	"slices"

	"claims-engine/internal/model"
	"claims-engine/internal/pkg/apperr"
	"claims-engine/internal/repository"
)

// Permissions resolves what an actor may do inside a claim.
type Permissions struct {
	Deps
}

// NewPermissions creates a new Permissions resolver.
func NewPermissions(d Deps) *Permissions {
	return &Permissions{Deps: d}
}

// Resolve returns the effective permission set of actorID in a claim.
// The owner always gets every permission; non-members get none.
func (p *Permissions) Resolve(ctx context.Context, claimID, actorID string) (model.PermissionSet, error) {
	c, err := p.Repo.LoadClaim(ctx, claimID)
	if err != nil {
		return model.EmptyPermissions, err
	}
	return resolveIn(ctx, p.Repo, c, actorID)
}

// HasManagementPermission reports whether perm is in the actor's resolved set.
func (p *Permissions) HasManagementPermission(ctx context.Context, claimID, actorID string, perm model.Permission) (bool, error) {
	set, err := p.Resolve(ctx, claimID, actorID)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}

// AssignableGroups lists the legacy and custom groups a member may be put in,
// highest priority first. The reserved owner group is never listed.
func (p *Permissions) AssignableGroups(ctx context.Context, claimID string) ([]model.GroupView, error) {
	if _, err := p.Repo.LoadClaim(ctx, claimID); err != nil {
		return nil, err
	}
	groups, err := p.Repo.ListGroups(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return groupViews(groups, false), nil
}

func resolveIn(ctx context.Context, r repository.Repository, c *model.Claim, actorID string) (model.PermissionSet, error) {
	if actorID == c.OwnerID {
		return model.UniversalPermissions, nil
	}
	ref, ok := c.MemberGroup(actorID)
	if !ok {
		return model.EmptyPermissions, nil
	}

	switch ref.Kind() {
	case model.GroupKindCustom:
		id, _ := ref.Custom()
		g, err := r.LoadGroup(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			return model.EmptyPermissions, nil
		}
		if err != nil {
			return model.EmptyPermissions, err
		}
		if g.ClaimID != c.ID {
			return model.EmptyPermissions, nil
		}
		return g.Permissions, nil
	case model.GroupKindLegacy:
		tag, _ := ref.Legacy()
		return tag.DefaultPermissions(), nil
	}
	return model.EmptyPermissions, nil
}

// authorize fails unless actorID holds perm in c.
func authorize(ctx context.Context, r repository.Repository, c *model.Claim, actorID string, perm model.Permission) error {
	if err := checkActor(actorID); err != nil {
		return err
	}
	set, err := resolveIn(ctx, r, c, actorID)
	if err != nil {
		return err
	}
	if !set.Has(perm) {
		return apperr.Declined(apperr.ReasonNoPermission, "%s lacks %s in claim %s", actorID, perm, c.ID)
	}
	return nil
}

// groupViews merges legacy and custom groups into one sorted listing.
func groupViews(custom []*model.CustomGroup, withReserved bool) []model.GroupView {
	views := make([]model.GroupView, 0, len(custom)+len(model.LegacyGroups()))
	for _, g := range model.LegacyGroups() {
		views = append(views, model.LegacyView(g))
	}
	for _, g := range custom {
		if g.Reserved && !withReserved {
			continue
		}
		views = append(views, model.CustomView(g))
	}
	slices.SortStableFunc(views, func(a, b model.GroupView) int {
		switch {
		case model.LessGroupView(a, b):
			return -1
		case model.LessGroupView(b, a):
			return 1
		}
		return 0
	})
	return views
}
