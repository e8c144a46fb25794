package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"claims-engine/internal/model"
	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/apperr"
	"claims-engine/internal/repository"
)

// Relations is the diplomatic graph between nations. AT_WAR is never
// stored; it is derived from open wars and overrides the stored edge.
type Relations struct {
	Deps
}

// NewRelations creates a new Relations graph.
func NewRelations(d Deps) *Relations {
	return &Relations{Deps: d}
}

// GetRelation returns the relation between two nations.
func (g *Relations) GetRelation(ctx context.Context, a, b string) (model.RelationType, error) {
	if a == b {
		return "", apperr.Invalidf("a nation has no relation with itself")
	}
	for _, id := range []string{a, b} {
		if _, err := g.Repo.LoadNation(ctx, id); err != nil {
			return "", err
		}
	}
	return relationIn(ctx, g.Repo, a, b)
}

func relationIn(ctx context.Context, r repository.Repository, a, b string) (model.RelationType, error) {
	atWar, err := hasOpenWar(ctx, r, a, b)
	if err != nil {
		return "", err
	}
	if atWar {
		return model.RelationAtWar, nil
	}
	return r.LoadRelation(ctx, a, b)
}

func hasOpenWar(ctx context.Context, r repository.Repository, a, b string) (bool, error) {
	_, err := r.FindOpenWar(ctx, a, b)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	}
	return false, err
}

// SetRelation stores the relation between two nations. NEUTRAL removes the
// edge. Relations cannot change while the two are at war.
func (g *Relations) SetRelation(ctx context.Context, a, b string, typ model.RelationType) error {
	if !typ.Settable() {
		return apperr.Invalidf("relation %q cannot be set directly", typ)
	}
	if a == b {
		return apperr.Invalidf("a nation has no relation with itself")
	}

	var prev model.RelationType
	err := g.Locks.WithLock(ctx, pairKey(a, b), func() error {
		return g.Repo.WithTx(ctx, func(tx repository.Repository) error {
			for _, id := range []string{a, b} {
				if _, err := tx.LoadNation(ctx, id); err != nil {
					return err
				}
			}
			atWar, err := hasOpenWar(ctx, tx, a, b)
			if err != nil {
				return err
			}
			if atWar {
				return apperr.IllegalStatef("nations %s and %s are at war", a, b)
			}

			prev, err = tx.LoadRelation(ctx, a, b)
			if err != nil {
				return err
			}
			if prev == typ {
				return nil
			}
			if typ == model.RelationNeutral {
				return tx.DeleteRelation(ctx, a, b)
			}
			x, y := model.OrderedPair(a, b)
			return tx.SaveRelation(ctx, &model.NationRelation{NationA: x, NationB: y, Type: typ, UpdatedAt: g.now()})
		})
	})
	if err != nil {
		return err
	}
	if prev == typ {
		return nil
	}

	log.Info().Str("a", a).Str("b", b).Str("from", string(prev)).Str("to", string(typ)).Msg("Relation changed")
	var out outbox
	out.add(a, notify.KindRelationChanged, notify.Payload{"with": b, "relation": string(typ)})
	out.add(b, notify.KindRelationChanged, notify.Payload{"with": a, "relation": string(typ)})
	g.flush(ctx, out)
	return nil
}

// Relations lists every non-neutral relation of a nation, including the
// AT_WAR edges of its open wars.
func (g *Relations) Relations(ctx context.Context, nationID string) ([]*model.NationRelation, error) {
	if _, err := g.Repo.LoadNation(ctx, nationID); err != nil {
		return nil, err
	}
	stored, err := g.Repo.ListRelations(ctx, nationID)
	if err != nil {
		return nil, err
	}
	wars, err := g.Repo.ListOpenWarsOf(ctx, nationID)
	if err != nil {
		return nil, err
	}

	atWar := make(map[[2]string]*model.War, len(wars))
	for _, w := range wars {
		x, y := model.OrderedPair(w.AttackerID, w.DefenderID)
		atWar[[2]string{x, y}] = w
	}

	out := make([]*model.NationRelation, 0, len(stored)+len(wars))
	for _, r := range stored {
		if w, ok := atWar[[2]string{r.NationA, r.NationB}]; ok {
			r.Type = model.RelationAtWar
			r.UpdatedAt = w.DeclaredAt
			delete(atWar, [2]string{r.NationA, r.NationB})
		}
		out = append(out, r)
	}
	for _, w := range wars {
		x, y := model.OrderedPair(w.AttackerID, w.DefenderID)
		if _, ok := atWar[[2]string{x, y}]; !ok {
			continue
		}
		out = append(out, &model.NationRelation{NationA: x, NationB: y, Type: model.RelationAtWar, UpdatedAt: w.DeclaredAt})
	}
	return out, nil
}
