package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claims-engine/internal/model"
	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/apperr"
)

func TestRelationsDefaultToNeutral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.nation(t, "alice")
	b := f.nation(t, "bob")

	rel, err := f.Relations.GetRelation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RelationNeutral, rel)

	_, err = f.Relations.GetRelation(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = f.Relations.GetRelation(ctx, a.ID, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetRelationIsSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.nation(t, "alice")
	b := f.nation(t, "bob")

	require.NoError(t, f.Relations.SetRelation(ctx, b.ID, a.ID, model.RelationAlly))
	for _, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
		rel, err := f.Relations.GetRelation(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, model.RelationAlly, rel)
	}
	assert.Equal(t, 2, f.sent.Count(notify.KindRelationChanged))

	// Setting the same relation again is a no-op.
	require.NoError(t, f.Relations.SetRelation(ctx, a.ID, b.ID, model.RelationAlly))
	assert.Equal(t, 2, f.sent.Count(notify.KindRelationChanged))

	require.NoError(t, f.Relations.SetRelation(ctx, a.ID, b.ID, model.RelationNeutral))
	rels, err := f.Relations.Relations(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestSetRelationRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.nation(t, "alice")
	b := f.nation(t, "bob")

	assert.ErrorIs(t, f.Relations.SetRelation(ctx, a.ID, b.ID, model.RelationAtWar), apperr.ErrInvalid)
	assert.ErrorIs(t, f.Relations.SetRelation(ctx, a.ID, a.ID, model.RelationAlly), apperr.ErrInvalid)
	assert.ErrorIs(t, f.Relations.SetRelation(ctx, a.ID, "ghost", model.RelationAlly), apperr.ErrNotFound)
}

func TestWarOverridesStoredRelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.nation(t, "alice")
	b := f.nation(t, "bob")
	c := f.nation(t, "carol")
	require.NoError(t, f.Relations.SetRelation(ctx, a.ID, b.ID, model.RelationEnemy))
	require.NoError(t, f.Relations.SetRelation(ctx, a.ID, c.ID, model.RelationTruce))

	war, err := f.Wars.DeclareWar(ctx, a.ID, b.ID, "border dispute")
	require.NoError(t, err)

	// AT_WAR is reported from declaration, before the notice period ends.
	rel, err := f.Relations.GetRelation(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RelationAtWar, rel)

	err = f.Relations.SetRelation(ctx, a.ID, b.ID, model.RelationTruce)
	require.ErrorIs(t, err, apperr.ErrIllegalState)
	assert.Equal(t, apperr.ReasonIllegalState, apperr.ReasonOf(err))

	rels, err := f.Relations.Relations(ctx, a.ID)
	require.NoError(t, err)
	byOther := map[string]model.RelationType{}
	for _, r := range rels {
		other := r.NationA
		if other == a.ID {
			other = r.NationB
		}
		byOther[other] = r.Type
	}
	assert.Equal(t, map[string]model.RelationType{b.ID: model.RelationAtWar, c.ID: model.RelationTruce}, byOther)

	_, err = f.Wars.Retract(ctx, war.ID, a.ID)
	require.NoError(t, err)
	rel, err = f.Relations.GetRelation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RelationEnemy, rel)
	assert.NoError(t, f.Relations.SetRelation(ctx, a.ID, b.ID, model.RelationTruce))
}
