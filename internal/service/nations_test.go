package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claims-engine/internal/model"
	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/apperr"
)

func TestFoundNation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.claim(t, "alice")

	_, err := f.Nations.Found(ctx, "Avalon", c.ID, "mallory")
	assert.Equal(t, apperr.ReasonNoPermission, apperr.ReasonOf(err))

	n, err := f.Nations.Found(ctx, "Avalon", c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.RoleLeader, n.Members[c.ID])
	assert.Equal(t, 1, f.sent.Count(notify.KindNationFounded))

	treasury, err := f.repo.LoadAccount(ctx, n.TreasuryAccountID)
	require.NoError(t, err)
	assert.Equal(t, model.OwnerNation, treasury.OwnerKind)

	_, err = f.Nations.Found(ctx, "Second", c.ID, "alice")
	assert.ErrorIs(t, err, apperr.ErrIllegalState)

	other := f.claim(t, "bob")
	_, err = f.Nations.Found(ctx, "avalon", other.ID, "bob")
	assert.ErrorIs(t, err, apperr.ErrIllegalState)
}

func TestNationMembershipAndRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nation(t, "alice")
	bob := f.claim(t, "bob")
	carol := f.claim(t, "carol")

	_, err := f.Nations.AddMember(ctx, n.ID, bob.ID, "bob")
	assert.Equal(t, apperr.ReasonNoPermission, apperr.ReasonOf(err))

	_, err = f.Nations.AddMember(ctx, n.ID, bob.ID, "alice")
	require.NoError(t, err)
	_, err = f.Nations.SetRole(ctx, n.ID, bob.ID, "alice", model.RoleOfficer)
	require.NoError(t, err)

	// Officers can recruit.
	_, err = f.Nations.AddMember(ctx, n.ID, carol.ID, "bob")
	require.NoError(t, err)

	// Only the leader assigns roles.
	_, err = f.Nations.SetRole(ctx, n.ID, carol.ID, "bob", model.RoleOfficer)
	assert.Equal(t, apperr.ReasonNoPermission, apperr.ReasonOf(err))

	_, err = f.Nations.RemoveMember(ctx, n.ID, n.LeaderClaimID, "alice")
	assert.ErrorIs(t, err, apperr.ErrIllegalState)

	// A claim owner can always leave.
	got, err := f.Nations.RemoveMember(ctx, n.ID, carol.ID, "carol")
	require.NoError(t, err)
	assert.NotContains(t, got.Members, carol.ID)
	_, err = f.Nations.NationOf(ctx, carol.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHandOverLeadership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nation(t, "alice")
	bob := f.claim(t, "bob")
	_, err := f.Nations.AddMember(ctx, n.ID, bob.ID, "alice")
	require.NoError(t, err)

	got, err := f.Nations.SetRole(ctx, n.ID, bob.ID, "alice", model.RoleLeader)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.LeaderClaimID)
	assert.Equal(t, model.RoleLeader, got.Members[bob.ID])
	assert.Equal(t, model.RoleOfficer, got.Members[n.LeaderClaimID])

	_, err = f.Nations.SetRole(ctx, n.ID, n.LeaderClaimID, "alice", model.RoleMember)
	assert.Equal(t, apperr.ReasonNoPermission, apperr.ReasonOf(err))
	_, err = f.Nations.SetRole(ctx, n.ID, n.LeaderClaimID, "bob", model.RoleMember)
	assert.NoError(t, err)
}

func TestCollectTaxSkipsClaimsThatCannotPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nation(t, "alice")
	rich := f.claim(t, "bob")
	poor := f.claim(t, "carol")
	f.fund(t, rich.AccountID, "20.00")
	f.fund(t, poor.AccountID, "1.00")
	for _, c := range []*model.Claim{rich, poor} {
		_, err := f.Nations.AddMember(ctx, n.ID, c.ID, "alice")
		require.NoError(t, err)
	}

	total, err := f.Nations.CollectTax(ctx, n.ID, model.MustMoney("5.00"), "alice")
	require.NoError(t, err)
	assert.Equal(t, "5.00", total.String())
	assert.Equal(t, "5.00", f.balance(t, n.TreasuryAccountID).String())
	assert.Equal(t, "15.00", f.balance(t, rich.AccountID).String())
	assert.Equal(t, "1.00", f.balance(t, poor.AccountID).String())

	history, err := f.Ledger.GetHistory(ctx, n.TreasuryAccountID, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TxNationTax, history[0].Type)

	_, err = f.Nations.CollectTax(ctx, n.ID, model.MustMoney("5.00"), "bob")
	assert.Equal(t, apperr.ReasonNoPermission, apperr.ReasonOf(err))
}

func TestDisbandCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.nation(t, "alice")
	b := f.nation(t, "bob")
	c := f.nation(t, "carol")
	member := f.claim(t, "dave")
	_, err := f.Nations.AddMember(ctx, a.ID, member.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, f.Relations.SetRelation(ctx, a.ID, c.ID, model.RelationAlly))
	war := f.activeWar(t, b, a)
	_, err = f.Wars.GrantShield(ctx, a.ID, time.Hour, "new nation")
	require.NoError(t, err)
	_, err = f.Wars.ProposeTribute(ctx, war.ID, a.ID, model.TributeTerms{Truce: true})
	require.NoError(t, err)

	err = f.Nations.Disband(ctx, a.ID, "dave")
	assert.Equal(t, apperr.ReasonNoPermission, apperr.ReasonOf(err))

	require.NoError(t, f.Nations.Disband(ctx, a.ID, "alice"))

	_, err = f.Nations.GetNation(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.Nations.NationOf(ctx, member.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	ended, err := f.Wars.GetWar(ctx, war.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WarEnded, ended.State)
	require.NotNil(t, ended.Outcome)
	assert.Equal(t, model.OutcomeDisbanded, ended.Outcome.Kind)
	assert.Equal(t, b.ID, ended.Outcome.WinnerID)
	assert.Equal(t, a.ID, ended.Outcome.LoserID)

	tributes, err := f.Wars.Tributes(ctx, war.ID)
	require.NoError(t, err)
	require.Len(t, tributes, 1)
	assert.Equal(t, model.TributeExpired, tributes[0].Status)

	rels, err := f.repo.ListRelations(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
	_, err = f.repo.LoadShield(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	treasury, err := f.repo.LoadAccount(ctx, a.TreasuryAccountID)
	require.NoError(t, err)
	assert.True(t, treasury.Closed)

	open, err := f.Wars.WarsOf(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 1, f.sent.Count(notify.KindNationDisbanded))
}
