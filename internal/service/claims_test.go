package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claims-engine/internal/model"
	"claims-engine/internal/pkg/apperr"
)

func TestCreateClaimSetsUpAccountAndOwnerGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.Claims.CreateClaim(ctx, "alice", "overworld", []model.Cell{{X: 1, Z: 1}, {X: 1, Z: 1}, {X: 1, Z: 2}})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Level)
	assert.Len(t, c.Cells, 2)

	acct, err := f.repo.LoadAccount(ctx, c.AccountID)
	require.NoError(t, err)
	assert.Equal(t, model.OwnerClaim, acct.OwnerKind)
	assert.Equal(t, c.ID, acct.OwnerID)

	groups, err := f.repo.ListGroups(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Reserved)
	assert.Equal(t, model.UniversalPermissions, groups[0].Permissions)
}

func TestCreateClaimValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.Claims.CreateClaim(ctx, "", "overworld", []model.Cell{{X: 1}})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = f.Claims.CreateClaim(ctx, "alice", "overworld", nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = f.Claims.CreateClaim(ctx, "alice", "overworld", []model.Cell{{X: 5, Z: 5}})
	require.NoError(t, err)
	_, err = f.Claims.CreateClaim(ctx, "bob", "overworld", []model.Cell{{X: 5, Z: 5}})
	assert.ErrorIs(t, err, apperr.ErrIllegalState)

	_, err = f.Claims.CreateClaim(ctx, "bob", "nether", []model.Cell{{X: 5, Z: 5}})
	assert.NoError(t, err)
}

func TestAddCellsNeedsSettingsPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.claim(t, "alice")
	require.NoError(t, f.Groups.AddMember(ctx, c.ID, "alice", "bob", model.LegacyRef(model.LegacyManager)))

	_, err := f.Claims.AddCells(ctx, c.ID, "bob", []model.Cell{{X: 100, Z: 100}})
	assert.Equal(t, apperr.ReasonNoPermission, apperr.ReasonOf(err))

	got, err := f.Claims.AddCells(ctx, c.ID, "alice", []model.Cell{{X: 100, Z: 100}, c.Cells[0]})
	require.NoError(t, err)
	assert.Len(t, got.Cells, 2)
}

func TestLevelUpChargesCostAndStopsAtMax(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.claim(t, "alice")

	_, err := f.Claims.LevelUp(ctx, c.ID, "alice", model.MustMoney("10.00"))
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	loaded, err := f.Claims.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Level)

	f.fund(t, c.AccountID, "10.00")
	got, err := f.Claims.LevelUp(ctx, c.ID, "alice", model.MustMoney("10.00"))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Level)
	assert.Zero(t, f.balance(t, c.AccountID))

	for got.Level < 10 {
		got, err = f.Claims.LevelUp(ctx, c.ID, "alice", 0)
		require.NoError(t, err)
	}
	_, err = f.Claims.LevelUp(ctx, c.ID, "alice", 0)
	assert.ErrorIs(t, err, apperr.ErrIllegalState)

	b, err := f.Claims.Benefits(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 65, b.MaxMembers)
}

func TestCollectUpkeepAppliesLevelDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.claim(t, "alice")
	f.fund(t, c.AccountID, "100.00")

	tx, err := f.Claims.CollectUpkeep(ctx, c.ID, model.MustMoney("10.00"))
	require.NoError(t, err)
	assert.Equal(t, model.TxUpkeep, tx.Type)
	assert.Equal(t, "90.00", f.balance(t, c.AccountID).String())

	for i := 0; i < 3; i++ {
		_, err = f.Claims.LevelUp(ctx, c.ID, "alice", 0)
		require.NoError(t, err)
	}
	// Level 4 takes 9% off.
	_, err = f.Claims.CollectUpkeep(ctx, c.ID, model.MustMoney("10.00"))
	require.NoError(t, err)
	assert.Equal(t, "80.90", f.balance(t, c.AccountID).String())

	_, err = f.Claims.CollectUpkeep(ctx, c.ID, model.MustMoney("1000.00"))
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, "80.90", f.balance(t, c.AccountID).String())
}

func TestDeleteClaimCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nation(t, "alice")
	c := f.claim(t, "bob")
	f.fund(t, c.AccountID, "3.00")
	_, err := f.Groups.CreateGroup(ctx, c.ID, "bob", GroupSpec{Name: "Crew"})
	require.NoError(t, err)
	require.NoError(t, f.Groups.AddMember(ctx, c.ID, "bob", "carol", model.LegacyRef(model.LegacyMember)))
	_, err = f.Nations.AddMember(ctx, n.ID, c.ID, "alice")
	require.NoError(t, err)

	err = f.Claims.DeleteClaim(ctx, c.ID, "carol")
	assert.Equal(t, apperr.ReasonNoPermission, apperr.ReasonOf(err))

	require.NoError(t, f.Claims.DeleteClaim(ctx, c.ID, "bob"))

	_, err = f.Claims.GetClaim(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	groups, err := f.repo.ListGroups(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, groups)
	nation, err := f.Nations.GetNation(ctx, n.ID)
	require.NoError(t, err)
	assert.NotContains(t, nation.Members, c.ID)

	acct, err := f.repo.LoadAccount(ctx, c.AccountID)
	require.NoError(t, err)
	assert.True(t, acct.Closed)
	history, err := f.Ledger.GetHistory(ctx, c.AccountID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// The freed cell can be claimed again.
	_, err = f.Claims.CreateClaim(ctx, "dave", c.Region, c.Cells)
	assert.NoError(t, err)
}

func TestDeleteLeaderClaimNeedsDisband(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nation(t, "alice")

	err := f.Claims.DeleteClaim(ctx, n.LeaderClaimID, "alice")
	require.ErrorIs(t, err, apperr.ErrIllegalState)
	_, err = f.Claims.GetClaim(ctx, n.LeaderClaimID)
	require.NoError(t, err)

	require.NoError(t, f.Nations.Disband(ctx, n.ID, "alice"))
	assert.NoError(t, f.Claims.DeleteClaim(ctx, n.LeaderClaimID, "alice"))
}
