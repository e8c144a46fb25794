package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claims-engine/internal/model"
	"claims-engine/internal/pkg/apperr"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// runContract exercises behavior every Repository implementation must share.
func runContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("ClaimRoundTrip", func(t *testing.T) { testClaimRoundTrip(t, newRepo(t)) })
	t.Run("CellConflict", func(t *testing.T) { testCellConflict(t, newRepo(t)) })
	t.Run("GroupNameUnique", func(t *testing.T) { testGroupNameUnique(t, newRepo(t)) })
	t.Run("LedgerLog", func(t *testing.T) { testLedgerLog(t, newRepo(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newRepo(t)) })
	t.Run("OpenWarPerPair", func(t *testing.T) { testOpenWarPerPair(t, newRepo(t)) })
	t.Run("TransitionWar", func(t *testing.T) { testTransitionWar(t, newRepo(t)) })
	t.Run("Relations", func(t *testing.T) { testRelations(t, newRepo(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newRepo(t)) })
}

func seedAccount(t *testing.T, repo Repository, id string) {
	t.Helper()
	require.NoError(t, repo.SaveAccount(context.Background(), &model.Account{
		ID: id, OwnerKind: model.OwnerClaim, OwnerID: "owner-" + id, CreatedAt: epoch,
	}))
}

func seedClaim(t *testing.T, repo Repository, id string, cells ...model.Cell) *model.Claim {
	t.Helper()
	seedAccount(t, repo, "acc-"+id)
	c := &model.Claim{
		ID:        id,
		OwnerID:   "owner-" + id,
		Region:    "overworld",
		Cells:     cells,
		AccountID: "acc-" + id,
		Level:     1,
		Members:   map[string]model.GroupRef{},
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
	require.NoError(t, repo.SaveClaim(context.Background(), c))
	return c
}

func testClaimRoundTrip(t *testing.T, repo Repository) {
	ctx := context.Background()
	c := seedClaim(t, repo, "c1", model.Cell{X: 1, Z: 2}, model.Cell{X: 3, Z: 4})
	require.NoError(t, repo.SaveGroup(ctx, &model.CustomGroup{
		ID: "g1", ClaimID: "c1", Name: "Builders", Priority: 5,
		Permissions: model.NewPermissionSet(model.PermBuild), CreatedAt: epoch, UpdatedAt: epoch,
	}))

	c.Members["alice"] = model.LegacyRef(model.LegacyTrusted)
	c.Members["bob"] = model.CustomRef("g1")
	c.Level = 3
	require.NoError(t, repo.SaveClaim(ctx, c))

	got, err := repo.LoadClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Level)
	assert.ElementsMatch(t, c.Cells, got.Cells)
	assert.Equal(t, c.Members, got.Members)

	groups, err := repo.ListGroups(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, model.NewPermissionSet(model.PermBuild), groups[0].Permissions)

	require.NoError(t, repo.DeleteClaim(ctx, "c1"))
	_, err = repo.LoadClaim(ctx, "c1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	groups, err = repo.ListGroups(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func testCellConflict(t *testing.T, repo Repository) {
	ctx := context.Background()
	seedClaim(t, repo, "c1", model.Cell{X: 0, Z: 0})
	c2 := seedClaim(t, repo, "c2", model.Cell{X: 5, Z: 5})

	c2.Cells = append(c2.Cells, model.Cell{X: 0, Z: 0})
	err := repo.SaveClaim(ctx, c2)
	assert.ErrorIs(t, err, apperr.ErrIllegalState)

	got, err := repo.LoadClaim(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, []model.Cell{{X: 5, Z: 5}}, got.Cells)
}

func testGroupNameUnique(t *testing.T, repo Repository) {
	ctx := context.Background()
	seedClaim(t, repo, "c1")
	require.NoError(t, repo.SaveGroup(ctx, &model.CustomGroup{ID: "g1", ClaimID: "c1", Name: "Guards", CreatedAt: epoch, UpdatedAt: epoch}))

	err := repo.SaveGroup(ctx, &model.CustomGroup{ID: "g2", ClaimID: "c1", Name: "guards", CreatedAt: epoch, UpdatedAt: epoch})
	assert.ErrorIs(t, err, apperr.ErrIllegalState)
}

func testLedgerLog(t *testing.T, repo Repository) {
	ctx := context.Background()
	seedAccount(t, repo, "a1")

	head, err := repo.AccountHead(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, AccountHead{}, head)

	amounts := []model.Money{10000, -2500, 700}
	var balance model.Money
	for i, amt := range amounts {
		balance += amt
		require.NoError(t, repo.AppendTransaction(ctx, &model.Transaction{
			ID: "t" + string(rune('1'+i)), Seq: int64(i + 1), AccountID: "a1",
			Type: model.TxDeposit, Amount: amt, BalanceAfter: balance, CreatedAt: epoch,
		}))
	}

	head, err = repo.AccountHead(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.Money(8200), head.Balance)
	assert.Equal(t, int64(3), head.Seq)

	err = repo.AppendTransaction(ctx, &model.Transaction{
		ID: "dup", Seq: 3, AccountID: "a1", Type: model.TxDeposit, Amount: 1, BalanceAfter: 8201, CreatedAt: epoch,
	})
	assert.Error(t, err)

	page, err := repo.ListTransactions(ctx, "a1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].Seq)
	assert.Equal(t, int64(2), page[1].Seq)

	page, err = repo.ListTransactions(ctx, "a1", 10, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].Seq)
}

func testTxRollback(t *testing.T, repo Repository) {
	ctx := context.Background()
	seedAccount(t, repo, "a1")
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(tx Repository) error {
		require.NoError(t, tx.AppendTransaction(ctx, &model.Transaction{
			ID: "t1", Seq: 1, AccountID: "a1", Type: model.TxDeposit, Amount: 500, BalanceAfter: 500, CreatedAt: epoch,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	head, err := repo.AccountHead(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.Money(0), head.Balance)
}

func newWar(id, attacker, defender string, state model.WarState) *model.War {
	return &model.War{ID: id, AttackerID: attacker, DefenderID: defender, DeclaredAt: epoch, State: state}
}

func testOpenWarPerPair(t *testing.T, repo Repository) {
	ctx := context.Background()
	require.NoError(t, repo.SaveWar(ctx, newWar("w1", "n1", "n2", model.WarDeclared)))

	err := repo.SaveWar(ctx, newWar("w2", "n2", "n1", model.WarDeclared))
	assert.ErrorIs(t, err, apperr.ErrIllegalState)

	open, err := repo.FindOpenWar(ctx, "n2", "n1")
	require.NoError(t, err)
	assert.Equal(t, "w1", open.ID)

	ended := newWar("w1", "n1", "n2", model.WarEnded)
	ended.EndedAt = &epoch
	ended.Outcome = &model.WarOutcome{Kind: model.OutcomeRetracted}
	require.NoError(t, repo.SaveWar(ctx, ended))
	require.NoError(t, repo.SaveWar(ctx, newWar("w2", "n2", "n1", model.WarDeclared)))

	wars, err := repo.ListOpenWarsOf(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, wars, 1)
	assert.Equal(t, "w2", wars[0].ID)

	got, err := repo.LoadWar(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, model.OutcomeRetracted, got.Outcome.Kind)
	assert.Empty(t, got.Outcome.WinnerID)
}

func testTransitionWar(t *testing.T, repo Repository) {
	ctx := context.Background()
	require.NoError(t, repo.SaveWar(ctx, newWar("w1", "n1", "n2", model.WarDeclared)))

	active := newWar("w1", "n1", "n2", model.WarActive)
	activatedAt := epoch.Add(24 * time.Hour)
	active.ActivatedAt = &activatedAt

	ok, err := repo.TransitionWar(ctx, active, model.WarDeclared)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionWar(ctx, active, model.WarDeclared)
	require.NoError(t, err)
	assert.False(t, ok, "second transition from DECLARED must not apply")

	_, err = repo.TransitionWar(ctx, newWar("missing", "n1", "n2", model.WarActive), model.WarDeclared)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	wars, err := repo.ListWarsByState(ctx, model.WarActive)
	require.NoError(t, err)
	require.Len(t, wars, 1)
	require.NotNil(t, wars[0].ActivatedAt)
	assert.True(t, activatedAt.Equal(*wars[0].ActivatedAt))
}

func testRelations(t *testing.T, repo Repository) {
	ctx := context.Background()

	rel, err := repo.LoadRelation(ctx, "n1", "n2")
	require.NoError(t, err)
	assert.Equal(t, model.RelationNeutral, rel)

	require.NoError(t, repo.SaveRelation(ctx, &model.NationRelation{NationA: "n2", NationB: "n1", Type: model.RelationAlly, UpdatedAt: epoch}))
	require.NoError(t, repo.SaveRelation(ctx, &model.NationRelation{NationA: "n1", NationB: "n3", Type: model.RelationEnemy, UpdatedAt: epoch}))

	rel, err = repo.LoadRelation(ctx, "n1", "n2")
	require.NoError(t, err)
	assert.Equal(t, model.RelationAlly, rel)

	list, err := repo.ListRelations(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n1", list[0].NationA)
	assert.Equal(t, "n2", list[0].NationB)

	require.NoError(t, repo.DeleteRelationsOf(ctx, "n1"))
	list, err = repo.ListRelations(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testNotFound(t *testing.T, repo Repository) {
	ctx := context.Background()

	_, err := repo.LoadNation(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.FindNationByClaim(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.LoadShield(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.FindOpenWar(ctx, "a", "b")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.AccountHead(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
