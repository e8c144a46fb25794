package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"claims-engine/internal/benefit"
	"claims-engine/internal/model"
	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/clock"
	"claims-engine/internal/pkg/lock"
	"claims-engine/internal/repository"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	*Engine
	repo  *repository.Memory
	clock *clock.Manual
	sent  *notify.Recorder
	cells int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  repository.NewMemory(),
		clock: clock.NewManual(epoch),
		sent:  &notify.Recorder{},
	}
	f.Engine = New(Deps{
		Repo:   f.repo,
		Locks:  lock.NewEntityLock(),
		Clock:  f.clock,
		Notify: f.sent,
	}, Options{Curve: benefit.Default(20)})
	return f
}

// claim creates a one-cell claim owned by owner at a fresh cell.
func (f *fixture) claim(t *testing.T, owner string) *model.Claim {
	t.Helper()
	f.cells++
	c, err := f.Claims.CreateClaim(context.Background(), owner, "overworld", []model.Cell{{X: f.cells, Z: 0}})
	require.NoError(t, err)
	return c
}

// nation founds a nation led by a fresh claim of owner.
func (f *fixture) nation(t *testing.T, owner string) *model.Nation {
	t.Helper()
	c := f.claim(t, owner)
	n, err := f.Nations.Found(context.Background(), fmt.Sprintf("%s-land-%d", owner, f.cells), c.ID, owner)
	require.NoError(t, err)
	return n
}

func (f *fixture) fund(t *testing.T, accountID string, amount string) {
	t.Helper()
	_, err := f.Ledger.Deposit(context.Background(), accountID, model.MustMoney(amount), SystemActor, "seed")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, accountID string) model.Money {
	t.Helper()
	b, err := f.Ledger.Balance(context.Background(), accountID)
	require.NoError(t, err)
	return b
}

// activeWar declares a war and lets the notice period pass.
func (f *fixture) activeWar(t *testing.T, attacker, defender *model.Nation) *model.War {
	t.Helper()
	ctx := context.Background()
	w, err := f.Wars.DeclareWar(ctx, attacker.ID, defender.ID, "")
	require.NoError(t, err)
	f.clock.Advance(DefaultNoticePeriod)
	ok, err := f.Wars.TryActivate(ctx, w.ID)
	require.NoError(t, err)
	require.True(t, ok)
	w, err = f.Wars.GetWar(ctx, w.ID)
	require.NoError(t, err)
	return w
}
