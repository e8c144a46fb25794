package model

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseMoney(t *testing.T) {
	cases := map[string]Money{
		"100":     10000,
		"100.00":  10000,
		"100.5":   10050,
		"0.01":    1,
		".75":     75,
		"-3.25":   -325,
		" 40.00 ": 4000,

		"92233720368547758.07": math.MaxInt64,
	}
	for in, want := range cases {
		got, err := ParseMoney(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "-", "1.234", "abc", "1.x", ".",
		"100000000000000000", "92233720368547758.08", "18446744073709551616"} {
		_, err := ParseMoney(bad)
		assert.Error(t, err, bad)
	}
}

// TestMoneyStringRoundTrip checks formatting never loses a minor unit.
func TestMoneyStringRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := Money(rapid.Int64Range(-1_000_000_000, 1_000_000_000).Draw(t, "minor"))
		parsed, err := ParseMoney(m.String())
		if err != nil {
			t.Fatalf("parse %q: %v", m.String(), err)
		}
		if parsed != m {
			t.Fatalf("round trip mismatch: %d -> %q -> %d", m, m.String(), parsed)
		}
	})
}

func TestMoneyPercent(t *testing.T) {
	assert.Equal(t, MustMoney("7.50"), MustMoney("10.00").Percent(75))
	assert.Equal(t, Money(0), MustMoney("0.01").Percent(50))
	assert.Equal(t, MustMoney("-0.75"), MustMoney("-1.50").Percent(50))
	assert.Equal(t, Money(math.MaxInt64/100*27+7*27/100), Money(math.MaxInt64).Percent(27))
}

func TestMoneyAddDetectsOverflow(t *testing.T) {
	sum, ok := Money(math.MaxInt64 - 1).Add(1)
	require.True(t, ok)
	assert.Equal(t, Money(math.MaxInt64), sum)

	_, ok = Money(math.MaxInt64).Add(1)
	assert.False(t, ok)
	_, ok = Money(math.MinInt64).Add(-1)
	assert.False(t, ok)
}

func TestMoneyStringExtremes(t *testing.T) {
	assert.Equal(t, "92233720368547758.07", Money(math.MaxInt64).String())
	assert.Equal(t, "-92233720368547758.08", Money(math.MinInt64).String())
}

func TestPermissionSet(t *testing.T) {
	s := NewPermissionSet(PermBuild, PermManageGroups)
	assert.True(t, s.Has(PermBuild))
	assert.True(t, s.Has(PermManageGroups))
	assert.False(t, s.Has(PermBreak))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "[BUILD,MANAGE_GROUPS]", s.String())

	assert.Equal(t, len(AllPermissions()), UniversalPermissions.Len())
	for _, p := range AllPermissions() {
		assert.True(t, UniversalPermissions.Has(p), p.String())
		assert.False(t, EmptyPermissions.Has(p), p.String())
	}

	p, ok := ParsePermission("manage_members")
	require.True(t, ok)
	assert.Equal(t, PermManageMembers, p)
}

func TestLegacyGroupsOrdered(t *testing.T) {
	groups := LegacyGroups()
	for i := 1; i < len(groups); i++ {
		assert.Greater(t, groups[i].Priority(), groups[i-1].Priority())
		prev, cur := groups[i-1].DefaultPermissions(), groups[i].DefaultPermissions()
		assert.Equal(t, cur, cur.Union(prev), "%s should include %s", groups[i], groups[i-1])
	}
}

func TestGroupRefVariant(t *testing.T) {
	legacy := LegacyRef(LegacyTrusted)
	tag, ok := legacy.Legacy()
	require.True(t, ok)
	assert.Equal(t, LegacyTrusted, tag)
	_, ok = legacy.Custom()
	assert.False(t, ok)

	custom := CustomRef("g1")
	id, ok := custom.Custom()
	require.True(t, ok)
	assert.Equal(t, "g1", id)
	_, ok = custom.Legacy()
	assert.False(t, ok)

	assert.True(t, GroupRef{}.IsZero())
	assert.False(t, GroupRef{}.Valid())
	assert.False(t, CustomRef("").Valid())

	for _, ref := range []GroupRef{legacy, custom} {
		parsed, err := ParseGroupRef(ref.String())
		require.NoError(t, err)
		assert.Equal(t, ref, parsed)
	}
	_, err := ParseGroupRef("legacy:KING")
	assert.Error(t, err)
}

func TestLessGroupViewOrder(t *testing.T) {
	views := []GroupView{
		{Name: "builders", Priority: 5},
		{Name: "Admins", Priority: 10},
		{Name: "alpha", Priority: 5},
		{Name: OwnerGroupName, Priority: 0, Reserved: true},
		{Name: "Beta", Priority: 5},
	}
	slices.SortFunc(views, func(a, b GroupView) int {
		if LessGroupView(a, b) {
			return -1
		}
		if LessGroupView(b, a) {
			return 1
		}
		return 0
	})

	names := make([]string, len(views))
	for i, v := range views {
		names[i] = v.Name
	}
	assert.Equal(t, []string{OwnerGroupName, "Admins", "alpha", "Beta", "builders"}, names)
}

func TestShieldActive(t *testing.T) {
	var nilShield *WarShield
	now := mustTime(t, "2026-01-01T00:00:00Z")
	assert.False(t, nilShield.Active(now))

	s := &WarShield{ExpiresAt: now}
	assert.False(t, s.Active(now), "expiry instant is already expired")
	assert.True(t, s.Active(now.Add(-1)))
}

func TestOrderedPair(t *testing.T) {
	a, b := OrderedPair("n2", "n1")
	assert.Equal(t, "n1", a)
	assert.Equal(t, "n2", b)
	assert.False(t, RelationAtWar.Settable())
	assert.True(t, RelationTruce.Settable())
}
