package model

import (
	"maps"
	"time"
)

// NationRole is a member claim's role inside a nation.
type NationRole string

const (
	RoleLeader  NationRole = "LEADER"
	RoleOfficer NationRole = "OFFICER"
	RoleMember  NationRole = "MEMBER"
)

// Valid reports whether r is a defined role.
func (r NationRole) Valid() bool {
	return r == RoleLeader || r == RoleOfficer || r == RoleMember
}

// Nation is a federation of claims with a shared treasury.
type Nation struct {
	ID                string
	Name              string
	LeaderClaimID     string
	FoundedAt         time.Time
	Level             int
	TreasuryAccountID string
	Members           map[string]NationRole // claim id -> role
}

// Clone returns a deep copy of n.
func (n *Nation) Clone() *Nation {
	out := *n
	out.Members = maps.Clone(n.Members)
	if out.Members == nil {
		out.Members = make(map[string]NationRole)
	}
	return &out
}

// RelationType is the diplomatic state between two nations.
type RelationType string

const (
	RelationNeutral RelationType = "NEUTRAL"
	RelationAlly    RelationType = "ALLY"
	RelationEnemy   RelationType = "ENEMY"
	RelationTruce   RelationType = "TRUCE"
	RelationAtWar   RelationType = "AT_WAR"
)

// Settable reports whether the relation may be stored directly.
// AT_WAR is derived from war state only.
func (r RelationType) Settable() bool {
	switch r {
	case RelationNeutral, RelationAlly, RelationEnemy, RelationTruce:
		return true
	}
	return false
}

// NationRelation is a stored, non-neutral edge between two nations.
// NationA < NationB always holds.
type NationRelation struct {
	NationA   string
	NationB   string
	Type      RelationType
	UpdatedAt time.Time
}

// OrderedPair returns a and b sorted, the canonical key for unordered pairs.
func OrderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
