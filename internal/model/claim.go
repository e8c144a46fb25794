package model

import (
	"maps"
	"time"
)

// Cell is one grid cell of a claim.
type Cell struct {
	X int32
	Z int32
}

// Claim is a player-owned parcel.
type Claim struct {
	ID        string
	OwnerID   string
	Region    string // world/region key
	Cells     []Cell
	AccountID string
	Level     int
	Members   map[string]GroupRef // member id -> group
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of c.
func (c *Claim) Clone() *Claim {
	out := *c
	out.Cells = append([]Cell(nil), c.Cells...)
	out.Members = maps.Clone(c.Members)
	if out.Members == nil {
		out.Members = make(map[string]GroupRef)
	}
	return &out
}

// MemberGroup returns the group reference of a member.
func (c *Claim) MemberGroup(memberID string) (GroupRef, bool) {
	ref, ok := c.Members[memberID]
	return ref, ok
}

// HasCell reports whether c already owns cell.
func (c *Claim) HasCell(cell Cell) bool {
	for _, own := range c.Cells {
		if own == cell {
			return true
		}
	}
	return false
}
