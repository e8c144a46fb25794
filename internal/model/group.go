package model

import (
	"fmt"
	"strings"
	"time"
)

// LegacyGroup is the fixed, ordered group enum predating custom groups.
// Its ordinal is its priority.
type LegacyGroup uint8

const (
	LegacyMember LegacyGroup = iota
	LegacyTrusted
	LegacyManager
	LegacyCoOwner

	legacyCount
)

var legacyNames = [...]string{
	LegacyMember:  "MEMBER",
	LegacyTrusted: "TRUSTED",
	LegacyManager: "MANAGER",
	LegacyCoOwner: "CO_OWNER",
}

var legacyDefaults = [...]PermissionSet{
	LegacyMember: NewPermissionSet(PermInteract, PermUseWarps, PermBankDeposit),
	LegacyTrusted: NewPermissionSet(PermInteract, PermUseWarps, PermBankDeposit,
		PermBuild, PermBreak, PermContainers),
	LegacyManager: NewPermissionSet(PermInteract, PermUseWarps, PermBankDeposit,
		PermBuild, PermBreak, PermContainers, PermManageWarps, PermManageMembers),
	LegacyCoOwner: UniversalPermissions.Without(PermManageNation),
}

// LegacyGroups lists the legacy groups in ordinal order.
func LegacyGroups() []LegacyGroup {
	return []LegacyGroup{LegacyMember, LegacyTrusted, LegacyManager, LegacyCoOwner}
}

// Valid reports whether g is a defined legacy group.
func (g LegacyGroup) Valid() bool {
	return g < legacyCount
}

func (g LegacyGroup) String() string {
	if g.Valid() {
		return legacyNames[g]
	}
	return "UNKNOWN"
}

// Priority is derived from the ordinal.
func (g LegacyGroup) Priority() int {
	return int(g)
}

// DefaultPermissions is the built-in permission set of g.
func (g LegacyGroup) DefaultPermissions() PermissionSet {
	if g.Valid() {
		return legacyDefaults[g]
	}
	return EmptyPermissions
}

// ParseLegacyGroup resolves a legacy group tag, case-insensitively.
func ParseLegacyGroup(tag string) (LegacyGroup, bool) {
	for i, n := range legacyNames {
		if strings.EqualFold(n, tag) {
			return LegacyGroup(i), true
		}
	}
	return 0, false
}

// GroupKind tags a GroupRef.
type GroupKind uint8

const (
	GroupKindNone GroupKind = iota
	GroupKindLegacy
	GroupKindCustom
)

// GroupRef points a member at exactly one group: a legacy tag or a custom
// group id. The zero value refers to no group.
type GroupRef struct {
	kind     GroupKind
	legacy   LegacyGroup
	customID string
}

// LegacyRef refers to a legacy group.
func LegacyRef(g LegacyGroup) GroupRef {
	return GroupRef{kind: GroupKindLegacy, legacy: g}
}

// CustomRef refers to a custom group by id.
func CustomRef(id string) GroupRef {
	return GroupRef{kind: GroupKindCustom, customID: id}
}

// Kind returns the tag of the reference.
func (r GroupRef) Kind() GroupKind {
	return r.kind
}

// IsZero reports whether r refers to no group.
func (r GroupRef) IsZero() bool {
	return r.kind == GroupKindNone
}

// Legacy returns the legacy tag when r is a legacy reference.
func (r GroupRef) Legacy() (LegacyGroup, bool) {
	return r.legacy, r.kind == GroupKindLegacy
}

// Custom returns the custom group id when r is a custom reference.
func (r GroupRef) Custom() (string, bool) {
	return r.customID, r.kind == GroupKindCustom
}

// Valid reports whether r is a well-formed, non-zero reference.
func (r GroupRef) Valid() bool {
	switch r.kind {
	case GroupKindLegacy:
		return r.legacy.Valid()
	case GroupKindCustom:
		return r.customID != ""
	}
	return false
}

// String encodes r as "legacy:TAG" or "custom:ID".
func (r GroupRef) String() string {
	switch r.kind {
	case GroupKindLegacy:
		return "legacy:" + r.legacy.String()
	case GroupKindCustom:
		return "custom:" + r.customID
	}
	return ""
}

// ParseGroupRef decodes the String form of a GroupRef.
func ParseGroupRef(s string) (GroupRef, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return GroupRef{}, fmt.Errorf("invalid group ref %q", s)
	}
	switch kind {
	case "legacy":
		g, ok := ParseLegacyGroup(value)
		if !ok {
			return GroupRef{}, fmt.Errorf("unknown legacy group %q", value)
		}
		return LegacyRef(g), nil
	case "custom":
		return CustomRef(value), nil
	}
	return GroupRef{}, fmt.Errorf("invalid group ref kind %q", kind)
}

// OwnerGroupName is the reserved name of the synthetic owner group.
const OwnerGroupName = "Owner"

// IsOwnerGroupName reports whether name collides with the reserved owner group.
func IsOwnerGroupName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), OwnerGroupName)
}

// CustomGroup is a per-claim permission group.
type CustomGroup struct {
	ID          string
	ClaimID     string
	Name        string
	Priority    int
	Permissions PermissionSet
	Icon        string // cosmetic, opaque
	Color       string // cosmetic, opaque
	Reserved    bool   // the synthetic owner group
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GroupView is a legacy or custom group flattened for listings.
type GroupView struct {
	Ref         GroupRef
	Name        string
	Priority    int
	Permissions PermissionSet
	Reserved    bool
}

// LegacyView flattens a legacy group.
func LegacyView(g LegacyGroup) GroupView {
	return GroupView{
		Ref:         LegacyRef(g),
		Name:        g.String(),
		Priority:    g.Priority(),
		Permissions: g.DefaultPermissions(),
	}
}

// CustomView flattens a custom group.
func CustomView(g *CustomGroup) GroupView {
	return GroupView{
		Ref:         CustomRef(g.ID),
		Name:        g.Name,
		Priority:    g.Priority,
		Permissions: g.Permissions,
		Reserved:    g.Reserved,
	}
}

// LessGroupView orders reserved groups first, then priority descending, then
// case-insensitive name ascending, then raw name for a total order.
func LessGroupView(a, b GroupView) bool {
	if a.Reserved != b.Reserved {
		return a.Reserved
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if la != lb {
		return la < lb
	}
	return a.Name < b.Name
}
