package model

import (
	"math/bits"
	"strings"
)

// Permission is a single management or interaction right inside a claim.
type Permission uint8

const (
	PermBuild Permission = iota
	PermBreak
	PermInteract
	PermContainers
	PermUseWarps
	PermManageWarps
	PermManageMembers
	PermManageGroups
	PermBankDeposit
	PermBankWithdraw
	PermManageSettings
	PermManageNation

	permCount
)

var permissionNames = [...]string{
	PermBuild:          "BUILD",
	PermBreak:          "BREAK",
	PermInteract:       "INTERACT",
	PermContainers:     "CONTAINERS",
	PermUseWarps:       "USE_WARPS",
	PermManageWarps:    "MANAGE_WARPS",
	PermManageMembers:  "MANAGE_MEMBERS",
	PermManageGroups:   "MANAGE_GROUPS",
	PermBankDeposit:    "BANK_DEPOSIT",
	PermBankWithdraw:   "BANK_WITHDRAW",
	PermManageSettings: "MANAGE_SETTINGS",
	PermManageNation:   "MANAGE_NATION",
}

func (p Permission) String() string {
	if int(p) < len(permissionNames) {
		return permissionNames[p]
	}
	return "UNKNOWN"
}

// ParsePermission resolves a permission by its name, case-insensitively.
func ParsePermission(name string) (Permission, bool) {
	for i, n := range permissionNames {
		if strings.EqualFold(n, name) {
			return Permission(i), true
		}
	}
	return 0, false
}

// AllPermissions lists every permission in declaration order.
func AllPermissions() []Permission {
	out := make([]Permission, 0, permCount)
	for p := Permission(0); p < permCount; p++ {
		out = append(out, p)
	}
	return out
}

// PermissionSet is a bit set of permissions.
type PermissionSet uint64

const (
	// EmptyPermissions grants nothing.
	EmptyPermissions PermissionSet = 0
	// UniversalPermissions grants everything.
	UniversalPermissions PermissionSet = 1<<permCount - 1
)

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s = s.With(p)
	}
	return s
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	return s&(1<<p) != 0
}

// With returns s with p added.
func (s PermissionSet) With(p Permission) PermissionSet {
	return s | 1<<p
}

// Without returns s with p removed.
func (s PermissionSet) Without(p Permission) PermissionSet {
	return s &^ (1 << p)
}

// Union returns the permissions in either set.
func (s PermissionSet) Union(o PermissionSet) PermissionSet {
	return s | o
}

// Len returns the number of permissions in the set.
func (s PermissionSet) Len() int {
	return bits.OnesCount64(uint64(s & UniversalPermissions))
}

// List returns the permissions in the set in declaration order.
func (s PermissionSet) List() []Permission {
	var out []Permission
	for p := Permission(0); p < permCount; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s PermissionSet) String() string {
	names := make([]string, 0, s.Len())
	for _, p := range s.List() {
		names = append(names, p.String())
	}
	return "[" + strings.Join(names, ",") + "]"
}
