package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the coarse account class stored on a profile.
type Role string

const (
	RoleAdministrator Role = "admin"
	RoleMember        Role = "user"
)

// Permission is an atomic capability key. Permissions are never stored on a
// profile; they are derived from the role through the table below.
type Permission string

const (
	PermCreateResource    Permission = "resource.create"
	PermEditOwnResource   Permission = "resource.edit_own"
	PermDeleteOwnResource Permission = "resource.delete_own"
	PermDeleteAnyResource Permission = "resource.delete_any"
	PermVote              Permission = "poll.vote"
	PermView              Permission = "poll.view"
	PermManageIdentities  Permission = "identity.manage"
	PermSuspendIdentities Permission = "identity.suspend"
	PermModeratePolls     Permission = "moderation.polls"
	PermModerateComments  Permission = "moderation.comments"
	PermViewAnalytics     Permission = "analytics.view"
)

// PermissionInfo describes a permission for listings.
type PermissionInfo struct {
	Key         Permission `json:"key"`
	Description string     `json:"description"`
}

var BuiltinPermissions = []PermissionInfo{
	{Key: PermCreateResource, Description: "Create polls"},
	{Key: PermEditOwnResource, Description: "Edit own polls and comments"},
	{Key: PermDeleteOwnResource, Description: "Delete own polls and comments"},
	{Key: PermDeleteAnyResource, Description: "Edit or delete any poll or comment"},
	{Key: PermVote, Description: "Vote on polls"},
	{Key: PermView, Description: "View polls"},
	{Key: PermManageIdentities, Description: "Manage user roles"},
	{Key: PermSuspendIdentities, Description: "Suspend and reinstate users"},
	{Key: PermModeratePolls, Description: "Moderate polls"},
	{Key: PermModerateComments, Description: "Moderate comments"},
	{Key: PermViewAnalytics, Description: "View analytics"},
}

var memberPermissions = []Permission{
	PermCreateResource,
	PermEditOwnResource,
	PermDeleteOwnResource,
	PermVote,
	PermView,
}

var rolePermissions = map[Role]PermissionSet{
	RoleAdministrator: newPermissionSet(append(append([]Permission{}, memberPermissions...),
		PermManageIdentities,
		PermModeratePolls,
		PermModerateComments,
		PermViewAnalytics,
		PermDeleteAnyResource,
		PermSuspendIdentities,
	)...),
	RoleMember: newPermissionSet(memberPermissions...),
}

// ParseRole normalises a stored or submitted role name.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdministrator:
		return RoleAdministrator, nil
	case RoleMember:
		return RoleMember, nil
	default:
		return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, raw)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// DisplayName returns the human readable role label.
func (r Role) DisplayName() string {
	switch r {
	case RoleAdministrator:
		return "Administrator"
	case RoleMember:
		return "Member"
	default:
		return "Unknown"
	}
}

// PermissionSet is an immutable-by-convention set of permissions.
type PermissionSet map[Permission]struct{}

func newPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the permission keys in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PermissionsFor returns a copy of the permissions carried by role. Unknown
// roles yield an empty set.
func PermissionsFor(role Role) PermissionSet {
	src := rolePermissions[role]
	out := make(PermissionSet, len(src))
	for p := range src {
		out[p] = struct{}{}
	}
	return out
}

// HasPermission reports whether role carries p.
func HasPermission(role Role, p Permission) bool {
	return rolePermissions[role].Has(p)
}

// HasAnyPermission reports whether role carries at least one of perms.
func HasAnyPermission(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role carries every one of perms.
func HasAllPermissions(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}
