// Package platform describes the chat platform the service mirrors roles on.
// The daemon wires a discordgo backed Client; tests use platformtest.Fake.
package platform

import (
	"context"
	"slices"
)

// Group is a community on the platform.
type Group struct {
	ID   string
	Name string
}

// Member is a user inside a group with the roles they hold.
type Member struct {
	GroupID string
	UserID  string
	Bot     bool
	RoleIDs []string
}

// HasRole reports whether the member holds roleID.
func (m Member) HasRole(roleID string) bool {
	return slices.Contains(m.RoleIDs, roleID)
}

// Role is a role definition inside a group.
type Role struct {
	ID          string
	GroupID     string
	Name        string
	Color       int
	Hoist       bool
	Mentionable bool
	Managed     bool
	Permissions int64
	Position    int
}

// IsImplicit reports whether the role is the all-members role every member holds.
func (r Role) IsImplicit() bool {
	return r.ID == r.GroupID
}

// IsManaged reports whether the role belongs to an integration and cannot be assigned.
func (r Role) IsManaged() bool {
	return r.Managed
}

// RoleSpec describes a role to create.
type RoleSpec struct {
	Name        string
	Color       int
	Hoist       bool
	Mentionable bool
	Permissions int64
}

// RolePosition moves one role.
type RolePosition struct {
	RoleID   string
	Position int
}

// Client is everything the sync engine needs from the platform.
// Not found conditions are reported as ErrGroupNotFound, ErrMemberNotFound or ErrRoleNotFound.
type Client interface {
	FetchGroup(ctx context.Context, groupID string) (*Group, error)
	FetchMember(ctx context.Context, groupID, userID string) (*Member, error)
	FetchRole(ctx context.Context, groupID, roleID string) (*Role, error)
	ListRoles(ctx context.Context, groupID string) ([]Role, error)
	AddRole(ctx context.Context, groupID, userID, roleID, reason string) error
	RemoveRole(ctx context.Context, groupID, userID, roleID, reason string) error
	// ListMembersPage returns up to limit members with user id greater than after.
	ListMembersPage(ctx context.Context, groupID, after string, limit int) ([]Member, error)
	CreateRole(ctx context.Context, groupID string, spec RoleSpec, reason string) (*Role, error)
	SetRolePositions(ctx context.Context, groupID string, positions []RolePosition, reason string) error
}

// WithoutImplicit drops the all-members role of groupID from roleIDs.
func WithoutImplicit(groupID string, roleIDs []string) []string {
	out := make([]string, 0, len(roleIDs))

	for _, id := range roleIDs {
		if id != groupID {
			out = append(out, id)
		}
	}

	return out
}
