// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/rolemirror/rolemirror/internal/platform"
)

type group struct {
	info    platform.Group
	roles   map[string]platform.Role
	members map[string]platform.Member
}

// Fake is a thread safe in-memory platform.
type Fake struct {
	mu       sync.Mutex
	groups   map[string]*group
	failures map[string][]error
	calls    map[string]int
	reasons  []string
	nextRole int
}

var _ platform.Client = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		groups:   make(map[string]*group),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// PutGroup registers a group together with its implicit all-members role.
func (f *Fake) PutGroup(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.groups[id] = &group{
		info:    platform.Group{ID: id, Name: name},
		roles:   map[string]platform.Role{id: {ID: id, GroupID: id, Name: "@everyone"}},
		members: make(map[string]platform.Member),
	}
}

// PutRole adds or replaces a role definition.
func (f *Fake) PutRole(r platform.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.groups[r.GroupID].roles[r.ID] = r
}

// DeleteRole removes a role definition.
func (f *Fake) DeleteRole(groupID, roleID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.groups[groupID].roles, roleID)
}

// PutMember adds or replaces a member.
func (f *Fake) PutMember(groupID, userID string, roleIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.groups[groupID].members[userID] = platform.Member{
		GroupID: groupID,
		UserID:  userID,
		RoleIDs: slices.Clone(roleIDs),
	}
}

// PutBot adds a bot member.
func (f *Fake) PutBot(groupID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.groups[groupID].members[userID] = platform.Member{GroupID: groupID, UserID: userID, Bot: true}
}

// DeleteMember removes a member.
func (f *Fake) DeleteMember(groupID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.groups[groupID].members, userID)
}

// Member returns the current state of a member.
func (f *Fake) Member(groupID, userID string) (platform.Member, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, ok := f.groups[groupID]
	if !ok {
		return platform.Member{}, false
	}

	m, ok := g.members[userID]

	return m, ok
}

// Role returns the current definition of a role.
func (f *Fake) Role(groupID, roleID string) (platform.Role, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.groups[groupID].roles[roleID]

	return r, ok
}

// RoleByName finds a role by name.
func (f *Fake) RoleByName(groupID, name string) (platform.Role, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.groups[groupID].roles {
		if r.Name == name {
			return r, true
		}
	}

	return platform.Role{}, false
}

// FailNext makes the next calls of op return errs in order.
func (f *Fake) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures[op] = append(f.failures[op], errs...)
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

// Reasons returns the audit reasons passed to mutations.
func (f *Fake) Reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.reasons)
}

// enter counts the call and pops an injected failure. Caller must hold f.mu.
func (f *Fake) enter(op string) error {
	f.calls[op]++

	if q := f.failures[op]; len(q) > 0 {
		f.failures[op] = q[1:]

		return q[0]
	}

	return nil
}

func (f *Fake) lookup(groupID string) (*group, error) {
	g, ok := f.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, platform.ErrGroupNotFound)
	}

	return g, nil
}

// FetchGroup implements platform.Client.
func (f *Fake) FetchGroup(_ context.Context, groupID string) (*platform.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("FetchGroup"); err != nil {
		return nil, err
	}

	g, err := f.lookup(groupID)
	if err != nil {
		return nil, err
	}

	info := g.info

	return &info, nil
}

// FetchMember implements platform.Client.
func (f *Fake) FetchMember(_ context.Context, groupID, userID string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("FetchMember"); err != nil {
		return nil, err
	}

	g, err := f.lookup(groupID)
	if err != nil {
		return nil, err
	}

	m, ok := g.members[userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, platform.ErrMemberNotFound)
	}

	m.RoleIDs = slices.Clone(m.RoleIDs)

	return &m, nil
}

// FetchRole implements platform.Client.
func (f *Fake) FetchRole(_ context.Context, groupID, roleID string) (*platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("FetchRole"); err != nil {
		return nil, err
	}

	g, err := f.lookup(groupID)
	if err != nil {
		return nil, err
	}

	r, ok := g.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, platform.ErrRoleNotFound)
	}

	return &r, nil
}

// ListRoles implements platform.Client.
func (f *Fake) ListRoles(_ context.Context, groupID string) ([]platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("ListRoles"); err != nil {
		return nil, err
	}

	g, err := f.lookup(groupID)
	if err != nil {
		return nil, err
	}

	out := make([]platform.Role, 0, len(g.roles))
	for _, r := range g.roles {
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (f *Fake) mutate(op, groupID, userID, roleID, reason string, add bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(op); err != nil {
		return err
	}

	g, err := f.lookup(groupID)
	if err != nil {
		return err
	}

	if _, ok := g.roles[roleID]; !ok {
		return fmt.Errorf("role %s: %w", roleID, platform.ErrRoleNotFound)
	}

	m, ok := g.members[userID]
	if !ok {
		return fmt.Errorf("member %s: %w", userID, platform.ErrMemberNotFound)
	}

	f.reasons = append(f.reasons, reason)

	has := m.HasRole(roleID)

	switch {
	case add && !has:
		m.RoleIDs = append(slices.Clone(m.RoleIDs), roleID)
	case !add && has:
		m.RoleIDs = slices.DeleteFunc(slices.Clone(m.RoleIDs), func(id string) bool { return id == roleID })
	}

	g.members[userID] = m

	return nil
}

// AddRole implements platform.Client.
func (f *Fake) AddRole(_ context.Context, groupID, userID, roleID, reason string) error {
	return f.mutate("AddRole", groupID, userID, roleID, reason, true)
}

// RemoveRole implements platform.Client.
func (f *Fake) RemoveRole(_ context.Context, groupID, userID, roleID, reason string) error {
	return f.mutate("RemoveRole", groupID, userID, roleID, reason, false)
}

// ListMembersPage implements platform.Client.
func (f *Fake) ListMembersPage(_ context.Context, groupID, after string, limit int) ([]platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("ListMembersPage"); err != nil {
		return nil, err
	}

	g, err := f.lookup(groupID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(g.members))

	for id := range g.members {
		if id > after {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]platform.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.members[id])
	}

	return out, nil
}

// CreateRole implements platform.Client.
func (f *Fake) CreateRole(_ context.Context, groupID string, spec platform.RoleSpec, reason string) (*platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("CreateRole"); err != nil {
		return nil, err
	}

	g, err := f.lookup(groupID)
	if err != nil {
		return nil, err
	}

	f.nextRole++
	f.reasons = append(f.reasons, reason)

	r := platform.Role{
		ID:          fmt.Sprintf("%018d", 900000000000000000+f.nextRole),
		GroupID:     groupID,
		Name:        spec.Name,
		Color:       spec.Color,
		Hoist:       spec.Hoist,
		Mentionable: spec.Mentionable,
		Permissions: spec.Permissions,
		Position:    1,
	}
	g.roles[r.ID] = r

	return &r, nil
}

// SetRolePositions implements platform.Client.
func (f *Fake) SetRolePositions(_ context.Context, groupID string, positions []platform.RolePosition, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("SetRolePositions"); err != nil {
		return err
	}

	g, err := f.lookup(groupID)
	if err != nil {
		return err
	}

	f.reasons = append(f.reasons, reason)

	for _, p := range positions {
		r, ok := g.roles[p.RoleID]
		if !ok {
			return fmt.Errorf("role %s: %w", p.RoleID, platform.ErrRoleNotFound)
		}

		r.Position = p.Position
		g.roles[p.RoleID] = r
	}

	return nil
}
