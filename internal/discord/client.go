// Package discord adapts a discordgo session to the platform client and feeds
// gateway member events into the planner and roster.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	pkgerrors "github.com/pkg/errors"

	"github.com/rolemirror/rolemirror/internal/logger/adapter/gatewaylog"
	"github.com/rolemirror/rolemirror/internal/platform"
)

// Intents are the gateway intents the service needs.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

// maxMembersPage is the largest page the members endpoint serves.
const maxMembersPage = 1000

// Client implements platform.Client over the Discord REST API.
type Client struct {
	s *discordgo.Session
}

var _ platform.Client = (*Client)(nil)

// NewSession creates a bot session with the required intents and routes its logs to zerolog.
func NewSession(token, logLevel string) (*discordgo.Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create discord session")
	}

	gatewaylog.Install()

	s.LogLevel = gatewaylog.ParseLevel(logLevel)
	s.Identify.Intents = Intents
	s.StateEnabled = true

	return s, nil
}

// New wraps an open or unopened session.
func New(s *discordgo.Session) *Client {
	return &Client{s: s}
}

// classify maps REST failures onto the platform error vocabulary.
// notFound is used for a bare 404 without a Discord error code.
func classify(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return &platform.NetworkError{Code: "rate_limited", Err: err}
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}

	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownGuild:
			return fmt.Errorf("%w: %s", platform.ErrGroupNotFound, rest.Message.Message)
		case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
			return fmt.Errorf("%w: %s", platform.ErrMemberNotFound, rest.Message.Message)
		case discordgo.ErrCodeUnknownRole:
			return fmt.Errorf("%w: %s", platform.ErrRoleNotFound, rest.Message.Message)
		}
	}

	if rest.Response == nil {
		return err
	}

	switch code := rest.Response.StatusCode; {
	case code == http.StatusNotFound && notFound != nil:
		return fmt.Errorf("%w: %s", notFound, err.Error())
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return &platform.NetworkError{Code: fmt.Sprintf("http_%d", code), Err: err}
	}

	return err
}

func toMember(groupID string, m *discordgo.Member) platform.Member {
	out := platform.Member{GroupID: groupID, RoleIDs: append([]string(nil), m.Roles...)}
	if m.User != nil {
		out.UserID = m.User.ID
		out.Bot = m.User.Bot
	}

	return out
}

func toRole(groupID string, r *discordgo.Role) platform.Role {
	return platform.Role{
		ID:          r.ID,
		GroupID:     groupID,
		Name:        r.Name,
		Color:       r.Color,
		Hoist:       r.Hoist,
		Mentionable: r.Mentionable,
		Managed:     r.Managed,
		Permissions: r.Permissions,
		Position:    r.Position,
	}
}

// FetchGroup implements platform.Client.
func (c *Client) FetchGroup(ctx context.Context, groupID string) (*platform.Group, error) {
	g, err := c.s.Guild(groupID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, platform.ErrGroupNotFound)
	}

	return &platform.Group{ID: g.ID, Name: g.Name}, nil
}

// FetchMember implements platform.Client.
func (c *Client) FetchMember(ctx context.Context, groupID, userID string) (*platform.Member, error) {
	m, err := c.s.GuildMember(groupID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, platform.ErrMemberNotFound)
	}

	out := toMember(groupID, m)

	return &out, nil
}

// ListRoles implements platform.Client.
func (c *Client) ListRoles(ctx context.Context, groupID string) ([]platform.Role, error) {
	roles, err := c.s.GuildRoles(groupID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, platform.ErrGroupNotFound)
	}

	out := make([]platform.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, toRole(groupID, r))
	}

	return out, nil
}

// FetchRole implements platform.Client. The API has no single role endpoint, so the
// role list is read and searched.
func (c *Client) FetchRole(ctx context.Context, groupID, roleID string) (*platform.Role, error) {
	roles, err := c.ListRoles(ctx, groupID)
	if err != nil {
		return nil, err
	}

	for _, r := range roles {
		if r.ID == roleID {
			return &r, nil
		}
	}

	return nil, fmt.Errorf("role %s in group %s: %w", roleID, groupID, platform.ErrRoleNotFound)
}

// AddRole implements platform.Client.
func (c *Client) AddRole(ctx context.Context, groupID, userID, roleID, reason string) error {
	err := c.s.GuildMemberRoleAdd(groupID, userID, roleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))

	return classify(err, platform.ErrMemberNotFound)
}

// RemoveRole implements platform.Client.
func (c *Client) RemoveRole(ctx context.Context, groupID, userID, roleID, reason string) error {
	err := c.s.GuildMemberRoleRemove(groupID, userID, roleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))

	return classify(err, platform.ErrMemberNotFound)
}

// ListMembersPage implements platform.Client.
func (c *Client) ListMembersPage(ctx context.Context, groupID, after string, limit int) ([]platform.Member, error) {
	limit = min(max(limit, 1), maxMembersPage)

	members, err := c.s.GuildMembers(groupID, after, limit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, platform.ErrGroupNotFound)
	}

	out := make([]platform.Member, 0, len(members))
	for _, m := range members {
		out = append(out, toMember(groupID, m))
	}

	return out, nil
}

// roleParams renders a spec for the role create endpoint.
func roleParams(spec platform.RoleSpec) *discordgo.RoleParams {
	color, hoist, mentionable, perms := spec.Color, spec.Hoist, spec.Mentionable, spec.Permissions

	return &discordgo.RoleParams{
		Name:        spec.Name,
		Color:       &color,
		Hoist:       &hoist,
		Mentionable: &mentionable,
		Permissions: &perms,
	}
}

// CreateRole implements platform.Client.
func (c *Client) CreateRole(ctx context.Context, groupID string, spec platform.RoleSpec, reason string) (*platform.Role, error) {
	r, err := c.s.GuildRoleCreate(groupID, roleParams(spec),
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return nil, classify(err, platform.ErrGroupNotFound)
	}

	out := toRole(groupID, r)

	return &out, nil
}

// SetRolePositions implements platform.Client.
func (c *Client) SetRolePositions(ctx context.Context, groupID string, positions []platform.RolePosition, reason string) error {
	roles := make([]*discordgo.Role, 0, len(positions))
	for _, p := range positions {
		roles = append(roles, &discordgo.Role{ID: p.RoleID, Position: p.Position})
	}

	_, err := c.s.GuildRoleReorder(groupID, roles,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))

	return classify(err, platform.ErrRoleNotFound)
}
