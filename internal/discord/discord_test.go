package discord

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/db/controller/group"
	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/planner"
	"github.com/rolemirror/rolemirror/internal/platform"
)

func restErr(status, code int) error {
	e := &discordgo.RESTError{
		Response:     &http.Response{StatusCode: status, Status: http.StatusText(status)},
		ResponseBody: []byte("{}"),
	}
	if code != 0 {
		e.Message = &discordgo.APIErrorMessage{Code: code, Message: "unknown"}
	}

	return e
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		fallback  error
		want      error
		isNetwork bool
	}{
		{name: "unknown member", err: restErr(404, discordgo.ErrCodeUnknownMember), want: platform.ErrMemberNotFound},
		{name: "unknown role", err: restErr(404, discordgo.ErrCodeUnknownRole), want: platform.ErrRoleNotFound},
		{name: "unknown guild", err: restErr(404, discordgo.ErrCodeUnknownGuild), fallback: platform.ErrMemberNotFound, want: platform.ErrGroupNotFound},
		{name: "bare 404", err: restErr(404, 0), fallback: platform.ErrGroupNotFound, want: platform.ErrGroupNotFound},
		{name: "server error", err: restErr(502, 0), isNetwork: true},
		{name: "too many requests", err: restErr(429, 0), isNetwork: true},
		{name: "rate limit", err: &discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{URL: "x", TooManyRequests: &discordgo.TooManyRequests{}}}, isNetwork: true},
		{name: "forbidden", err: restErr(403, discordgo.ErrCodeMissingPermissions)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err, tc.fallback)
			require.Error(t, got)

			if tc.want != nil {
				require.ErrorIs(t, got, tc.want)
			}

			assert.Equal(t, tc.isNetwork, platform.IsNetworkError(got))

			if tc.want == nil && !tc.isNetwork {
				assert.False(t, platform.IsNotFound(got))
			}
		})
	}

	assert.NoError(t, classify(nil, platform.ErrRoleNotFound))
}

func TestConversions(t *testing.T) {
	m := toMember("1", &discordgo.Member{User: &discordgo.User{ID: "u", Bot: true}, Roles: []string{"10"}})
	assert.Equal(t, platform.Member{GroupID: "1", UserID: "u", Bot: true, RoleIDs: []string{"10"}}, m)

	r := toRole("1", &discordgo.Role{ID: "1", Name: "@everyone", Position: 0, Permissions: 8})
	assert.True(t, r.IsImplicit())
	assert.Equal(t, int64(8), r.Permissions)

	p := roleParams(platform.RoleSpec{Name: "vip", Color: 7, Permissions: platform.SafePermissions})
	assert.Equal(t, "vip", p.Name)
	require.NotNil(t, p.Color)
	assert.Equal(t, 7, *p.Color)
	require.NotNil(t, p.Hoist)
	assert.False(t, *p.Hoist)
	assert.Equal(t, platform.SafePermissions, *p.Permissions)
}

func TestNewSessionNeedsToken(t *testing.T) {
	_, err := NewSession("", "warn")
	require.ErrorIs(t, err, ErrNoToken)

	s, err := NewSession("abc", "info")
	require.NoError(t, err)
	assert.Equal(t, Intents, s.Identify.Intents)
	assert.Equal(t, discordgo.LogInformational, s.LogLevel)
}

func TestMemberEvent(t *testing.T) {
	_, ok := MemberEvent(&discordgo.GuildMemberUpdate{})
	assert.False(t, ok)

	ev, ok := MemberEvent(&discordgo.GuildMemberUpdate{
		Member: &discordgo.Member{GuildID: "1", User: &discordgo.User{ID: "u"}, Roles: []string{"10", "11"}},
	})
	require.True(t, ok)
	assert.False(t, ev.OldKnown, "no cached member before the update")
	assert.Equal(t, []string{"10", "11"}, ev.NewRoleIDs)

	ev, ok = MemberEvent(&discordgo.GuildMemberUpdate{
		Member:       &discordgo.Member{GuildID: "1", User: &discordgo.User{ID: "u"}, Roles: []string{"10"}},
		BeforeUpdate: &discordgo.Member{Roles: []string{"11"}},
	})
	require.True(t, ok)
	assert.True(t, ev.OldKnown)
	assert.Equal(t, []string{"11"}, ev.OldRoleIDs)
}

type recorder struct {
	events []planner.Event
	joins  []string
	leaves []string
	fail   error
}

func (r *recorder) HandleMemberUpdate(_ context.Context, ev planner.Event) (planner.Result, error) {
	r.events = append(r.events, ev)

	return planner.Result{Enqueued: 1}, r.fail
}

func (r *recorder) OnJoin(_ context.Context, groupID, userID string, _ []string) error {
	r.joins = append(r.joins, groupID+"/"+userID)

	return r.fail
}

func (r *recorder) OnLeave(_ context.Context, groupID, userID string) error {
	r.leaves = append(r.leaves, groupID+"/"+userID)

	return r.fail
}

func TestHandlers(t *testing.T) {
	db := dbtest.Open(t)
	rec := &recorder{}
	h := NewHandlers(context.Background(), db, rec, rec)

	member := &discordgo.Member{GuildID: "1", User: &discordgo.User{ID: "u"}, Roles: []string{"10"}}

	h.onMemberUpdate(nil, &discordgo.GuildMemberUpdate{Member: member})
	h.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: member})
	h.onMemberRemove(nil, &discordgo.GuildMemberRemove{Member: member})
	h.onMemberRemove(nil, &discordgo.GuildMemberRemove{})

	require.Len(t, rec.events, 1)
	assert.Equal(t, "u", rec.events[0].UserID)
	assert.Equal(t, []string{"1/u"}, rec.joins)
	assert.Equal(t, []string{"1/u"}, rec.leaves)

	rec.fail = errors.New("db locked")
	h.onMemberUpdate(nil, &discordgo.GuildMemberUpdate{Member: member})
	assert.Len(t, rec.events, 2, "errors are logged, not propagated")

	h.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "1", Name: "main"}})
	h.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "2", Unavailable: true}})

	groups, err := group.List(db)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "main", groups[0].Name)
}
