package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/controller/group"
	"github.com/rolemirror/rolemirror/internal/planner"
)

// MemberPlanner turns member updates into sync jobs.
type MemberPlanner interface {
	HandleMemberUpdate(ctx context.Context, ev planner.Event) (planner.Result, error)
}

// Roster tracks joins and leaves.
type Roster interface {
	OnJoin(ctx context.Context, groupID, userID string, roles []string) error
	OnLeave(ctx context.Context, groupID, userID string) error
}

// Handlers routes gateway events. ctx bounds every handler invocation.
type Handlers struct {
	ctx     context.Context //nolint:containedctx
	db      *gorm.DB
	planner MemberPlanner
	roster  Roster
}

// NewHandlers returns the gateway event handlers.
func NewHandlers(ctx context.Context, db *gorm.DB, p MemberPlanner, r Roster) *Handlers {
	return &Handlers{ctx: ctx, db: db, planner: p, roster: r}
}

// Register adds every handler to s and returns a function removing them.
func (h *Handlers) Register(s *discordgo.Session) func() {
	removers := []func(){
		s.AddHandler(h.onReady),
		s.AddHandler(h.onGuildCreate),
		s.AddHandler(h.onMemberUpdate),
		s.AddHandler(h.onMemberAdd),
		s.AddHandler(h.onMemberRemove),
	}

	return func() {
		for _, rm := range removers {
			rm()
		}
	}
}

func (h *Handlers) onReady(_ *discordgo.Session, ev *discordgo.Ready) {
	user := ""
	if ev.User != nil {
		user = ev.User.Username
	}

	log.Info().Str("user", user).Int("guilds", len(ev.Guilds)).Msg("gateway ready")
}

func (h *Handlers) onGuildCreate(_ *discordgo.Session, ev *discordgo.GuildCreate) {
	if ev.Guild == nil || ev.Unavailable {
		return
	}

	if _, err := group.Upsert(h.db.WithContext(h.ctx), ev.ID, ev.Name, false); err != nil {
		log.Error().Err(err).Str("group_id", ev.ID).Msg("registering group failed")
	}
}

// MemberEvent converts a gateway member update into a planner event.
func MemberEvent(ev *discordgo.GuildMemberUpdate) (planner.Event, bool) {
	if ev.Member == nil || ev.User == nil {
		return planner.Event{}, false
	}

	out := planner.Event{
		GroupID:    ev.GuildID,
		UserID:     ev.User.ID,
		Bot:        ev.User.Bot,
		NewRoleIDs: append([]string(nil), ev.Roles...),
	}

	if ev.BeforeUpdate != nil {
		out.OldKnown = true
		out.OldRoleIDs = append([]string(nil), ev.BeforeUpdate.Roles...)
	}

	return out, true
}

func (h *Handlers) onMemberUpdate(_ *discordgo.Session, ev *discordgo.GuildMemberUpdate) {
	pe, ok := MemberEvent(ev)
	if !ok {
		return
	}

	res, err := h.planner.HandleMemberUpdate(h.ctx, pe)
	if err != nil {
		log.Error().Err(err).Str("group_id", pe.GroupID).Str("user_id", pe.UserID).Msg("planning member update failed")

		return
	}

	if res.Enqueued > 0 || res.Suppressed > 0 {
		log.Debug().Str("group_id", pe.GroupID).Str("user_id", pe.UserID).
			Int("enqueued", res.Enqueued).Int("suppressed", res.Suppressed).Msg("member update planned")
	}
}

func (h *Handlers) onMemberAdd(_ *discordgo.Session, ev *discordgo.GuildMemberAdd) {
	if ev.Member == nil || ev.User == nil {
		return
	}

	if err := h.roster.OnJoin(h.ctx, ev.GuildID, ev.User.ID, ev.Roles); err != nil {
		log.Error().Err(err).Str("group_id", ev.GuildID).Str("user_id", ev.User.ID).Msg("recording join failed")
	}
}

func (h *Handlers) onMemberRemove(_ *discordgo.Session, ev *discordgo.GuildMemberRemove) {
	if ev.Member == nil || ev.User == nil {
		return
	}

	if err := h.roster.OnLeave(h.ctx, ev.GuildID, ev.User.ID); err != nil {
		log.Error().Err(err).Str("group_id", ev.GuildID).Str("user_id", ev.User.ID).Msg("recording leave failed")
	}
}
