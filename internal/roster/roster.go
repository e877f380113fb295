// Package roster keeps the local membership table in step with the platform.
package roster

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/cancelreg"
	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/group"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/controller/presence"
	"github.com/rolemirror/rolemirror/internal/platform"
	"github.com/rolemirror/rolemirror/internal/scheduler"
)

var (
	// ErrInvalidSide is returned for a side other than source, target or both.
	ErrInvalidSide = errors.New("side must be source, target or both")
	// ErrMarkMissingNeedsFullRun is returned when missing members would be deactivated by a capped run.
	ErrMarkMissingNeedsFullRun = errors.New("marking missing members inactive requires an unlimited run")
)

// Side selects which groups of a link a bootstrap walks.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
	SideBoth   Side = "both"
)

// ParseSide normalizes a side name; empty means both.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case "", SideBoth:
		return SideBoth, nil
	case SideSource:
		return SideSource, nil
	case SideTarget:
		return SideTarget, nil
	default:
		return "", ErrInvalidSide
	}
}

// Service records joins and leaves and bulk loads member lists.
type Service struct {
	db     *gorm.DB
	client platform.Client
	cfg    config.Bootstrap
	runs   *cancelreg.Registry
	now    func() time.Time
}

// New creates the service.
func New(db *gorm.DB, client platform.Client, cfg config.Bootstrap) *Service {
	return &Service{db: db, client: client, cfg: cfg, runs: cancelreg.New(), now: time.Now}
}

// OnJoin marks the user active. roles may be nil when the event carries none.
func (s *Service) OnJoin(ctx context.Context, groupID, userID string, roles []string) error {
	if roles != nil {
		roles = platform.WithoutImplicit(groupID, roles)
	}

	_, err := presence.MarkActive(s.db.WithContext(ctx), groupID, userID, roles, s.now())

	return pkgerrors.Wrap(err, "mark active")
}

// OnLeave marks the user inactive and stamps left_at.
func (s *Service) OnLeave(ctx context.Context, groupID, userID string) error {
	_, err := presence.MarkInactive(s.db.WithContext(ctx), groupID, userID, s.now())

	return pkgerrors.Wrap(err, "mark inactive")
}

// BootstrapOptions tunes a bootstrap.
type BootstrapOptions struct {
	Side Side
	// MaxMembers caps the members read per group, 0 reads all.
	MaxMembers int
	// MarkMissingInactive deactivates every member not seen during the run.
	MarkMissingInactive bool
	Progress            func(BootstrapProgress)
}

// BootstrapProgress is reported after every page.
type BootstrapProgress struct {
	LinkID      string `json:"link_id,omitempty"`
	GroupID     string `json:"group_id"`
	GroupName   string `json:"group_name"`
	GroupIndex  int    `json:"group_index"`
	TotalGroups int    `json:"total_groups"`
	Scanned     int    `json:"scanned"`
	Pages       int    `json:"pages"`
}

// GroupResult is the outcome of one group.
type GroupResult struct {
	GroupID      string `json:"group_id"`
	GroupName    string `json:"group_name"`
	Scanned      int    `json:"scanned"`
	Pages        int    `json:"pages"`
	Completed    bool   `json:"completed"`
	Aborted      bool   `json:"aborted"`
	LimitReached bool   `json:"limit_reached"`
	Deactivated  int64  `json:"deactivated"`
}

// BootstrapResult is the outcome of a link bootstrap.
type BootstrapResult struct {
	LinkID              string        `json:"link_id"`
	Side                Side          `json:"side"`
	MaxMembers          int           `json:"max_members"`
	MarkMissingInactive bool          `json:"mark_missing_inactive"`
	Took                time.Duration `json:"took"`
	Groups              []GroupResult `json:"groups"`
}

// Bootstrap loads the member lists of one or both groups of a link.
func (s *Service) Bootstrap(ctx context.Context, linkID string, opts BootstrapOptions) (BootstrapResult, error) {
	side, err := ParseSide(string(opts.Side))
	if err != nil {
		return BootstrapResult{}, err
	}

	opts.MaxMembers = max(0, opts.MaxMembers)
	res := BootstrapResult{LinkID: linkID, Side: side, MaxMembers: opts.MaxMembers, MarkMissingInactive: opts.MarkMissingInactive}

	if opts.MarkMissingInactive && opts.MaxMembers > 0 {
		return res, ErrMarkMissingNeedsFullRun
	}

	l, err := link.Get(s.db.WithContext(ctx), linkID)
	if err != nil {
		return res, pkgerrors.Wrap(err, "load link")
	}

	var groups []string

	switch side {
	case SideSource:
		groups = []string{l.SourceGroupID}
	case SideTarget:
		groups = []string{l.TargetGroupID}
	default:
		groups = []string{l.SourceGroupID, l.TargetGroupID}
	}

	started := time.Now()

	for i, g := range groups {
		progress := opts.Progress
		if progress != nil {
			idx := i
			progress = func(p BootstrapProgress) {
				p.LinkID, p.GroupIndex, p.TotalGroups = linkID, idx, len(groups)
				opts.Progress(p)
			}
		}

		gr, err := s.BootstrapGroup(ctx, g, BootstrapOptions{
			MaxMembers:          opts.MaxMembers,
			MarkMissingInactive: opts.MarkMissingInactive,
			Progress:            progress,
		})
		if err != nil {
			res.Took = time.Since(started)
			return res, err
		}

		res.Groups = append(res.Groups, gr)
	}

	res.Took = time.Since(started)

	return res, nil
}

// BootstrapGroup pages through the members of a group and marks them active with their roles.
// One bootstrap per group may run at a time; Stop ends it after the current page.
func (s *Service) BootstrapGroup(ctx context.Context, groupID string, opts BootstrapOptions) (GroupResult, error) {
	res := GroupResult{GroupID: groupID}
	maxMembers := max(0, opts.MaxMembers)

	if opts.MarkMissingInactive && maxMembers > 0 {
		return res, ErrMarkMissingNeedsFullRun
	}

	g, err := s.client.FetchGroup(ctx, groupID)
	if err != nil {
		return res, pkgerrors.Wrapf(err, "fetch group %s", groupID)
	}

	res.GroupName = g.Name
	db := s.db.WithContext(ctx)

	if _, err = group.Upsert(db, g.ID, g.Name, false); err != nil {
		return res, pkgerrors.Wrap(err, "register group")
	}

	tok, err := s.runs.Start(ctx, groupID)
	if err != nil {
		return res, pkgerrors.Wrapf(err, "bootstrap of %s", groupID)
	}
	defer s.runs.Release(tok)

	if opts.MarkMissingInactive {
		if res.Deactivated, err = presence.MarkAllInactive(db, groupID, s.now()); err != nil {
			return res, pkgerrors.Wrap(err, "deactivate members")
		}
	}

	pageSize := s.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	delay := time.Duration(s.cfg.PageDelayMS) * time.Millisecond
	wait := tok.Context()
	after := ""

	for {
		if tok.Stopped() {
			res.Aborted = true
			break
		}

		limit := pageSize
		if maxMembers > 0 {
			limit = min(limit, maxMembers-res.Scanned)
		}

		members, err := s.client.ListMembersPage(ctx, groupID, after, limit)
		if err != nil {
			if tok.Stopped() {
				res.Aborted = true
				break
			}

			return res, pkgerrors.Wrapf(err, "list members of %s", groupID)
		}

		if len(members) == 0 {
			break
		}

		if err = s.storePage(db, groupID, members); err != nil {
			return res, err
		}

		res.Scanned += len(members)
		res.Pages++
		after = members[len(members)-1].UserID

		if opts.Progress != nil {
			opts.Progress(BootstrapProgress{GroupID: groupID, GroupName: g.Name, Scanned: res.Scanned, Pages: res.Pages})
		}

		if len(members) < limit {
			break
		}

		if maxMembers > 0 && res.Scanned >= maxMembers {
			res.LimitReached = true
			break
		}

		_ = scheduler.Sleep(wait, delay)
	}

	res.Completed = !res.Aborted

	log.Info().Str("group_id", groupID).Int("scanned", res.Scanned).Int("pages", res.Pages).
		Bool("aborted", res.Aborted).Int64("deactivated", res.Deactivated).Msg("member bootstrap finished")

	return res, nil
}

func (s *Service) storePage(db *gorm.DB, groupID string, members []platform.Member) error {
	now := s.now()

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, m := range members {
			if m.UserID == "" {
				continue
			}

			if _, err := presence.MarkActive(tx, groupID, m.UserID, platform.WithoutImplicit(groupID, m.RoleIDs), now); err != nil {
				return err
			}
		}

		return nil
	})

	return pkgerrors.Wrap(err, "store member page")
}

// Stop requests the bootstrap of a group to stop. It reports whether one was running.
func (s *Service) Stop(groupID string) bool {
	return s.runs.Stop(groupID)
}

// StopAll stops every running bootstrap.
func (s *Service) StopAll() {
	s.runs.StopAll()
}

// Running lists groups with an active bootstrap.
func (s *Service) Running() []string {
	return s.runs.Keys()
}
