// Package planner turns observed role changes into queued sync jobs.
package planner

import (
	"context"
	"errors"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/controller/changelog"
	"github.com/rolemirror/rolemirror/internal/db/controller/job"
	"github.com/rolemirror/rolemirror/internal/db/controller/mapping"
	"github.com/rolemirror/rolemirror/internal/db/controller/mark"
	"github.com/rolemirror/rolemirror/internal/db/controller/presence"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/platform"
	"github.com/rolemirror/rolemirror/internal/policy"
)

// EventMemberUpdate is the source_event of jobs planned from live role changes.
const EventMemberUpdate = "member_update"

var (
	plannedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rolemirror",
		Subsystem: "planner",
		Name:      "jobs_enqueued_total",
		Help:      "Jobs enqueued from live role changes.",
	}, []string{"lane"})
	suppressedChanges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rolemirror",
		Subsystem: "planner",
		Name:      "echo_suppressed_total",
		Help:      "Role changes recognised as echoes of our own mutations.",
	})
)

// Event is a member update observed on the platform.
type Event struct {
	GroupID string
	UserID  string
	Bot     bool
	// OldRoleIDs is only meaningful when OldKnown is set.
	OldRoleIDs []string
	OldKnown   bool
	NewRoleIDs []string
}

// Result sums up one HandleMemberUpdate call.
type Result struct {
	Enqueued   int
	Suppressed int
}

// Planner diffs role sets and enqueues jobs for every mapping that should propagate.
type Planner struct {
	db          *gorm.DB
	maxAttempts int
	now         func() time.Time
}

// New creates a planner. maxAttempts <= 0 means DefaultMaxAttempts.
func New(db *gorm.DB, maxAttempts int) *Planner {
	return &Planner{db: db, maxAttempts: maxAttempts, now: time.Now}
}

// WithClock replaces the time source.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now

	return p
}

// HandleMemberUpdate refreshes the presence of the member and plans jobs for the role diff.
func (p *Planner) HandleMemberUpdate(ctx context.Context, ev Event) (Result, error) {
	var res Result

	db := p.db.WithContext(ctx)
	now := p.now()
	newRoles := platform.WithoutImplicit(ev.GroupID, ev.NewRoleIDs)

	oldRoles, err := p.oldRoles(db, ev)
	if err != nil {
		return res, err
	}

	if _, err = presence.MarkActive(db, ev.GroupID, ev.UserID, newRoles, now); err != nil {
		return res, pkgerrors.Wrap(err, "refresh presence")
	}

	if ev.Bot {
		return res, nil
	}

	added, removed := Diff(oldRoles, newRoles)

	for _, ch := range []struct {
		roles  []string
		action models.JobAction
	}{{added, models.ActionAdd}, {removed, models.ActionRemove}} {
		for _, roleID := range ch.roles {
			n, suppressed, err := p.planRole(db, ev.GroupID, ev.UserID, roleID, ch.action, now)
			if err != nil {
				return res, err
			}

			res.Enqueued += n

			if suppressed {
				res.Suppressed++
			}
		}
	}

	if res.Enqueued > 0 {
		entry := &models.RoleChangeLog{
			UserID:        ev.UserID,
			SourceGroupID: ev.GroupID,
			Action:        EventMemberUpdate,
			Result:        models.ResultPlanned,
			Note:          "enqueued=" + strconv.Itoa(res.Enqueued),
		}
		if err = changelog.Write(db, entry); err != nil {
			return res, pkgerrors.Wrap(err, "write planned entry")
		}
	}

	return res, nil
}

// oldRoles falls back to the stored snapshot when the event has no previous state.
// Without either the change is treated as no diff.
func (p *Planner) oldRoles(db *gorm.DB, ev Event) ([]string, error) {
	if ev.OldKnown {
		return platform.WithoutImplicit(ev.GroupID, ev.OldRoleIDs), nil
	}

	stored, err := presence.Get(db, ev.GroupID, ev.UserID)
	if err != nil {
		if errors.Is(err, presence.ErrPresenceNotFound) {
			return platform.WithoutImplicit(ev.GroupID, ev.NewRoleIDs), nil
		}

		return nil, pkgerrors.Wrap(err, "load role snapshot")
	}

	roles, ok := stored.Roles()
	if !ok {
		return platform.WithoutImplicit(ev.GroupID, ev.NewRoleIDs), nil
	}

	return roles, nil
}

func (p *Planner) planRole(db *gorm.DB, groupID, userID, roleID string, action models.JobAction, now time.Time) (int, bool, error) {
	consumed, err := mark.Consume(db, groupID, userID, roleID, action, now)
	if err != nil {
		return 0, false, pkgerrors.Wrap(err, "consume mark")
	}

	if consumed {
		suppressedChanges.Inc()
		log.Debug().Str("group_id", groupID).Str("user_id", userID).Str("role_id", roleID).
			Str("action", string(action)).Msg("own mutation echoed back, not planning")

		return 0, true, nil
	}

	candidates, err := mapping.ForRole(db, groupID, roleID)
	if err != nil {
		return 0, false, pkgerrors.Wrap(err, "load mappings")
	}

	enqueued := 0

	for _, c := range candidates {
		var dir policy.Direction

		switch {
		case c.FromSource(groupID, roleID):
			dir = policy.SourceToTarget
		case c.FromTarget(groupID, roleID):
			dir = policy.TargetToSource
		default:
			continue
		}

		if !policy.ShouldPropagate(c.SyncMode, dir == policy.SourceToTarget) {
			continue
		}

		j := BuildJob(JobSpec{
			Candidate:   c,
			Direction:   dir,
			UserID:      userID,
			Action:      action,
			SourceEvent: EventMemberUpdate,
			MaxAttempts: p.maxAttempts,
		}, now)

		r, err := job.Enqueue(db, j)
		if err != nil {
			return enqueued, false, pkgerrors.Wrap(err, "enqueue")
		}

		if r.Enqueued {
			enqueued++
			plannedJobs.WithLabelValues(string(j.Lane)).Inc()
			log.Debug().Str("job_id", j.JobID).Str("link_id", j.LinkID).Str("user_id", userID).
				Str("target_role_id", j.TargetRoleID).Str("action", string(action)).Str("lane", string(j.Lane)).
				Int64("superseded", r.Cancelled).Msg("job planned")
		}
	}

	return enqueued, false, nil
}

// Diff returns roles present only in next (added) and only in prev (removed).
func Diff(prev, next []string) (added, removed []string) {
	prevSet := make(map[string]struct{}, len(prev))
	for _, r := range prev {
		prevSet[r] = struct{}{}
	}

	nextSet := make(map[string]struct{}, len(next))
	for _, r := range next {
		nextSet[r] = struct{}{}

		if _, ok := prevSet[r]; !ok {
			added = append(added, r)
		}
	}

	for _, r := range prev {
		if _, ok := nextSet[r]; !ok {
			removed = append(removed, r)
		}
	}

	return added, removed
}
