// Package reconcile compares role possession across linked groups and queues the corrections.
package reconcile

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/cancelreg"
	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/changelog"
	"github.com/rolemirror/rolemirror/internal/db/controller/job"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/controller/mapping"
	"github.com/rolemirror/rolemirror/internal/db/controller/presence"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/planner"
	"github.com/rolemirror/rolemirror/internal/platform"
	"github.com/rolemirror/rolemirror/internal/policy"
	"github.com/rolemirror/rolemirror/internal/scheduler"
)

// Reasons recorded as source_event on reconcile jobs.
const (
	ReasonManual = "manual_reconcile"
	ReasonBatch  = "manual_reconcile_batch"
	ReasonFull   = "manual_reconcile_full"
	ReasonAuto   = "auto_reconcile"
)

// jobDelay is the not_before offset of reconcile jobs.
const jobDelay = 500 * time.Millisecond

const (
	skipLinkDisabled     = "link disabled"
	skipNotInIntersect   = "not in intersection"
	defaultBatchMembers  = 50
	maxSampledFailures   = 50
	defaultFullBatchSize = 50
)

var reconcilePlanned = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rolemirror",
	Subsystem: "reconcile",
	Name:      "jobs_planned_total",
	Help:      "Jobs enqueued by reconciliation.",
}, []string{"reason"})

// MemberResult is the outcome of reconciling one user.
type MemberResult struct {
	UserID  string `json:"user_id"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
	Planned int    `json:"planned"`
	// Departed is set when the user turned out to have left one of the groups.
	Departed bool `json:"departed,omitempty"`
}

// Failure samples a member that could not be reconciled.
type Failure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// Progress is reported after every member of a batch or full run.
type Progress struct {
	TotalEligible int64 `json:"total_eligible"`
	Scanned       int   `json:"scanned"`
	Processed     int   `json:"processed"`
	Skipped       int   `json:"skipped"`
	Planned       int   `json:"planned"`
	Failed        int   `json:"failed"`
	Offset        int   `json:"offset"`
	Aborted       bool  `json:"aborted"`
}

// Service reconciles links. It is safe for concurrent use.
type Service struct {
	db          *gorm.DB
	client      platform.Client
	cfg         config.Reconcile
	maxAttempts int
	runs        *cancelreg.Registry
	autoRunning atomic.Bool
	now         func() time.Time
}

// New creates the service. maxAttempts is the budget of the jobs it plans.
func New(db *gorm.DB, client platform.Client, cfg config.Reconcile, maxAttempts int) *Service {
	return &Service{
		db:          db,
		client:      client,
		cfg:         cfg,
		maxAttempts: maxAttempts,
		runs:        cancelreg.New(),
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now

	return s
}

// Member reconciles one user on a link.
func (s *Service) Member(ctx context.Context, linkID, userID, reason string) (MemberResult, error) {
	if reason == "" {
		reason = ReasonManual
	}

	l, err := link.Get(s.db.WithContext(ctx), linkID)
	if err != nil {
		return MemberResult{UserID: userID}, pkgerrors.Wrap(err, "load link")
	}

	if !l.Enabled {
		return MemberResult{UserID: userID, Skipped: true, Reason: skipLinkDisabled}, nil
	}

	if err = s.reachable(ctx, l); err != nil {
		return MemberResult{UserID: userID}, err
	}

	return s.member(ctx, l, userID, reason)
}

func (s *Service) reachable(ctx context.Context, l *models.SyncLink) error {
	for _, g := range []string{l.SourceGroupID, l.TargetGroupID} {
		if _, err := s.client.FetchGroup(ctx, g); err != nil {
			return pkgerrors.Wrapf(ErrGroupUnreachable, "group %s: %v", g, err)
		}
	}

	return nil
}

// fetchSide loads the member and writes the observation back to presence.
// A nil member without error means the user is not in the group.
func (s *Service) fetchSide(ctx context.Context, db *gorm.DB, groupID, userID string) (*platform.Member, error) {
	m, err := s.client.FetchMember(ctx, groupID, userID)
	if err != nil {
		if !platform.IsNotFound(err) {
			return nil, pkgerrors.Wrapf(err, "fetch member of %s", groupID)
		}

		if _, err = presence.MarkInactive(db, groupID, userID, s.now()); err != nil {
			return nil, pkgerrors.Wrap(err, "store presence")
		}

		return nil, nil
	}

	if _, err = presence.MarkActive(db, groupID, userID, platform.WithoutImplicit(groupID, m.RoleIDs), s.now()); err != nil {
		return nil, pkgerrors.Wrap(err, "store presence")
	}

	return m, nil
}

func (s *Service) member(ctx context.Context, l *models.SyncLink, userID, reason string) (MemberResult, error) {
	res := MemberResult{UserID: userID}
	db := s.db.WithContext(ctx)

	src, err := s.fetchSide(ctx, db, l.SourceGroupID, userID)
	if err != nil {
		return res, err
	}

	dst, err := s.fetchSide(ctx, db, l.TargetGroupID, userID)
	if err != nil {
		return res, err
	}

	if src == nil || dst == nil {
		res.Skipped, res.Reason, res.Departed = true, skipNotInIntersect, true

		return res, nil
	}

	rows, err := mapping.ListByLink(db, l.LinkID, true)
	if err != nil {
		return res, pkgerrors.Wrap(err, "load mappings")
	}

	now := s.now()

	for _, m := range rows {
		c := mapping.Candidate{
			RoleMapping:           m,
			SourceGroupID:         l.SourceGroupID,
			TargetGroupID:         l.TargetGroupID,
			DefaultConflictPolicy: l.DefaultConflictPolicy,
		}

		dir, ok := policy.ReconcileDirection(m.SyncMode, c.Policy())
		if !ok {
			continue
		}

		action, ok := Want(dir, src.HasRole(m.SourceRoleID), dst.HasRole(m.TargetRoleID))
		if !ok {
			continue
		}

		j := planner.BuildJob(planner.JobSpec{
			Candidate:   c,
			Direction:   dir,
			UserID:      userID,
			Action:      action,
			NotBefore:   now.Add(jobDelay),
			SourceEvent: reason,
			MaxAttempts: s.maxAttempts,
		}, now)

		r, err := job.Enqueue(db, j)
		if err != nil {
			return res, pkgerrors.Wrap(err, "enqueue")
		}

		if r.Enqueued {
			res.Planned++
		}
	}

	if res.Planned > 0 {
		reconcilePlanned.WithLabelValues(reason).Add(float64(res.Planned))

		entry := &models.RoleChangeLog{
			LinkID:        l.LinkID,
			UserID:        userID,
			SourceGroupID: l.SourceGroupID,
			TargetGroupID: l.TargetGroupID,
			Action:        reason,
			Result:        models.ResultPlanned,
			Note:          "reconcile planned=" + strconv.Itoa(res.Planned),
		}
		if err = changelog.Write(db, entry); err != nil {
			return res, pkgerrors.Wrap(err, "write planned entry")
		}
	}

	return res, nil
}

// Want returns the action that makes the receiving side match the authoritative side.
// ok is false when both sides already agree.
func Want(dir policy.Direction, sourceHas, targetHas bool) (models.JobAction, bool) {
	from, to := sourceHas, targetHas
	if dir == policy.TargetToSource {
		from, to = targetHas, sourceHas
	}

	switch {
	case from && !to:
		return models.ActionAdd, true
	case !from && to:
		return models.ActionRemove, true
	default:
		return "", false
	}
}

// BatchResult is the outcome of one window over the intersection.
type BatchResult struct {
	LinkID        string    `json:"link_id"`
	TotalEligible int64     `json:"total_eligible"`
	Offset        int       `json:"offset"`
	Scanned       int       `json:"scanned"`
	Processed     int       `json:"processed"`
	Skipped       int       `json:"skipped"`
	Planned       int       `json:"planned"`
	Failed        int       `json:"failed"`
	Failures      []Failure `json:"failures"`
	NextOffset    int       `json:"next_offset"`
}

// Batch reconciles up to maxMembers intersection users starting at offset.
func (s *Service) Batch(ctx context.Context, linkID string, offset, maxMembers int, reason string,
	progress func(Progress),
) (BatchResult, error) {
	if maxMembers <= 0 {
		maxMembers = defaultBatchMembers
	}

	offset = max(0, offset)

	if reason == "" {
		reason = ReasonBatch
	}

	res := BatchResult{LinkID: linkID, Offset: offset, NextOffset: offset, Failures: []Failure{}}
	db := s.db.WithContext(ctx)

	l, err := link.Get(db, linkID)
	if err != nil {
		return res, pkgerrors.Wrap(err, "load link")
	}

	if res.TotalEligible, err = presence.CountEligible(db, l.SourceGroupID, l.TargetGroupID); err != nil {
		return res, pkgerrors.Wrap(err, "count eligible")
	}

	users, err := presence.Eligible(db, l.SourceGroupID, l.TargetGroupID, offset, maxMembers)
	if err != nil {
		return res, pkgerrors.Wrap(err, "list eligible")
	}

	res.Scanned = len(users)
	res.NextOffset = offset + len(users)

	for _, u := range users {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		row, err := s.Member(ctx, linkID, u, reason)

		switch {
		case err != nil:
			res.Failed++
			res.Failures = append(res.Failures, Failure{UserID: u, Error: err.Error()})
		case row.Skipped:
			res.Processed++
			res.Skipped++
		default:
			res.Processed++
			res.Planned += row.Planned
		}

		if progress != nil {
			progress(Progress{
				TotalEligible: res.TotalEligible,
				Scanned:       res.Scanned,
				Processed:     res.Processed,
				Skipped:       res.Skipped,
				Planned:       res.Planned,
				Failed:        res.Failed,
				Offset:        offset,
			})
		}
	}

	return res, nil
}

// FullOptions tunes a full run. Zero values fall back to the configuration; negative delays disable sleeping.
type FullOptions struct {
	Offset      int
	BatchSize   int
	MemberDelay time.Duration
	BatchDelay  time.Duration
	Reason      string
	Progress    func(Progress)
}

// FullResult is the outcome of a full run.
type FullResult struct {
	LinkID        string    `json:"link_id"`
	TotalEligible int64     `json:"total_eligible"`
	Processed     int       `json:"processed"`
	Skipped       int       `json:"skipped"`
	Planned       int       `json:"planned"`
	Failed        int       `json:"failed"`
	Failures      []Failure `json:"failures"`
	Aborted       bool      `json:"aborted"`
	// Windows counts the pages read from the intersection.
	Windows int `json:"windows"`
	// NextOffset resumes an aborted run.
	NextOffset int `json:"next_offset"`
}

func (s *Service) fullOptions(o FullOptions) FullOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = s.cfg.FullBatchSize
	}

	if o.BatchSize <= 0 {
		o.BatchSize = defaultFullBatchSize
	}

	if o.MemberDelay == 0 {
		o.MemberDelay = time.Duration(s.cfg.MemberDelayMS) * time.Millisecond
	}

	if o.BatchDelay == 0 {
		o.BatchDelay = time.Duration(s.cfg.BatchDelayMS) * time.Millisecond
	}

	if o.Reason == "" {
		o.Reason = ReasonFull
	}

	o.Offset = max(0, o.Offset)

	return o
}

// Full walks the whole intersection of a link. Only one full run per link may be active;
// Stop ends it at the next member checkpoint.
func (s *Service) Full(ctx context.Context, linkID string, opts FullOptions) (FullResult, error) {
	o := s.fullOptions(opts)
	res := FullResult{LinkID: linkID, Failures: []Failure{}, NextOffset: o.Offset}

	l, err := link.Get(s.db.WithContext(ctx), linkID)
	if err != nil {
		return res, pkgerrors.Wrap(err, "load link")
	}

	if !l.Enabled {
		return res, ErrLinkDisabled
	}

	tok, err := s.runs.Start(ctx, linkID)
	if err != nil {
		return res, pkgerrors.Wrapf(err, "full reconcile of %s", linkID)
	}
	defer s.runs.Release(tok)

	// Stop only cancels waits; a member in flight always finishes on ctx.
	wait := tok.Context()
	db := s.db.WithContext(ctx)

	if err = s.reachable(ctx, l); err != nil {
		return res, err
	}

	if res.TotalEligible, err = presence.CountEligible(db, l.SourceGroupID, l.TargetGroupID); err != nil {
		return res, pkgerrors.Wrap(err, "count eligible")
	}

	log.Info().Str("link_id", linkID).Int64("eligible", res.TotalEligible).Int("offset", o.Offset).
		Msg("full reconcile started")

	offset := o.Offset

	report := func() {
		if o.Progress != nil {
			o.Progress(Progress{
				TotalEligible: res.TotalEligible,
				Processed:     res.Processed,
				Skipped:       res.Skipped,
				Planned:       res.Planned,
				Failed:        res.Failed,
				Offset:        offset,
				Aborted:       res.Aborted,
			})
		}
	}

	for !res.Aborted {
		if tok.Stopped() {
			res.Aborted = true
			break
		}

		users, err := presence.Eligible(db, l.SourceGroupID, l.TargetGroupID, offset, o.BatchSize)
		if err != nil {
			if tok.Stopped() {
				res.Aborted = true
				break
			}

			return res, pkgerrors.Wrap(err, "list eligible")
		}

		if len(users) == 0 {
			break
		}

		res.Windows++

		for _, u := range users {
			if tok.Stopped() {
				res.Aborted = true
				break
			}

			row, err := s.member(ctx, l, u, o.Reason)

			switch {
			case err != nil && ctx.Err() != nil:
				// the caller went away, leave the member for the resumed run
				res.Aborted = true
			case err != nil:
				res.Failed++
				offset++

				if len(res.Failures) < maxSampledFailures {
					res.Failures = append(res.Failures, Failure{UserID: u, Error: err.Error()})
				}
			case row.Skipped:
				res.Processed++
				res.Skipped++
				// a departed user drops out of the intersection, so the window does not advance
				if !row.Departed {
					offset++
				}
			default:
				res.Processed++
				res.Planned += row.Planned
				offset++
			}

			if res.Aborted {
				break
			}

			res.NextOffset = offset
			report()

			if o.MemberDelay > 0 {
				_ = scheduler.Sleep(wait, o.MemberDelay)
			}
		}

		if !res.Aborted && !tok.Stopped() && len(users) == o.BatchSize && o.BatchDelay > 0 {
			_ = scheduler.Sleep(wait, o.BatchDelay)
		}
	}

	res.NextOffset = offset

	if res.Aborted {
		report()
	}

	log.Info().Str("link_id", linkID).Int("processed", res.Processed).Int("planned", res.Planned).
		Int("failed", res.Failed).Bool("aborted", res.Aborted).Int("next_offset", offset).
		Msg("full reconcile finished")

	return res, nil
}

// Stop requests the full run of a link to stop. It reports whether one was running.
func (s *Service) Stop(linkID string) bool {
	return s.runs.Stop(linkID)
}

// StopAll stops every full run.
func (s *Service) StopAll() {
	s.runs.StopAll()
}

// IsRunning reports whether a full run of the link is active.
func (s *Service) IsRunning(linkID string) bool {
	return s.runs.Running(linkID)
}

// Running lists links with an active full run.
func (s *Service) Running() []string {
	return s.runs.Keys()
}
