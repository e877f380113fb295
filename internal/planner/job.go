package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rolemirror/rolemirror/internal/db/controller/mapping"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/policy"
)

// DefaultMaxAttempts is the nominal attempt budget of a planned job.
const DefaultMaxAttempts = 3

// NewJobID returns an id of the form rs_<unix ms>_<8 hex chars>.
func NewJobID(now time.Time) string {
	return fmt.Sprintf("rs_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// JobSpec describes one role mutation derived from a mapping.
type JobSpec struct {
	Candidate mapping.Candidate
	Direction policy.Direction
	UserID    string
	Action    models.JobAction
	// NotBefore overrides the debounce of the mapping when set.
	NotBefore   time.Time
	SourceEvent string
	MaxAttempts int
}

// BuildJob turns a spec into a pending job. Lane and priority follow the mapping's
// max_delay_seconds; not_before defaults to now plus the lane debounce.
func BuildJob(s JobSpec, now time.Time) *models.SyncJob {
	c := s.Candidate
	sched := policy.ScheduleFor(c.MaxDelaySeconds)

	notBefore := s.NotBefore
	if notBefore.IsZero() {
		notBefore = now.Add(sched.Debounce)
	}

	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	j := &models.SyncJob{
		JobID:          NewJobID(now),
		LinkID:         c.LinkID,
		UserID:         s.UserID,
		Action:         s.Action,
		Lane:           sched.Lane,
		Priority:       sched.Priority,
		MaxAttempts:    maxAttempts,
		NotBefore:      notBefore.UnixMilli(),
		ConflictPolicy: c.Policy(),
		SourceEvent:    s.SourceEvent,
	}

	if s.Direction == policy.TargetToSource {
		j.SourceGroupID, j.SourceRoleID = c.TargetGroupID, c.TargetRoleID
		j.TargetGroupID, j.TargetRoleID = c.SourceGroupID, c.SourceRoleID
	} else {
		j.SourceGroupID, j.SourceRoleID = c.SourceGroupID, c.SourceRoleID
		j.TargetGroupID, j.TargetRoleID = c.TargetGroupID, c.TargetRoleID
	}

	return j
}
