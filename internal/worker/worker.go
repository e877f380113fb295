// Package worker drains the sync job queue against the platform.
package worker

import (
	"context"
	"errors"
	"math"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/changelog"
	"github.com/rolemirror/rolemirror/internal/db/controller/job"
	"github.com/rolemirror/rolemirror/internal/db/controller/mark"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/platform"
)

// Terminal reasons stored on jobs.
const (
	ReasonMemberNotFound = "target_member_not_found"
	ReasonRoleNotFound   = "target_role_not_found"
	ReasonGroupFailed    = "target_group_unreachable"
	ReasonMemberFailed   = "target_member_fetch_failed"
	// ReasonPrefix tags audit log reasons of every mutation.
	ReasonPrefix = "[RoleMirror]"
)

const (
	noteNotInIntersection = "target member not found, not in the intersection"
	noteRoleMissing       = "target group lacks mapped role; create or remap"
	noteAlreadyHas        = "target member already has the role"
	noteAlreadyLacks      = "target member does not have the role"
)

// Outcome is what processing did to a job.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeNoop        Outcome = "noop"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeFailed      Outcome = "failed"
	OutcomeRescheduled Outcome = "rescheduled"
	OutcomeReleased    Outcome = "released" // interrupted by shutdown, attempt not counted
	OutcomeLost        Outcome = "lost"     // claimed by someone else
)

// Eligibility confirms membership of a user in a group.
type Eligibility interface {
	Check(ctx context.Context, groupID, userID string) (bool, error)
}

// Worker executes due jobs, one at a time.
type Worker struct {
	db     *gorm.DB
	client platform.Client
	elig   Eligibility
	cfg    config.Worker
	now    func() time.Time
}

// New creates a worker. cfg must already be validated by the config package.
func New(db *gorm.DB, client platform.Client, elig Eligibility, cfg config.Worker) *Worker {
	return &Worker{db: db, client: client, elig: elig, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now

	return w
}

// Backoff is min(capDelay, base * 2^(attempt-1)) for attempt >= 1.
func Backoff(attempt int, base, capDelay time.Duration) time.Duration {
	attempt = max(1, attempt)

	d := float64(base) * math.Pow(2, float64(attempt-1)) //nolint:mnd
	if d >= float64(capDelay) {
		return capDelay
	}

	return time.Duration(d)
}

// Pick selects the jobs of one tick: fast lane first, then normal, then either lane.
func (w *Worker) Pick(ctx context.Context) ([]models.SyncJob, error) {
	db := w.db.WithContext(ctx)
	now := w.now()
	total := w.cfg.BatchSize

	picked, err := job.Due(db, models.LaneFast, now, min(w.cfg.FastBatchSize, total), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load fast lane")
	}

	if remaining := total - len(picked); remaining > 0 {
		normal, err := job.Due(db, models.LaneNormal, now, min(w.cfg.NormalBatchSize, remaining), nil)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "load normal lane")
		}

		picked = append(picked, normal...)
	}

	if remaining := total - len(picked); remaining > 0 {
		ids := make([]uint64, len(picked))
		for i := range picked {
			ids[i] = picked[i].ID
		}

		rest, err := job.Due(db, "", now, remaining, ids)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "load any lane")
		}

		picked = append(picked, rest...)
	}

	return picked, nil
}

// Tick processes one batch sequentially. Re-entrancy is guarded by the scheduler.
func (w *Worker) Tick(ctx context.Context) error {
	jobs, err := w.Pick(ctx)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { tickDuration.Observe(time.Since(start).Seconds()) }()

	for i := range jobs {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := w.Process(ctx, &jobs[i]); err != nil {
			log.Error().Err(err).Str("job_id", jobs[i].JobID).Msg("processing sync job")
		}
	}

	return nil
}

// Process claims and executes one job. The returned error is a store failure;
// platform failures are absorbed into the job state.
// Once claimed, store writes outlive ctx so a shutdown never leaves the job processing.
func (w *Worker) Process(ctx context.Context, j *models.SyncJob) (Outcome, error) {
	claimed, err := job.Claim(w.db.WithContext(ctx), j.ID)
	if err != nil {
		return "", pkgerrors.Wrap(err, "claim")
	}

	if !claimed {
		return OutcomeLost, nil
	}

	j.AttemptCount++
	j.Status = models.JobProcessing

	db := w.db.WithContext(context.WithoutCancel(ctx))

	outcome, execErr := w.execute(ctx, db, j)

	switch {
	case execErr == nil:
	case ctx.Err() != nil:
		outcome, err = w.release(db, j, execErr)
	default:
		outcome, err = w.fail(db, j, execErr)
	}

	jobOutcomes.WithLabelValues(string(j.Lane), string(outcome)).Inc()

	return outcome, err
}

func (w *Worker) execute(ctx context.Context, db *gorm.DB, j *models.SyncJob) (Outcome, error) {
	ok, err := w.elig.Check(ctx, j.TargetGroupID, j.UserID)
	if err != nil {
		return "", err
	}

	if !ok {
		return OutcomeCancelled, w.finish(db, j, models.JobCancelled, ReasonMemberNotFound, models.ResultSkipped, "", noteNotInIntersection)
	}

	if _, err = w.client.FetchGroup(ctx, j.TargetGroupID); err != nil {
		return "", pkgerrors.Wrap(err, ReasonGroupFailed)
	}

	member, err := w.client.FetchMember(ctx, j.TargetGroupID, j.UserID)
	if err != nil {
		return "", pkgerrors.Wrap(err, ReasonMemberFailed)
	}

	if _, err = w.client.FetchRole(ctx, j.TargetGroupID, j.TargetRoleID); err != nil {
		if errors.Is(err, platform.ErrRoleNotFound) {
			return w.roleMissing(db, j)
		}

		return "", pkgerrors.Wrap(err, "fetch target role")
	}

	has := member.HasRole(j.TargetRoleID)

	if j.Action == models.ActionAdd && has {
		return OutcomeNoop, w.finish(db, j, models.JobCompleted, "", models.ResultNoop, "", noteAlreadyHas)
	}

	if j.Action == models.ActionRemove && !has {
		return OutcomeNoop, w.finish(db, j, models.JobCompleted, "", models.ResultNoop, "", noteAlreadyLacks)
	}

	// The mark goes in before the call so the echoed gateway event always finds it.
	now := w.now()

	m, err := mark.Add(db, j.TargetGroupID, j.UserID, j.TargetRoleID, j.Action,
		now.Add(time.Duration(w.cfg.MarkTTLMS)*time.Millisecond))
	if err != nil {
		return "", pkgerrors.Wrap(err, "add operation mark")
	}

	reason := ReasonPrefix + " link=" + j.LinkID

	if j.Action == models.ActionAdd {
		err = w.client.AddRole(ctx, j.TargetGroupID, j.UserID, j.TargetRoleID, reason)
	} else {
		err = w.client.RemoveRole(ctx, j.TargetGroupID, j.UserID, j.TargetRoleID, reason)
	}

	if err != nil {
		if rmErr := mark.Remove(db, m.ID); rmErr != nil {
			log.Warn().Err(rmErr).Uint64("mark_id", m.ID).Msg("removing operation mark of failed mutation")
		}

		if errors.Is(err, platform.ErrRoleNotFound) {
			return w.roleMissing(db, j)
		}

		return "", pkgerrors.Wrap(err, "mutate role")
	}

	return OutcomeSuccess, w.finish(db, j, models.JobCompleted, "", models.ResultSuccess, "", "")
}

func (w *Worker) roleMissing(db *gorm.DB, j *models.SyncJob) (Outcome, error) {
	return OutcomeFailed, w.finish(db, j, models.JobFailed, ReasonRoleNotFound, models.ResultFailed, ReasonRoleNotFound, noteRoleMissing)
}

// release hands an interrupted job back to the queue with its attempt uncounted.
func (w *Worker) release(db *gorm.DB, j *models.SyncJob, cause error) (Outcome, error) {
	msg := cause.Error()

	if _, err := job.Release(db, j.ID, msg); err != nil {
		return "", pkgerrors.Wrap(err, "release")
	}

	j.Status = models.JobPending
	j.AttemptCount = max(0, j.AttemptCount-1)
	j.LastError = msg

	log.Info().Str("job_id", j.JobID).Str("error", msg).Msg("sync job released on shutdown")

	return OutcomeReleased, nil
}

// fail applies the retry budget: transient network errors get the extended budget and a penalty.
func (w *Worker) fail(db *gorm.DB, j *models.SyncJob, cause error) (Outcome, error) {
	msg := cause.Error()
	network := platform.IsNetworkError(cause)

	budget := j.MaxAttempts
	if budget <= 0 {
		budget = w.cfg.MaxAttempts
	}

	if network {
		budget = max(budget, w.cfg.NetworkMaxAttempts)
	}

	if j.AttemptCount >= budget {
		log.Warn().Str("job_id", j.JobID).Str("link_id", j.LinkID).Int("attempt", j.AttemptCount).
			Str("error", msg).Msg("sync job failed, attempts exhausted")

		return OutcomeFailed, w.finish(db, j, models.JobFailed, msg, models.ResultFailed, msg, "")
	}

	delay := Backoff(j.AttemptCount,
		time.Duration(w.cfg.BackoffBaseMS)*time.Millisecond,
		time.Duration(w.cfg.BackoffCapMS)*time.Millisecond)
	if network {
		delay += time.Duration(w.cfg.NetworkPenaltyMS) * time.Millisecond
	}

	notBefore := w.now().Add(delay)

	if _, err := job.Reschedule(db, j.ID, notBefore, msg); err != nil {
		return "", pkgerrors.Wrap(err, "reschedule")
	}

	j.Status = models.JobPending
	j.NotBefore = notBefore.UnixMilli()
	j.LastError = msg

	log.Info().Str("job_id", j.JobID).Int("attempt", j.AttemptCount).Bool("network", network).
		Dur("retry_in", delay).Str("error", msg).Msg("sync job rescheduled")

	return OutcomeRescheduled, nil
}

// finish writes the terminal status and the audit entry.
func (w *Worker) finish(db *gorm.DB, j *models.SyncJob, status models.JobStatus, lastError string,
	result models.LogResult, logError, note string,
) error {
	if _, err := job.Complete(db, j.ID, status, lastError); err != nil {
		return pkgerrors.Wrap(err, "complete")
	}

	j.Status = status
	j.LastError = lastError

	entry := changelog.FromJob(j, result)
	entry.Error = logError
	entry.Note = note

	return pkgerrors.Wrap(changelog.Write(db, entry), "write audit entry")
}
