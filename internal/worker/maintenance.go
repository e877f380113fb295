package worker

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rolemirror/rolemirror/internal/db/controller/changelog"
	"github.com/rolemirror/rolemirror/internal/db/controller/job"
	"github.com/rolemirror/rolemirror/internal/db/controller/mark"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

var (
	allLanes    = []models.Lane{models.LaneFast, models.LaneNormal}
	allStatuses = []models.JobStatus{
		models.JobPending, models.JobProcessing, models.JobCompleted, models.JobFailed, models.JobCancelled,
	}
)

// Maintenance requeues jobs stuck in processing past the lease, prunes expired marks
// and old audit entries and refreshes the queue gauges.
func (w *Worker) Maintenance(ctx context.Context) error {
	db := w.db.WithContext(ctx)
	now := w.now()

	lease := time.Duration(w.cfg.ProcessingLeaseMS) * time.Millisecond

	requeued, err := job.RequeueStale(db, now.Add(-lease), now)
	if err != nil {
		return pkgerrors.Wrap(err, "requeue stale jobs")
	}

	if requeued > 0 {
		log.Warn().Int64("requeued", requeued).Dur("lease", lease).Msg("requeued sync jobs stuck in processing")
	}

	marks, err := mark.PruneExpired(db, now)
	if err != nil {
		return pkgerrors.Wrap(err, "prune marks")
	}

	cutoff := now.Add(-time.Duration(w.cfg.LogRetentionDays) * 24 * time.Hour)

	logs, err := changelog.Prune(db, cutoff)
	if err != nil {
		return pkgerrors.Wrap(err, "prune audit log")
	}

	byLane, err := job.CountByLaneStatus(db)
	if err != nil {
		return pkgerrors.Wrap(err, "count jobs")
	}

	for _, lane := range allLanes {
		for _, status := range allStatuses {
			queueDepth.WithLabelValues(string(lane), string(status)).Set(float64(byLane[lane][status]))
		}
	}

	log.Info().Int64("requeued", requeued).Int64("pruned_marks", marks).Int64("pruned_logs", logs).
		Int64("fast_pending", byLane[models.LaneFast][models.JobPending]).
		Int64("normal_pending", byLane[models.LaneNormal][models.JobPending]).
		Int64("failed", byLane[models.LaneFast][models.JobFailed]+byLane[models.LaneNormal][models.JobFailed]).
		Msg("maintenance done")

	return nil
}
