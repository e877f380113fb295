// Package status assembles the runtime overview shown by the status command and API.
package status

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/controller/importjob"
	"github.com/rolemirror/rolemirror/internal/db/controller/job"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/reconcile"
)

// RecentImports is how many import jobs the overview lists.
const RecentImports = 8

// Reconciler is the part of the reconcile service the overview reads.
type Reconciler interface {
	AutoStatus(ctx context.Context) (reconcile.AutoStatus, error)
	Running() []string
}

// Bootstrapper reports group ids with a presence bootstrap in flight.
type Bootstrapper interface {
	Running() []string
}

// Overview is the runtime state of the service.
type Overview struct {
	Links         []models.SyncLink                          `json:"links"`
	QueueByStatus map[models.JobStatus]int64                 `json:"queue_by_status"`
	QueueByLane   map[models.Lane]map[models.JobStatus]int64 `json:"queue_by_lane"`
	RecentImports []models.ConfigImportJob                   `json:"recent_imports"`
	Auto          *reconcile.AutoStatus                      `json:"auto,omitempty"`
	FullRuns      []string                                   `json:"full_runs"`
	Bootstraps    []string                                   `json:"bootstraps"`
}

// Collect reads the overview. rec and boot may be nil when the caller runs without them.
func Collect(ctx context.Context, db *gorm.DB, rec Reconciler, boot Bootstrapper) (*Overview, error) {
	tx := db.WithContext(ctx)

	var (
		o   = &Overview{FullRuns: []string{}, Bootstraps: []string{}}
		err error
	)

	if o.Links, err = link.List(tx); err != nil {
		return nil, pkgerrors.Wrap(err, "list links")
	}

	if o.QueueByStatus, err = job.CountByStatus(tx); err != nil {
		return nil, pkgerrors.Wrap(err, "count jobs")
	}

	if o.QueueByLane, err = job.CountByLaneStatus(tx); err != nil {
		return nil, pkgerrors.Wrap(err, "count jobs by lane")
	}

	if o.RecentImports, err = importjob.Recent(tx, RecentImports); err != nil {
		return nil, pkgerrors.Wrap(err, "list imports")
	}

	if rec != nil {
		auto, err := rec.AutoStatus(ctx)
		if err != nil {
			return nil, err
		}

		o.Auto = &auto
		o.FullRuns = append(o.FullRuns, rec.Running()...)
	}

	if boot != nil {
		o.Bootstraps = append(o.Bootstraps, boot.Running()...)
	}

	return o, nil
}
