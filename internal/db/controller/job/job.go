// Package job is the persistent sync job queue.
package job

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

const (
	idQueryPattern = "id = ?"
	// SupersededError is stored on jobs cancelled by a newer opposite intent.
	SupersededError = "superseded_by_opposite_action"
	// StaleError is stored on processing jobs requeued after their lease ran out.
	StaleError = "processing_lease_expired"
)

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrJobNotFound is returned when no job has the requested id.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotTerminal is returned when Complete is asked for a non terminal status.
	ErrNotTerminal = errors.New("status is not terminal")
)

// DedupeKey identifies the (link, target group, user, target role, action) tuple.
func DedupeKey(linkID, targetGroupID, userID, targetRoleID string, action models.JobAction) string {
	return strings.Join([]string{linkID, targetGroupID, userID, targetRoleID, string(action)}, ":")
}

// EnqueueResult tells what Enqueue did.
type EnqueueResult struct {
	// Enqueued is false when a live job already covers the tuple.
	Enqueued bool
	// Cancelled counts pending opposite jobs that were superseded.
	Cancelled int64
}

// Enqueue cancels a pending opposite action on the same tuple and inserts j as pending.
// A live duplicate is not an error.
func Enqueue(db *gorm.DB, j *models.SyncJob) (EnqueueResult, error) {
	var res EnqueueResult

	if db == nil {
		return res, ErrDBNil
	}

	j.DedupeKey = DedupeKey(j.LinkID, j.TargetGroupID, j.UserID, j.TargetRoleID, j.Action)
	key := j.DedupeKey
	j.ActiveKey = &key
	j.Status = models.JobPending

	opposite := DedupeKey(j.LinkID, j.TargetGroupID, j.UserID, j.TargetRoleID, j.Action.Opposite())

	err := db.Transaction(func(tx *gorm.DB) error {
		cancel := tx.Model(&models.SyncJob{}).
			Where("dedupe_key = ? AND status = ?", opposite, models.JobPending).
			Updates(map[string]any{
				"status":     models.JobCancelled,
				"active_key": nil,
				"last_error": SupersededError,
			})
		if cancel.Error != nil {
			return cancel.Error
		}

		res.Cancelled = cancel.RowsAffected

		insert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(j)
		if insert.Error != nil {
			return insert.Error
		}

		res.Enqueued = insert.RowsAffected == 1

		return nil
	})

	return res, err
}

// Claim moves a pending job to processing and counts the attempt.
// It reports false when another worker got there first.
func Claim(db *gorm.DB, id uint64) (bool, error) {
	if db == nil {
		return false, ErrDBNil
	}

	result := db.Model(&models.SyncJob{}).
		Where("id = ? AND status = ?", id, models.JobPending).
		Updates(map[string]any{
			"status":        models.JobProcessing,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})

	return result.RowsAffected == 1, result.Error
}

// Complete writes a terminal status. Terminal jobs are never rewritten.
func Complete(db *gorm.DB, id uint64, status models.JobStatus, lastError string) (bool, error) {
	if db == nil {
		return false, ErrDBNil
	}

	if !status.IsTerminal() {
		return false, ErrNotTerminal
	}

	result := db.Model(&models.SyncJob{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{models.JobPending, models.JobProcessing}).
		Updates(map[string]any{
			"status":     status,
			"active_key": nil,
			"last_error": truncate(lastError),
		})

	return result.RowsAffected == 1, result.Error
}

// Reschedule returns a processing job to pending with a later not_before.
func Reschedule(db *gorm.DB, id uint64, notBefore time.Time, lastError string) (bool, error) {
	if db == nil {
		return false, ErrDBNil
	}

	result := db.Model(&models.SyncJob{}).
		Where("id = ? AND status = ?", id, models.JobProcessing).
		Updates(map[string]any{
			"status":     models.JobPending,
			"not_before": notBefore.UnixMilli(),
			"last_error": truncate(lastError),
		})

	return result.RowsAffected == 1, result.Error
}

// Release returns a processing job to pending without counting the attempt.
// Used when the worker is interrupted before the job reached an outcome.
func Release(db *gorm.DB, id uint64, lastError string) (bool, error) {
	if db == nil {
		return false, ErrDBNil
	}

	result := db.Model(&models.SyncJob{}).
		Where("id = ? AND status = ?", id, models.JobProcessing).
		Updates(map[string]any{
			"status":        models.JobPending,
			"attempt_count": gorm.Expr("CASE WHEN attempt_count > 0 THEN attempt_count - 1 ELSE 0 END"),
			"last_error":    truncate(lastError),
		})

	return result.RowsAffected == 1, result.Error
}

// RequeueStale returns processing jobs not touched since before cutoff to pending, due at now.
// Their attempt stays counted.
func RequeueStale(db *gorm.DB, cutoff, now time.Time) (int64, error) {
	if db == nil {
		return 0, ErrDBNil
	}

	result := db.Model(&models.SyncJob{}).
		Where("status = ? AND updated_at < ?", models.JobProcessing, cutoff).
		Updates(map[string]any{
			"status":     models.JobPending,
			"not_before": now.UnixMilli(),
			"last_error": StaleError,
		})

	return result.RowsAffected, result.Error
}

// Due returns pending jobs whose not_before has passed, highest priority and oldest first.
// An empty lane means any lane; exclude skips jobs already picked this tick.
func Due(db *gorm.DB, lane models.Lane, now time.Time, limit int, exclude []uint64) ([]models.SyncJob, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	if limit <= 0 {
		return nil, nil
	}

	q := db.Where("status = ? AND not_before <= ?", models.JobPending, now.UnixMilli())

	if lane != "" {
		q = q.Where("lane = ?", lane)
	}

	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}

	var jobs []models.SyncJob

	err := q.Order("priority DESC").Order("created_at ASC").Order("id ASC").Limit(limit).Find(&jobs).Error

	return jobs, err
}

// Get returns a job by its public id.
func Get(db *gorm.DB, jobID string) (*models.SyncJob, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var j models.SyncJob

	result := db.Where("job_id = ?", jobID).First(&j)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}

		return nil, result.Error
	}

	return &j, nil
}

// GetByID returns a job by primary key.
func GetByID(db *gorm.DB, id uint64) (*models.SyncJob, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var j models.SyncJob

	result := db.Where(idQueryPattern, id).First(&j)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}

	return &j, result.Error
}

// CountByStatus counts jobs per status.
func CountByStatus(db *gorm.DB) (map[models.JobStatus]int64, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var rows []struct {
		Status models.JobStatus
		N      int64
	}

	err := db.Model(&models.SyncJob{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[models.JobStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}

	return out, nil
}

// CountByLaneStatus counts jobs per lane and status.
func CountByLaneStatus(db *gorm.DB) (map[models.Lane]map[models.JobStatus]int64, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var rows []struct {
		Lane   models.Lane
		Status models.JobStatus
		N      int64
	}

	err := db.Model(&models.SyncJob{}).
		Select("lane, status, COUNT(*) AS n").
		Group("lane").Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[models.Lane]map[models.JobStatus]int64)

	for _, r := range rows {
		if out[r.Lane] == nil {
			out[r.Lane] = make(map[models.JobStatus]int64)
		}

		out[r.Lane][r.Status] = r.N
	}

	return out, nil
}

// Filter narrows List.
type Filter struct {
	Status   models.JobStatus
	Lane     models.Lane
	LinkID   string
	UserID   string
	Page     int
	PageSize int
}

// List pages jobs, newest first.
func List(db *gorm.DB, f Filter) ([]models.SyncJob, int64, error) {
	if db == nil {
		return nil, 0, ErrDBNil
	}

	q := db.Model(&models.SyncJob{})

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	if f.Lane != "" {
		q = q.Where("lane = ?", f.Lane)
	}

	if f.LinkID != "" {
		q = q.Where("link_id = ?", f.LinkID)
	}

	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}

	if size <= 0 || size > 500 { //nolint:mnd
		size = 50 //nolint:mnd
	}

	var jobs []models.SyncJob

	err := q.Order("created_at DESC").Order("id DESC").Offset((page - 1) * size).Limit(size).Find(&jobs).Error

	return jobs, total, err
}

func truncate(s string) string {
	const maxLen = 1000
	if len(s) <= maxLen {
		return s
	}

	return s[:maxLen]
}
