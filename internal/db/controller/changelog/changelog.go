// Package changelog is the audit trail of every planned and executed role change.
package changelog

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

// ErrDBNil is returned when the database connection is nil.
var ErrDBNil = errors.New("database connection is nil")

// Write appends an entry.
func Write(db *gorm.DB, entry *models.RoleChangeLog) error {
	if db == nil {
		return ErrDBNil
	}

	return db.Create(entry).Error
}

// FromJob prefills an entry with the identity of a job.
func FromJob(j *models.SyncJob, result models.LogResult) *models.RoleChangeLog {
	id := j.JobID

	return &models.RoleChangeLog{
		JobID:         &id,
		LinkID:        j.LinkID,
		UserID:        j.UserID,
		SourceGroupID: j.SourceGroupID,
		TargetGroupID: j.TargetGroupID,
		SourceRoleID:  j.SourceRoleID,
		TargetRoleID:  j.TargetRoleID,
		Action:        string(j.Action),
		Result:        result,
	}
}

// Prune deletes entries created before the cutoff.
func Prune(db *gorm.DB, before time.Time) (int64, error) {
	if db == nil {
		return 0, ErrDBNil
	}

	result := db.Where("created_at < ?", before).Delete(&models.RoleChangeLog{})

	return result.RowsAffected, result.Error
}

// Filter narrows Query. UserID matches as substring.
type Filter struct {
	UserID   string
	LinkID   string
	Result   models.LogResult
	Action   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Query pages audit entries, newest first.
func Query(db *gorm.DB, f Filter) ([]models.RoleChangeLog, int64, error) {
	if db == nil {
		return nil, 0, ErrDBNil
	}

	q := db.Model(&models.RoleChangeLog{})

	if f.UserID != "" {
		q = q.Where("user_id LIKE ?", "%"+f.UserID+"%")
	}

	if f.LinkID != "" {
		q = q.Where("link_id = ?", f.LinkID)
	}

	if f.Result != "" {
		q = q.Where("result = ?", f.Result)
	}

	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}

	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}

	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
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

	var rows []models.RoleChangeLog

	err := q.Order("created_at DESC").Order("id DESC").Offset((page - 1) * size).Limit(size).Find(&rows).Error

	return rows, total, err
}
