// Package importjob persists batch configuration imports.
package importjob

import (
	"errors"

	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrImportNotFound is returned when no import has the requested id.
	ErrImportNotFound = errors.New("import job not found")
)

// Create stores a new import job.
func Create(db *gorm.DB, j *models.ConfigImportJob) error {
	if db == nil {
		return ErrDBNil
	}

	return db.Create(j).Error
}

// Get returns an import job by id.
func Get(db *gorm.DB, jobID string) (*models.ConfigImportJob, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var j models.ConfigImportJob

	result := db.Where("job_id = ?", jobID).First(&j)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrImportNotFound
		}

		return nil, result.Error
	}

	return &j, nil
}

// Save writes back a loaded import job.
func Save(db *gorm.DB, j *models.ConfigImportJob) error {
	if db == nil {
		return ErrDBNil
	}

	return db.Save(j).Error
}

// Recent returns the newest import jobs.
func Recent(db *gorm.DB, limit int) ([]models.ConfigImportJob, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var out []models.ConfigImportJob

	return out, db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error
}
