// Package group keeps the registry of known groups.
package group

import (
	"errors"

	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrGroupIDEmpty is returned when a group id is empty.
	ErrGroupIDEmpty = errors.New("group id cannot be empty")
)

// Upsert registers a group or refreshes its name and primary flag.
func Upsert(db *gorm.DB, id, name string, isPrimary bool) (*models.Group, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	if id == "" {
		return nil, ErrGroupIDEmpty
	}

	var g models.Group

	result := db.Where("id = ?", id).First(&g)

	switch {
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		g = models.Group{ID: id, Name: name, IsPrimary: isPrimary}
		result = db.Create(&g)
	case result.Error != nil:
		return nil, result.Error
	default:
		if name != "" {
			g.Name = name
		}

		g.IsPrimary = g.IsPrimary || isPrimary
		result = db.Save(&g)
	}

	if result.Error != nil {
		return nil, result.Error
	}

	return &g, nil
}

// List returns all known groups, primary groups first.
func List(db *gorm.DB) ([]models.Group, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var groups []models.Group

	if err := db.Order("is_primary DESC").Order("id").Find(&groups).Error; err != nil {
		return nil, err
	}

	return groups, nil
}
