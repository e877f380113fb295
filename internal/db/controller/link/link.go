// Package link provides persistence for sync links.
package link

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

const linkIDQueryPattern = "link_id = ?"

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrLinkNotFound is returned when no link has the requested id.
	ErrLinkNotFound = errors.New("link not found")
	// ErrLinkInvalid is returned when a link misses its id or one of its groups.
	ErrLinkInvalid = errors.New("link id, source group and target group are required")
)

// Get returns the link with the given id.
func Get(db *gorm.DB, linkID string) (*models.SyncLink, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var l models.SyncLink

	result := db.Where(linkIDQueryPattern, linkID).First(&l)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}

		return nil, result.Error
	}

	return &l, nil
}

// List returns all links ordered by id.
func List(db *gorm.DB) ([]models.SyncLink, error) {
	return find(db, false)
}

// ListEnabled returns the enabled links ordered by id.
func ListEnabled(db *gorm.DB) ([]models.SyncLink, error) {
	return find(db, true)
}

// ForGroup returns the enabled links having groupID on either side.
func ForGroup(db *gorm.DB, groupID string) ([]models.SyncLink, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var links []models.SyncLink

	result := db.Where("enabled = ?", true).
		Where("(source_group_id = ? OR target_group_id = ?)", groupID, groupID).
		Order("link_id").
		Find(&links)

	return links, result.Error
}

func find(db *gorm.DB, onlyEnabled bool) ([]models.SyncLink, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	q := db.Order("link_id")
	if onlyEnabled {
		q = q.Where("enabled = ?", true)
	}

	var links []models.SyncLink

	return links, q.Find(&links).Error
}

// Upsert creates the link or updates groups, enabled flag and default policy of an existing one.
func Upsert(db *gorm.DB, in models.SyncLink) (*models.SyncLink, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	in.LinkID = strings.TrimSpace(in.LinkID)
	if in.LinkID == "" || in.SourceGroupID == "" || in.TargetGroupID == "" {
		return nil, ErrLinkInvalid
	}

	if in.DefaultConflictPolicy == "" {
		in.DefaultConflictPolicy = models.PolicySourceOfTruthMain
	}

	var l models.SyncLink

	result := db.Where(linkIDQueryPattern, in.LinkID).First(&l)

	switch {
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		in.ID = 0
		l = in
		result = db.Create(&l)
	case result.Error != nil:
		return nil, result.Error
	default:
		l.SourceGroupID = in.SourceGroupID
		l.TargetGroupID = in.TargetGroupID
		l.Enabled = in.Enabled
		l.DefaultConflictPolicy = in.DefaultConflictPolicy
		result = db.Save(&l)
	}

	if result.Error != nil {
		return nil, result.Error
	}

	return &l, nil
}

// SetEnabled toggles a link.
func SetEnabled(db *gorm.DB, linkID string, enabled bool) error {
	if db == nil {
		return ErrDBNil
	}

	if _, err := Get(db, linkID); err != nil {
		return err
	}

	return db.Model(&models.SyncLink{}).
		Where(linkIDQueryPattern, linkID).
		Update("enabled", enabled).Error
}
