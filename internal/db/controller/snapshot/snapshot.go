// Package snapshot stores write-once copies of link mapping sets.
package snapshot

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrSnapshotNotFound is returned when no snapshot has the requested id.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Create stores the mapping rows of a link under a new snapshot id.
func Create(db *gorm.DB, linkID *string, name, createdBy string, rows []models.RoleMapping) (*models.ConfigSnapshot, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	if rows == nil {
		rows = []models.RoleMapping{}
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode snapshot rows")
	}

	s := &models.ConfigSnapshot{
		SnapshotID:  "snap_" + uuid.NewString(),
		LinkID:      linkID,
		Name:        name,
		MappingRows: string(payload),
		CreatedBy:   createdBy,
	}

	return s, db.Create(s).Error
}

// Get returns a snapshot by id.
func Get(db *gorm.DB, snapshotID string) (*models.ConfigSnapshot, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var s models.ConfigSnapshot

	result := db.Where("snapshot_id = ?", snapshotID).First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}

		return nil, result.Error
	}

	return &s, nil
}

// Rows decodes the mapping rows of a snapshot.
func Rows(s *models.ConfigSnapshot) ([]models.RoleMapping, error) {
	var rows []models.RoleMapping

	if err := json.Unmarshal([]byte(s.MappingRows), &rows); err != nil {
		return nil, pkgerrors.Wrapf(err, "decode snapshot %s", s.SnapshotID)
	}

	return rows, nil
}

// List returns the newest snapshots, optionally for one link.
func List(db *gorm.DB, linkID string, limit int) ([]models.ConfigSnapshot, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	q := db.Order("created_at DESC").Order("id DESC")
	if linkID != "" {
		q = q.Where("link_id = ?", linkID)
	}

	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []models.ConfigSnapshot

	return out, q.Find(&out).Error
}
