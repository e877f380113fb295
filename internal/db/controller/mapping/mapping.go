// Package mapping provides persistence for role mappings.
package mapping

import (
	"errors"

	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

const tupleQueryPattern = "link_id = ? AND source_role_id = ? AND target_role_id = ?"

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrMappingNotFound is returned when no mapping matches.
	ErrMappingNotFound = errors.New("mapping not found")
	// ErrMappingInvalid is returned when link or role ids are missing.
	ErrMappingInvalid = errors.New("mapping needs link id, source role id and target role id")
)

// Candidate is an enabled mapping on an enabled link, joined with the link groups.
type Candidate struct {
	models.RoleMapping
	SourceGroupID         string
	TargetGroupID         string
	DefaultConflictPolicy models.ConflictPolicy
}

// FromSource reports whether (groupID, roleID) is the source side of the candidate.
func (c Candidate) FromSource(groupID, roleID string) bool {
	return c.SourceGroupID == groupID && c.SourceRoleID == roleID
}

// FromTarget reports whether (groupID, roleID) is the target side of the candidate.
func (c Candidate) FromTarget(groupID, roleID string) bool {
	return c.TargetGroupID == groupID && c.TargetRoleID == roleID
}

// Policy is the effective conflict policy of the candidate.
func (c Candidate) Policy() models.ConflictPolicy {
	return c.EffectivePolicy(c.DefaultConflictPolicy)
}

// ForRole loads the enabled mappings on enabled links where (groupID, roleID) is on either side.
func ForRole(db *gorm.DB, groupID, roleID string) ([]Candidate, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	links, err := link.ForGroup(db, groupID)
	if err != nil || len(links) == 0 {
		return nil, err
	}

	byID := make(map[string]models.SyncLink, len(links))
	ids := make([]string, 0, len(links))

	for _, l := range links {
		byID[l.LinkID] = l
		ids = append(ids, l.LinkID)
	}

	var rows []models.RoleMapping

	result := db.Where("enabled = ? AND link_id IN ?", true, ids).
		Where("(source_role_id = ? OR target_role_id = ?)", roleID, roleID).
		Order("id").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	out := make([]Candidate, 0, len(rows))

	for _, m := range rows {
		l := byID[m.LinkID]
		c := Candidate{
			RoleMapping:           m,
			SourceGroupID:         l.SourceGroupID,
			TargetGroupID:         l.TargetGroupID,
			DefaultConflictPolicy: l.DefaultConflictPolicy,
		}

		if c.FromSource(groupID, roleID) || c.FromTarget(groupID, roleID) {
			out = append(out, c)
		}
	}

	return out, nil
}

// ListByLink returns the mappings of a link ordered by id.
func ListByLink(db *gorm.DB, linkID string, onlyEnabled bool) ([]models.RoleMapping, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	q := db.Where("link_id = ?", linkID).Order("id")
	if onlyEnabled {
		q = q.Where("enabled = ?", true)
	}

	var rows []models.RoleMapping

	return rows, q.Find(&rows).Error
}

// Get returns the mapping identified by its tuple.
func Get(db *gorm.DB, linkID, sourceRoleID, targetRoleID string) (*models.RoleMapping, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var m models.RoleMapping

	result := db.Where(tupleQueryPattern, linkID, sourceRoleID, targetRoleID).First(&m)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMappingNotFound
		}

		return nil, result.Error
	}

	return &m, nil
}

// Upsert creates or fully overwrites the mapping identified by its tuple.
func Upsert(db *gorm.DB, in models.RoleMapping) (*models.RoleMapping, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	if in.LinkID == "" || in.SourceRoleID == "" || in.TargetRoleID == "" {
		return nil, ErrMappingInvalid
	}

	normalize(&in)

	existing, err := Get(db, in.LinkID, in.SourceRoleID, in.TargetRoleID)

	switch {
	case errors.Is(err, ErrMappingNotFound):
		in.ID = 0

		if err = db.Create(&in).Error; err != nil {
			return nil, err
		}

		return &in, nil
	case err != nil:
		return nil, err
	}

	in.ID = existing.ID
	in.CreatedAt = existing.CreatedAt

	if err = db.Save(&in).Error; err != nil {
		return nil, err
	}

	return &in, nil
}

// Delete removes the mapping identified by its tuple.
func Delete(db *gorm.DB, linkID, sourceRoleID, targetRoleID string) error {
	if db == nil {
		return ErrDBNil
	}

	result := db.Where(tupleQueryPattern, linkID, sourceRoleID, targetRoleID).Delete(&models.RoleMapping{})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrMappingNotFound
	}

	return nil
}

// SetEnabled toggles a mapping by primary key.
func SetEnabled(db *gorm.DB, id uint64, enabled bool) error {
	if db == nil {
		return ErrDBNil
	}

	result := db.Model(&models.RoleMapping{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var n int64
		if err := db.Model(&models.RoleMapping{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}

		if n == 0 {
			return ErrMappingNotFound
		}
	}

	return nil
}

// ReplaceForLink swaps the whole mapping set of a link in one transaction.
func ReplaceForLink(db *gorm.DB, linkID string, rows []models.RoleMapping) error {
	if db == nil {
		return ErrDBNil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("link_id = ?", linkID).Delete(&models.RoleMapping{}).Error; err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		fresh := make([]models.RoleMapping, 0, len(rows))

		for _, r := range rows {
			r.ID = 0
			r.LinkID = linkID
			normalize(&r)
			fresh = append(fresh, r)
		}

		return tx.Create(&fresh).Error
	})
}

func normalize(m *models.RoleMapping) {
	if m.SyncMode == "" {
		m.SyncMode = models.SyncSourceToTarget
	}

	if m.CopyPermissionsMode == "" {
		m.CopyPermissionsMode = models.CopyPermissionsNone
	}

	if m.ConflictPolicy != nil && *m.ConflictPolicy == "" {
		m.ConflictPolicy = nil
	}
}
