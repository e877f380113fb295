// Package mark stores the short lived operation marks used for loop prevention.
package mark

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

// ErrDBNil is returned when the database connection is nil.
var ErrDBNil = errors.New("database connection is nil")

// Add records that the service itself is about to apply action on (group, user, role).
func Add(db *gorm.DB, groupID, userID, roleID string, action models.JobAction, expiresAt time.Time) (*models.OperationMark, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	m := &models.OperationMark{
		GroupID:   groupID,
		UserID:    userID,
		RoleID:    roleID,
		Action:    action,
		ExpiresAt: expiresAt.UnixMilli(),
	}

	return m, db.Create(m).Error
}

// Remove deletes a mark by primary key.
func Remove(db *gorm.DB, id uint64) error {
	if db == nil {
		return ErrDBNil
	}

	return db.Delete(&models.OperationMark{}, id).Error
}

// Consume deletes the oldest live mark for the tuple and reports whether one existed.
// Each mark is consumed at most once even under concurrent callers.
func Consume(db *gorm.DB, groupID, userID, roleID string, action models.JobAction, now time.Time) (bool, error) {
	if db == nil {
		return false, ErrDBNil
	}

	for {
		var m models.OperationMark

		result := db.Where("group_id = ? AND user_id = ? AND role_id = ? AND action = ? AND expires_at > ?",
			groupID, userID, roleID, action, now.UnixMilli()).
			Order("id ASC").
			Limit(1).
			Find(&m)
		if result.Error != nil {
			return false, result.Error
		}

		if result.RowsAffected == 0 {
			return false, nil
		}

		del := db.Where("id = ?", m.ID).Delete(&models.OperationMark{})
		if del.Error != nil {
			return false, del.Error
		}

		if del.RowsAffected == 1 {
			return true, nil
		}
		// somebody else consumed it, look for the next one
	}
}

// PruneExpired deletes marks whose TTL has passed.
func PruneExpired(db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, ErrDBNil
	}

	result := db.Where("expires_at <= ?", now.UnixMilli()).Delete(&models.OperationMark{})

	return result.RowsAffected, result.Error
}
