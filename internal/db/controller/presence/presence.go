// Package presence persists which users are currently members of which group.
package presence

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

const keyQueryPattern = "group_id = ? AND user_id = ?"

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrPresenceNotFound is returned when the user was never seen in the group.
	ErrPresenceNotFound = errors.New("presence not found")
)

// Get returns the presence row of a user in a group.
func Get(db *gorm.DB, groupID, userID string) (*models.MemberPresence, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var p models.MemberPresence

	result := db.Where(keyQueryPattern, groupID, userID).First(&p)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPresenceNotFound
		}

		return nil, result.Error
	}

	return &p, nil
}

// MarkActive records the user as member. roles replaces the snapshot unless nil.
// A user coming back after leaving gets a fresh joined_at.
func MarkActive(db *gorm.DB, groupID, userID string, roles []string, now time.Time) (*models.MemberPresence, error) {
	return upsert(db, groupID, userID, func(p *models.MemberPresence, existed bool) {
		if !existed || !p.IsActive || p.JoinedAt == nil {
			p.JoinedAt = &now
		}

		p.IsActive = true
		p.LeftAt = nil

		if roles != nil {
			p.RoleSnapshot = models.EncodeRoles(roles)
		}
	})
}

// MarkInactive records the user as gone. joined_at and the snapshot are kept.
func MarkInactive(db *gorm.DB, groupID, userID string, now time.Time) (*models.MemberPresence, error) {
	return upsert(db, groupID, userID, func(p *models.MemberPresence, _ bool) {
		if p.IsActive || p.LeftAt == nil {
			p.LeftAt = &now
		}

		p.IsActive = false
	})
}

func upsert(
	db *gorm.DB,
	groupID, userID string,
	apply func(p *models.MemberPresence, existed bool),
) (*models.MemberPresence, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	p, err := Get(db, groupID, userID)

	switch {
	case errors.Is(err, ErrPresenceNotFound):
		fresh := models.MemberPresence{GroupID: groupID, UserID: userID}
		apply(&fresh, false)

		result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh)
		if result.Error != nil {
			return nil, result.Error
		}

		if result.RowsAffected == 1 {
			return &fresh, nil
		}

		// lost a concurrent insert, update the winner instead
		if p, err = Get(db, groupID, userID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	apply(p, true)

	if err = db.Save(p).Error; err != nil {
		return nil, err
	}

	return p, nil
}

// MarkAllInactive flags every active member of a group as gone.
func MarkAllInactive(db *gorm.DB, groupID string, now time.Time) (int64, error) {
	if db == nil {
		return 0, ErrDBNil
	}

	result := db.Model(&models.MemberPresence{}).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Updates(map[string]any{"is_active": false, "left_at": now})

	return result.RowsAffected, result.Error
}

func intersection(db *gorm.DB, sourceGroupID, targetGroupID string) *gorm.DB {
	return db.Table("member_presence AS m1").
		Joins("JOIN member_presence AS m2 ON m2.user_id = m1.user_id AND m2.group_id = ? AND m2.is_active = ?",
			targetGroupID, true).
		Where("m1.group_id = ? AND m1.is_active = ?", sourceGroupID, true)
}

// Eligible pages through users active in both groups, ordered by user id.
func Eligible(db *gorm.DB, sourceGroupID, targetGroupID string, offset, limit int) ([]string, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var ids []string

	result := intersection(db, sourceGroupID, targetGroupID).
		Order("m1.user_id").
		Offset(offset).
		Limit(limit).
		Pluck("m1.user_id", &ids)

	return ids, result.Error
}

// CountEligible counts users active in both groups.
func CountEligible(db *gorm.DB, sourceGroupID, targetGroupID string) (int64, error) {
	if db == nil {
		return 0, ErrDBNil
	}

	var n int64

	return n, intersection(db, sourceGroupID, targetGroupID).Count(&n).Error
}

// Filter narrows List.
type Filter struct {
	GroupID  string
	UserID   string
	Active   *bool
	Page     int
	PageSize int
}

// List pages presence rows, most recently updated first.
func List(db *gorm.DB, f Filter) ([]models.MemberPresence, int64, error) {
	if db == nil {
		return nil, 0, ErrDBNil
	}

	q := db.Model(&models.MemberPresence{})

	if f.GroupID != "" {
		q = q.Where("group_id = ?", f.GroupID)
	}

	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}

	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := pageBounds(f.Page, f.PageSize)

	var rows []models.MemberPresence

	err := q.Order("updated_at DESC").Offset((page - 1) * size).Limit(size).Find(&rows).Error

	return rows, total, err
}

func pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}

	if size <= 0 || size > 500 { //nolint:mnd
		size = 50 //nolint:mnd
	}

	return page, size
}
