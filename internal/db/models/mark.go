package models

import "time"

// OperationMark records a mutation the service made itself, so the echo event is not re-planned.
type OperationMark struct {
	ID      uint64    `gorm:"primaryKey"`
	GroupID string    `gorm:"size:32;not null;index:idx_mark_lookup"`
	UserID  string    `gorm:"size:32;not null;index:idx_mark_lookup"`
	RoleID  string    `gorm:"size:32;not null;index:idx_mark_lookup"`
	Action  JobAction `gorm:"size:8;not null;index:idx_mark_lookup"`
	// ExpiresAt is in unix milliseconds.
	ExpiresAt int64 `gorm:"not null;index"`
	CreatedAt time.Time
}

// TableName specifies the database table name for the OperationMark model.
func (OperationMark) TableName() string {
	return "operation_marks"
}
