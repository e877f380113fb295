package models

import "time"

// LogResult is the outcome recorded in the audit log.
type LogResult string

const (
	ResultSuccess LogResult = "success"
	ResultFailed  LogResult = "failed"
	ResultSkipped LogResult = "skipped"
	ResultNoop    LogResult = "noop"
	ResultPlanned LogResult = "planned"
)

// RoleChangeLog is one audit entry. Entries older than the retention window are pruned.
type RoleChangeLog struct {
	ID            uint64    `gorm:"primaryKey"              json:"id"`
	JobID         *string   `gorm:"size:64;index"           json:"job_id,omitempty"`
	LinkID        string    `gorm:"size:64;index"           json:"link_id"`
	UserID        string    `gorm:"size:32;index"           json:"user_id"`
	SourceGroupID string    `gorm:"size:32"                 json:"source_group_id,omitempty"`
	TargetGroupID string    `gorm:"size:32"                 json:"target_group_id,omitempty"`
	SourceRoleID  string    `gorm:"size:32"                 json:"source_role_id,omitempty"`
	TargetRoleID  string    `gorm:"size:32"                 json:"target_role_id,omitempty"`
	Action        string    `gorm:"size:32;index"           json:"action"`
	Result        LogResult `gorm:"size:16;not null;index"  json:"result"`
	Error         string    `gorm:"size:1000"               json:"error,omitempty"`
	Note          string    `gorm:"size:500"                json:"note,omitempty"`
	CreatedAt     time.Time `gorm:"index"                   json:"created_at"`
}

// TableName specifies the database table name for the RoleChangeLog model.
func (RoleChangeLog) TableName() string {
	return "role_change_log"
}
