package models

import "time"

// JobAction is the mutation a job applies to the target member.
type JobAction string

const (
	// ActionAdd grants the target role.
	ActionAdd JobAction = "add"
	// ActionRemove revokes the target role.
	ActionRemove JobAction = "remove"
)

// Opposite returns the inverse action.
func (a JobAction) Opposite() JobAction {
	if a == ActionAdd {
		return ActionRemove
	}

	return ActionAdd
}

// Lane separates latency sensitive jobs from the bulk.
type Lane string

const (
	// LaneFast holds jobs of mappings tolerating at most 20s delay.
	LaneFast Lane = "fast"
	// LaneNormal holds everything else.
	LaneNormal Lane = "normal"
)

// JobStatus is the lifecycle state of a SyncJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// SyncJob is one queued role mutation.
type SyncJob struct {
	ID    uint64 `gorm:"primaryKey"                       json:"-"`
	JobID string `gorm:"size:64;not null;uniqueIndex"     json:"job_id"`
	// DedupeKey identifies the (link, target group, user, target role, action) tuple.
	DedupeKey string `gorm:"size:255;not null;index" json:"dedupe_key"`
	// ActiveKey equals DedupeKey while pending or processing and is NULL afterwards,
	// so the unique index only covers live jobs.
	ActiveKey     *string   `gorm:"size:255;uniqueIndex"                json:"-"`
	LinkID        string    `gorm:"size:64;not null;index"              json:"link_id"`
	SourceGroupID string    `gorm:"size:32;not null"                    json:"source_group_id"`
	TargetGroupID string    `gorm:"size:32;not null"                    json:"target_group_id"`
	SourceRoleID  string    `gorm:"size:32;not null"                    json:"source_role_id"`
	TargetRoleID  string    `gorm:"size:32;not null"                    json:"target_role_id"`
	UserID        string    `gorm:"size:32;not null;index"              json:"user_id"`
	Action        JobAction `gorm:"size:8;not null"                     json:"action"`
	Lane          Lane      `gorm:"size:8;not null;index:idx_job_due,priority:2" json:"lane"`
	Priority      int       `gorm:"not null"                            json:"priority"`
	Status        JobStatus `gorm:"size:16;not null;index:idx_job_due,priority:1" json:"status"`
	AttemptCount  int       `gorm:"not null"                            json:"attempt_count"`
	MaxAttempts   int       `gorm:"not null"                            json:"max_attempts"`
	// NotBefore is the earliest execution time in unix milliseconds.
	NotBefore      int64          `gorm:"not null;index:idx_job_due,priority:3" json:"not_before"`
	ConflictPolicy ConflictPolicy `gorm:"size:40"                     json:"conflict_policy"`
	SourceEvent    string         `gorm:"size:64"                     json:"source_event"`
	LastError      string         `gorm:"size:1000"                   json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName specifies the database table name for the SyncJob model.
func (SyncJob) TableName() string {
	return "sync_jobs"
}
