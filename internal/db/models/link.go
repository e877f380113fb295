package models

import "time"

// ConflictPolicy decides which side wins when both sides of a bidirectional mapping disagree.
type ConflictPolicy string

const (
	// PolicySourceOfTruthMain lets the source group win.
	PolicySourceOfTruthMain ConflictPolicy = "source_of_truth_main"
	// PolicyBidirectionalMainPriority syncs both ways, the source group wins on reconcile.
	PolicyBidirectionalMainPriority ConflictPolicy = "bidirectional_main_priority"
	// PolicyManualOnly never reconciles automatically.
	PolicyManualOnly ConflictPolicy = "manual_only"
	// PolicyBidirectionalLatest lets the latest live change win; reconcile does not pick a side.
	PolicyBidirectionalLatest ConflictPolicy = "bidirectional_latest"
)

// SyncLink pairs a source group with a target group.
type SyncLink struct {
	// ID is the surrogate primary key.
	ID uint64 `gorm:"primaryKey"`
	// LinkID is the operator chosen identifier of the link.
	LinkID string `gorm:"size:64;not null;uniqueIndex"`
	// SourceGroupID is the main side of the link.
	SourceGroupID string `gorm:"size:32;not null;index"`
	// TargetGroupID is the mirrored side of the link.
	TargetGroupID string `gorm:"size:32;not null;index"`
	// Enabled links are consulted by the planner and the reconciler.
	Enabled bool `gorm:"not null"`
	// DefaultConflictPolicy applies to mappings without their own policy.
	DefaultConflictPolicy ConflictPolicy `gorm:"size:40;not null"`
	// CreatedAt is managed by GORM.
	CreatedAt time.Time
	// UpdatedAt is managed by GORM.
	UpdatedAt time.Time
}

// TableName specifies the database table name for the SyncLink model.
func (SyncLink) TableName() string {
	return "sync_links"
}
