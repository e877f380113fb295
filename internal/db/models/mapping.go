package models

import "time"

// SyncMode is the allowed propagation direction of a mapping.
type SyncMode string

const (
	// SyncBidirectional propagates changes from either side.
	SyncBidirectional SyncMode = "bidirectional"
	// SyncSourceToTarget propagates source side changes only.
	SyncSourceToTarget SyncMode = "source_to_target"
	// SyncTargetToSource propagates target side changes only.
	SyncTargetToSource SyncMode = "target_to_source"
	// SyncDisabled never propagates.
	SyncDisabled SyncMode = "disabled"
)

// CopyPermissionsMode controls which permission bits a created target role receives.
type CopyPermissionsMode string

const (
	// CopyPermissionsNone creates the role without permissions.
	CopyPermissionsNone CopyPermissionsMode = "none"
	// CopyPermissionsSafe copies the non-moderation subset of the source permissions.
	CopyPermissionsSafe CopyPermissionsMode = "safe"
	// CopyPermissionsStrict copies all source permissions.
	CopyPermissionsStrict CopyPermissionsMode = "strict"
)

// RoleMapping maps one source role to one target role on a link.
type RoleMapping struct {
	ID           uint64   `gorm:"primaryKey"                                   json:"id"`
	LinkID       string   `gorm:"size:64;not null;uniqueIndex:idx_mapping_tuple" json:"link_id"`
	SourceRoleID string   `gorm:"size:32;not null;uniqueIndex:idx_mapping_tuple;index" json:"source_role_id"`
	TargetRoleID string   `gorm:"size:32;not null;uniqueIndex:idx_mapping_tuple;index" json:"target_role_id"`
	Enabled      bool     `gorm:"not null"                                     json:"enabled"`
	SyncMode     SyncMode `gorm:"size:32;not null"                           json:"sync_mode"`
	// ConflictPolicy overrides the link default when set.
	ConflictPolicy *ConflictPolicy `gorm:"size:40" json:"conflict_policy,omitempty"`
	// MaxDelaySeconds is the tolerated propagation latency, it selects lane and debounce.
	MaxDelaySeconds     int                 `gorm:"not null"          json:"max_delay_seconds"`
	RoleType            string              `gorm:"size:40"           json:"role_type"`
	CopyVisual          bool                `gorm:"not null"          json:"copy_visual"`
	CopyPermissionsMode CopyPermissionsMode `gorm:"size:16;not null"  json:"copy_permissions_mode"`
	Note                string              `gorm:"size:500"          json:"note"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// TableName specifies the database table name for the RoleMapping model.
func (RoleMapping) TableName() string {
	return "role_mappings"
}

// EffectivePolicy returns the mapping policy, falling back to the link default
// and finally to source_of_truth_main.
func (m RoleMapping) EffectivePolicy(linkDefault ConflictPolicy) ConflictPolicy {
	switch {
	case m.ConflictPolicy != nil && *m.ConflictPolicy != "":
		return *m.ConflictPolicy
	case linkDefault != "":
		return linkDefault
	default:
		return PolicySourceOfTruthMain
	}
}
