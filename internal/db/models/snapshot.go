package models

import "time"

// ConfigSnapshot is a write-once copy of the mapping set of one link.
type ConfigSnapshot struct {
	ID         uint64  `gorm:"primaryKey"                   json:"-"`
	SnapshotID string  `gorm:"size:64;not null;uniqueIndex" json:"snapshot_id"`
	LinkID     *string `gorm:"size:64;index"                json:"link_id,omitempty"`
	Name       string  `gorm:"size:200"                     json:"name"`
	// MappingRows is the JSON encoded []RoleMapping.
	MappingRows string    `gorm:"type:text;not null" json:"-"`
	CreatedBy   string    `gorm:"size:100"           json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the database table name for the ConfigSnapshot model.
func (ConfigSnapshot) TableName() string {
	return "config_snapshots"
}
