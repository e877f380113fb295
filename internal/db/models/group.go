package models

import "time"

// Group is one community known to the service (a Discord guild with the shipped adapter).
type Group struct {
	// ID is the platform identifier of the group.
	ID string `gorm:"primaryKey;size:32"`
	// Name is the display name seen on the last warm-up.
	Name string `gorm:"size:100"`
	// IsPrimary marks the main community, source side of most links.
	IsPrimary bool
	// CreatedAt is the timestamp when the group was first registered (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp of the last refresh (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Group model.
func (Group) TableName() string {
	return "groups"
}
