package models

import (
	"encoding/json"
	"time"
)

// MemberPresence is the locally known membership of a user in a group.
type MemberPresence struct {
	GroupID  string `gorm:"primaryKey;size:32"`
	UserID   string `gorm:"primaryKey;size:32;index"`
	IsActive bool   `gorm:"not null;index"`
	JoinedAt *time.Time
	LeftAt   *time.Time
	// RoleSnapshot is the JSON encoded role id list of the last observed state.
	RoleSnapshot *string `gorm:"type:text"`
	UpdatedAt    time.Time
}

// TableName specifies the database table name for the MemberPresence model.
func (MemberPresence) TableName() string {
	return "member_presence"
}

// Roles decodes the role snapshot; ok is false when no snapshot was recorded.
func (p MemberPresence) Roles() (roles []string, ok bool) {
	if p.RoleSnapshot == nil {
		return nil, false
	}

	if err := json.Unmarshal([]byte(*p.RoleSnapshot), &roles); err != nil {
		return nil, false
	}

	return roles, true
}

// EncodeRoles renders a role id list the way RoleSnapshot stores it.
func EncodeRoles(roles []string) *string {
	if roles == nil {
		roles = []string{}
	}

	b, _ := json.Marshal(roles) //nolint:errchkjson
	s := string(b)

	return &s
}
