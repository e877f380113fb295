// Package models contains database model definitions.
package models

// Setting is a named blob, used for runtime state such as the auto reconcile cursors.
type Setting struct {
	ID    uint64 `gorm:"primaryKey"`
	Name  string `gorm:"size:191;uniqueIndex"`
	Value []byte
}

// TableName specifies the database table name for the Setting model.
func (Setting) TableName() string {
	return "settings"
}
