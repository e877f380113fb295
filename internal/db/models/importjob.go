package models

import "time"

// ImportStatus is the state of a batch configuration import.
type ImportStatus string

const (
	ImportImported  ImportStatus = "imported"
	ImportPreviewed ImportStatus = "previewed"
	ImportApplied   ImportStatus = "applied"
	ImportFailed    ImportStatus = "failed"
)

// ConfigImportJob tracks one uploaded mapping plan through preview and apply.
type ConfigImportJob struct {
	ID       uint64       `gorm:"primaryKey"                   json:"-"`
	JobID    string       `gorm:"size:64;not null;uniqueIndex" json:"job_id"`
	FileName string       `gorm:"size:255"                     json:"file_name"`
	Status   ImportStatus `gorm:"size:16;not null;index"       json:"status"`
	// ParsedRows, Errors, PreviewSummary and ApplyResult hold JSON documents.
	ParsedRows     string    `gorm:"type:text" json:"-"`
	ValidRows      int       `json:"valid_rows"`
	InvalidRows    int       `json:"invalid_rows"`
	Errors         string    `gorm:"type:text" json:"-"`
	PreviewSummary *string   `gorm:"type:text" json:"-"`
	ApplyResult    *string   `gorm:"type:text" json:"-"`
	CreatedBy      string    `gorm:"size:100"  json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the database table name for the ConfigImportJob model.
func (ConfigImportJob) TableName() string {
	return "config_import_jobs"
}
