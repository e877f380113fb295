package configcsv

import "errors"

var (
	// ErrUnsupportedFile is returned for plan files that are neither .csv nor .xlsx.
	ErrUnsupportedFile = errors.New("unsupported plan file, use .csv or .xlsx")
	// ErrAlreadyApplied is returned when an applied import is applied again.
	ErrAlreadyApplied = errors.New("import already applied")
	// ErrNoValidRows is returned when an import has nothing to apply.
	ErrNoValidRows = errors.New("import has no valid rows")
	// ErrNoBackup is returned when a snapshot has no link to roll back.
	ErrNoBackup = errors.New("snapshot is not bound to a link")
)
