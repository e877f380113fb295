package config

import (
	"errors"
)

var (
	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0 while the webserver is enabled.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")
	// ErrUnknownGormEngine error if config db.gormEngine names an unsupported driver.
	ErrUnknownGormEngine = errors.New("toml config db.gormEngine must be sqlite, mysql or postgres")
	// ErrEmptyDBName error if config db.name is empty.
	ErrEmptyDBName = errors.New("toml config db.name can not be empty")
	// ErrInvalidLink error if a statically configured link is incomplete.
	ErrInvalidLink = errors.New("toml config links entry needs linkId, sourceGroupId and targetGroupId")
	// ErrInvalidWorkerQuota error if a worker batch quota is negative.
	ErrInvalidWorkerQuota = errors.New("toml config worker batch sizes can not be negative")
)
