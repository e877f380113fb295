// Package db opens the configured database and migrates the schema.
package db

import (
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/dsn"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/logger/adapter/gormlog"
)

// Dialector selects the gorm driver for the configured engine.
func Dialector(cfg config.DB) (gorm.Dialector, error) {
	switch cfg.GormEngine {
	case config.GormEngineSQLite, "":
		return sqlite.Open(dsn.SQLite(cfg)), nil
	case config.GormEngineMySQL:
		return mysql.Open(dsn.MySQL(cfg)), nil
	case config.GormEnginePostgres:
		return postgres.Open(dsn.Postgres(cfg)), nil
	default:
		return nil, config.ErrUnknownGormEngine
	}
}

// Open connects and migrates.
func Open(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.DB)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlog.New(cfg.DevMode)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err = Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	return nil
}
