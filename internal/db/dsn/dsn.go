// Package dsn provides Data Source Name construction utilities for database connections.
package dsn

import (
	"fmt"
	"strings"

	"github.com/rolemirror/rolemirror/internal/config"
)

const (
	defaultMySQLExtras  = "charset=utf8mb4&parseTime=True&loc=UTC"
	defaultSQLiteExtras = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	defaultMySQLPort    = 3306
	defaultPostgresPort = 5432
)

// MySQL builds the go-sql-driver DSN.
func MySQL(db config.DB) string {
	port := db.Port
	if port == 0 {
		port = defaultMySQLPort
	}

	extras := db.Extras
	if extras == "" {
		extras = defaultMySQLExtras
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		db.User,
		db.Password,
		db.Host,
		port,
		db.Name,
		extras,
	)
}

// Postgres builds the pgx keyword/value DSN.
func Postgres(db config.DB) string {
	port := db.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	out := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		db.Host,
		port,
		db.User,
		db.Password,
		db.Name,
	)

	if db.Extras != "" {
		out += " " + db.Extras
	}

	return out
}

// SQLite builds the file DSN of the pure go sqlite driver.
func SQLite(db config.DB) string {
	extras := db.Extras
	if extras == "" {
		extras = defaultSQLiteExtras
	}

	if strings.Contains(db.Name, "?") {
		return db.Name + "&" + extras
	}

	return db.Name + "?" + extras
}
