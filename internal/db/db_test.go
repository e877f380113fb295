package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

func TestDialector(t *testing.T) {
	for _, engine := range []string{config.GormEngineSQLite, config.GormEngineMySQL, config.GormEnginePostgres} {
		d, err := Dialector(config.DB{GormEngine: engine, Name: "x"})
		require.NoError(t, err, engine)
		assert.NotNil(t, d)
	}

	_, err := Dialector(config.DB{GormEngine: "oracle"})
	assert.ErrorIs(t, err, config.ErrUnknownGormEngine)
}

func TestOpenSQLite(t *testing.T) {
	cfg := &config.Config{DB: config.DB{
		GormEngine: config.GormEngineSQLite,
		Name:       filepath.Join(t.TempDir(), "rm.db"),
	}}

	gdb, err := Open(cfg)
	require.NoError(t, err)

	for _, m := range models.All() {
		assert.True(t, gdb.Migrator().HasTable(m))
	}

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
