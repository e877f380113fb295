package importjob

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

func TestCreateSaveRecent(t *testing.T) {
	db := dbtest.Open(t)

	for i := range 10 {
		require.NoError(t, Create(db, &models.ConfigImportJob{
			JobID:  fmt.Sprintf("imp_%02d", i),
			Status: models.ImportImported,
		}))
	}

	j, err := Get(db, "imp_03")
	require.NoError(t, err)

	j.Status = models.ImportPreviewed
	require.NoError(t, Save(db, j))

	j, err = Get(db, "imp_03")
	require.NoError(t, err)
	assert.Equal(t, models.ImportPreviewed, j.Status)

	recent, err := Recent(db, 8)
	require.NoError(t, err)
	require.Len(t, recent, 8)
	assert.Equal(t, "imp_09", recent[0].JobID)

	_, err = Get(db, "missing")
	require.ErrorIs(t, err, ErrImportNotFound)
}
