package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

func TestCreateGetRows(t *testing.T) {
	db := dbtest.Open(t)
	linkID := "main"

	rows := []models.RoleMapping{
		{LinkID: "main", SourceRoleID: "10", TargetRoleID: "20", Enabled: true, SyncMode: models.SyncBidirectional},
	}

	s, err := Create(db, &linkID, "before", "tester", rows)
	require.NoError(t, err)
	assert.Contains(t, s.SnapshotID, "snap_")

	got, err := Get(db, s.SnapshotID)
	require.NoError(t, err)
	require.NotNil(t, got.LinkID)
	assert.Equal(t, "main", *got.LinkID)

	decoded, err := Rows(got)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, models.SyncBidirectional, decoded[0].SyncMode)

	empty, err := Create(db, nil, "global", "tester", nil)
	require.NoError(t, err)

	decoded, err = Rows(empty)
	require.NoError(t, err)
	assert.Empty(t, decoded)

	list, err := List(db, "main", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	all, err := List(db, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = Get(db, "nope")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}
