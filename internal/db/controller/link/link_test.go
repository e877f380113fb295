package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

func TestUpsertAndGet(t *testing.T) {
	db := dbtest.Open(t)

	created, err := Upsert(db, models.SyncLink{LinkID: " main ", SourceGroupID: "1", TargetGroupID: "2", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, "main", created.LinkID)
	assert.Equal(t, models.PolicySourceOfTruthMain, created.DefaultConflictPolicy)

	updated, err := Upsert(db, models.SyncLink{
		LinkID: "main", SourceGroupID: "1", TargetGroupID: "3",
		DefaultConflictPolicy: models.PolicyManualOnly,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	got, err := Get(db, "main")
	require.NoError(t, err)
	assert.Equal(t, "3", got.TargetGroupID)
	assert.False(t, got.Enabled)
	assert.Equal(t, models.PolicyManualOnly, got.DefaultConflictPolicy)

	_, err = Get(db, "nope")
	require.ErrorIs(t, err, ErrLinkNotFound)

	_, err = Upsert(db, models.SyncLink{LinkID: "x"})
	require.ErrorIs(t, err, ErrLinkInvalid)
}

func TestSetEnabledAndLists(t *testing.T) {
	db := dbtest.Open(t)

	_, err := Upsert(db, models.SyncLink{LinkID: "a", SourceGroupID: "1", TargetGroupID: "2", Enabled: true})
	require.NoError(t, err)
	_, err = Upsert(db, models.SyncLink{LinkID: "b", SourceGroupID: "1", TargetGroupID: "3", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, SetEnabled(db, "b", false))
	require.ErrorIs(t, SetEnabled(db, "zzz", true), ErrLinkNotFound)

	all, err := List(db)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := ListEnabled(db)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "a", enabled[0].LinkID)

	forTarget, err := ForGroup(db, "2")
	require.NoError(t, err)
	require.Len(t, forTarget, 1)

	forDisabled, err := ForGroup(db, "3")
	require.NoError(t, err)
	assert.Empty(t, forDisabled)
}
