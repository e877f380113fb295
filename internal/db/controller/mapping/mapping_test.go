package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

func seedLink(t *testing.T, db *gorm.DB, id, src, dst string, enabled bool) {
	t.Helper()

	_, err := link.Upsert(db, models.SyncLink{LinkID: id, SourceGroupID: src, TargetGroupID: dst, Enabled: enabled})
	require.NoError(t, err)
}

func TestUpsertKeepsTupleUnique(t *testing.T) {
	db := dbtest.Open(t)

	first, err := Upsert(db, models.RoleMapping{LinkID: "l", SourceRoleID: "10", TargetRoleID: "20", Enabled: true, MaxDelaySeconds: 10})
	require.NoError(t, err)
	assert.Equal(t, models.SyncSourceToTarget, first.SyncMode)
	assert.Equal(t, models.CopyPermissionsNone, first.CopyPermissionsMode)

	second, err := Upsert(db, models.RoleMapping{LinkID: "l", SourceRoleID: "10", TargetRoleID: "20", MaxDelaySeconds: 90})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := Get(db, "l", "10", "20")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, 90, got.MaxDelaySeconds)

	rows, err := ListByLink(db, "l", false)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = Upsert(db, models.RoleMapping{LinkID: "l"})
	require.ErrorIs(t, err, ErrMappingInvalid)
}

func TestForRole(t *testing.T) {
	db := dbtest.Open(t)

	seedLink(t, db, "main", "1", "2", true)
	seedLink(t, db, "off", "1", "3", false)

	_, err := Upsert(db, models.RoleMapping{LinkID: "main", SourceRoleID: "10", TargetRoleID: "20", Enabled: true})
	require.NoError(t, err)
	_, err = Upsert(db, models.RoleMapping{LinkID: "main", SourceRoleID: "11", TargetRoleID: "21", Enabled: false})
	require.NoError(t, err)
	_, err = Upsert(db, models.RoleMapping{LinkID: "off", SourceRoleID: "10", TargetRoleID: "30", Enabled: true})
	require.NoError(t, err)

	fromSource, err := ForRole(db, "1", "10")
	require.NoError(t, err)
	require.Len(t, fromSource, 1)
	assert.True(t, fromSource[0].FromSource("1", "10"))
	assert.Equal(t, "2", fromSource[0].TargetGroupID)
	assert.Equal(t, models.PolicySourceOfTruthMain, fromSource[0].Policy())

	fromTarget, err := ForRole(db, "2", "20")
	require.NoError(t, err)
	require.Len(t, fromTarget, 1)
	assert.True(t, fromTarget[0].FromTarget("2", "20"))

	// role id 20 in the source group is not the mapped side
	none, err := ForRole(db, "1", "20")
	require.NoError(t, err)
	assert.Empty(t, none)

	disabledMapping, err := ForRole(db, "1", "11")
	require.NoError(t, err)
	assert.Empty(t, disabledMapping)
}

func TestDeleteAndToggle(t *testing.T) {
	db := dbtest.Open(t)

	m, err := Upsert(db, models.RoleMapping{LinkID: "l", SourceRoleID: "10", TargetRoleID: "20", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, SetEnabled(db, m.ID, false))
	require.NoError(t, SetEnabled(db, m.ID, false))
	require.ErrorIs(t, SetEnabled(db, 999, true), ErrMappingNotFound)

	got, err := Get(db, "l", "10", "20")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, Delete(db, "l", "10", "20"))
	require.ErrorIs(t, Delete(db, "l", "10", "20"), ErrMappingNotFound)
}

func TestReplaceForLink(t *testing.T) {
	db := dbtest.Open(t)

	_, err := Upsert(db, models.RoleMapping{LinkID: "l", SourceRoleID: "10", TargetRoleID: "20", Enabled: true})
	require.NoError(t, err)
	_, err = Upsert(db, models.RoleMapping{LinkID: "other", SourceRoleID: "10", TargetRoleID: "20", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, ReplaceForLink(db, "l", []models.RoleMapping{
		{ID: 77, SourceRoleID: "11", TargetRoleID: "21", Enabled: true},
		{SourceRoleID: "12", TargetRoleID: "22"},
	}))

	rows, err := ListByLink(db, "l", false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "11", rows[0].SourceRoleID)
	assert.Equal(t, "l", rows[1].LinkID)

	others, err := ListByLink(db, "other", false)
	require.NoError(t, err)
	assert.Len(t, others, 1)

	// duplicate tuples violate the unique index and leave the old set intact
	err = ReplaceForLink(db, "l", []models.RoleMapping{
		{SourceRoleID: "13", TargetRoleID: "23"},
		{SourceRoleID: "13", TargetRoleID: "23"},
	})
	require.Error(t, err)

	rows, err = ListByLink(db, "l", false)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
