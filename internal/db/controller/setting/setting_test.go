package setting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

func seedSettings(t *testing.T, db *gorm.DB, settings []models.Setting) {
	t.Helper()

	for _, s := range settings {
		require.NoError(t, db.Create(&s).Error, "failed to seed test data")
	}
}

func TestGet(t *testing.T) {
	db := dbtest.Open(t)

	testCases := []struct {
		name          string
		dbParam       *gorm.DB
		settingName   string
		seedData      []models.Setting
		expectedError error
		expectedValue []byte
	}{
		{name: "nil database", dbParam: nil, settingName: "test", expectedError: ErrDBNil},
		{name: "empty name", dbParam: db, settingName: "", expectedError: ErrSettingNameEmpty},
		{name: "setting not found", dbParam: db, settingName: "nonexistent", expectedError: ErrSettingNotFound},
		{
			name:          "successful get",
			dbParam:       db,
			settingName:   "reconcile.cursor.main",
			seedData:      []models.Setting{{Name: "reconcile.cursor.main", Value: []byte("40")}},
			expectedValue: []byte("40"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.dbParam != nil {
				tc.dbParam.Exec("DELETE FROM settings")
			}

			seedSettings(t, db, tc.seedData)

			s, err := Get(tc.dbParam, tc.settingName)
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				assert.Nil(t, s)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.settingName, s.Name)
			assert.Equal(t, tc.expectedValue, s.Value)
		})
	}
}

func TestSetUpserts(t *testing.T) {
	db := dbtest.Open(t)

	first, err := Set(db, "k", []byte("1"))
	require.NoError(t, err)

	second, err := Set(db, "k", []byte("2"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.Setting{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	s, err := Get(db, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), s.Value)

	_, err = Set(nil, "k", nil)
	require.ErrorIs(t, err, ErrDBNil)

	_, err = Set(db, "", nil)
	require.ErrorIs(t, err, ErrSettingNameEmpty)
}

func TestListPrefix(t *testing.T) {
	db := dbtest.Open(t)

	seedSettings(t, db, []models.Setting{
		{Name: "reconcile.cursor.b", Value: []byte("2")},
		{Name: "reconcile.cursor.a", Value: []byte("1")},
		{Name: "other", Value: []byte("x")},
	})

	got, err := ListPrefix(db, "reconcile.cursor.")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "reconcile.cursor.a", got[0].Name)
	assert.Equal(t, "reconcile.cursor.b", got[1].Name)
}

func TestDelete(t *testing.T) {
	db := dbtest.Open(t)

	seedSettings(t, db, []models.Setting{{Name: "gone", Value: []byte("x")}})

	require.NoError(t, Delete(db, "gone"))
	require.ErrorIs(t, Delete(db, "gone"), ErrSettingNotFound)
	require.ErrorIs(t, Delete(db, ""), ErrSettingNameEmpty)
	require.ErrorIs(t, Delete(nil, "x"), ErrDBNil)
}

func TestJSONRoundTrip(t *testing.T) {
	db := dbtest.Open(t)

	type cursor struct {
		Offset int `json:"offset"`
	}

	require.NoError(t, SetJSON(db, "c", cursor{Offset: 60}))

	var got cursor
	require.NoError(t, GetJSON(db, "c", &got))
	assert.Equal(t, 60, got.Offset)

	require.ErrorIs(t, GetJSON(db, "missing", &got), ErrSettingNotFound)
}
