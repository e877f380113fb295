package status

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/importjob"
	"github.com/rolemirror/rolemirror/internal/db/controller/job"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/platform/platformtest"
	"github.com/rolemirror/rolemirror/internal/reconcile"
)

type bootstraps []string

func (b bootstraps) Running() []string { return b }

func TestCollect(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	_, err := link.Upsert(db, models.SyncLink{LinkID: "main", SourceGroupID: "1", TargetGroupID: "2", Enabled: true})
	require.NoError(t, err)

	for i, lane := range []models.Lane{models.LaneFast, models.LaneFast, models.LaneNormal} {
		_, err = job.Enqueue(db, &models.SyncJob{
			JobID: "j" + string(rune('a'+i)), LinkID: "main", SourceGroupID: "1", TargetGroupID: "2",
			SourceRoleID: "10", TargetRoleID: "20", UserID: string(rune('a' + i)), Action: models.ActionAdd,
			Lane: lane, MaxAttempts: 3, NotBefore: time.Now().UnixMilli(),
		})
		require.NoError(t, err)
	}

	require.NoError(t, importjob.Create(db, &models.ConfigImportJob{JobID: "imp_1", Status: models.ImportImported, ParsedRows: "[]"}))

	rec := reconcile.New(db, platformtest.New(), config.Reconcile{AutoEnabled: true, AutoIntervalMS: 1000}, 3)

	o, err := Collect(ctx, db, rec, bootstraps{"1"})
	require.NoError(t, err)

	require.Len(t, o.Links, 1)
	assert.Equal(t, int64(3), o.QueueByStatus[models.JobPending])
	assert.Equal(t, int64(2), o.QueueByLane[models.LaneFast][models.JobPending])
	assert.Equal(t, int64(1), o.QueueByLane[models.LaneNormal][models.JobPending])
	require.Len(t, o.RecentImports, 1)
	require.NotNil(t, o.Auto)
	assert.True(t, o.Auto.Enabled)
	assert.Empty(t, o.FullRuns)
	assert.Equal(t, []string{"1"}, o.Bootstraps)

	o, err = Collect(ctx, db, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, o.Auto)
	assert.Empty(t, o.Bootstraps)
}
