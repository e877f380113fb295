package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/group"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/platform/platformtest"
)

func TestSeedLinks(t *testing.T) {
	db := dbtest.Open(t)
	off := false

	require.NoError(t, SeedLinks(db, []config.Link{
		{LinkID: "main", SourceGroupID: "1", TargetGroupID: "2"},
		{LinkID: "old", SourceGroupID: "1", TargetGroupID: "3", Enabled: &off, DefaultConflictPolicy: "manual_only"},
	}))

	l, err := link.Get(db, "main")
	require.NoError(t, err)
	assert.True(t, l.Enabled)
	assert.Equal(t, models.PolicySourceOfTruthMain, l.DefaultConflictPolicy)

	l, err = link.Get(db, "old")
	require.NoError(t, err)
	assert.False(t, l.Enabled)
	assert.Equal(t, models.PolicyManualOnly, l.DefaultConflictPolicy)

	// seeding again updates in place
	require.NoError(t, SeedLinks(db, []config.Link{{LinkID: "main", SourceGroupID: "1", TargetGroupID: "4"}}))

	l, err = link.Get(db, "main")
	require.NoError(t, err)
	assert.Equal(t, "4", l.TargetGroupID)

	assert.Error(t, SeedLinks(db, []config.Link{{LinkID: "broken"}}))
}

func TestWarmGroups(t *testing.T) {
	db := dbtest.Open(t)
	fake := platformtest.New()
	fake.PutGroup("1", "Main")
	fake.PutGroup("2", "Mirror")

	require.NoError(t, SeedLinks(db, []config.Link{
		{LinkID: "a", SourceGroupID: "1", TargetGroupID: "2"},
		{LinkID: "b", SourceGroupID: "1", TargetGroupID: "9"},
	}))

	n, err := WarmGroups(context.Background(), db, fake)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	groups, err := group.List(db)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "1", groups[0].ID)
	assert.True(t, groups[0].IsPrimary)
	assert.Equal(t, "Mirror", groups[1].Name)
	assert.False(t, groups[1].IsPrimary)
}

func TestNewServices(t *testing.T) {
	db := dbtest.Open(t)
	cfg := &config.Config{Worker: config.Worker{MaxAttempts: 3}}

	s := NewServices(cfg, db, platformtest.New())
	assert.NotNil(t, s.Planner)
	assert.NotNil(t, s.Worker)
	assert.NotNil(t, s.Reconciler)
	assert.NotNil(t, s.Roster)
	assert.NotNil(t, s.Plans)
	assert.Same(t, db, s.DB)
}
