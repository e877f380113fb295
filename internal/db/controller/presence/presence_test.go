package presence

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/db/dbtest"
)

func TestMarkActiveAndInactive(t *testing.T) {
	db := dbtest.Open(t)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p, err := MarkActive(db, "g", "u", []string{"r1"}, t0)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	require.NotNil(t, p.JoinedAt)

	roles, ok := p.Roles()
	require.True(t, ok)
	assert.Equal(t, []string{"r1"}, roles)

	// nil roles keeps the snapshot
	_, err = MarkActive(db, "g", "u", nil, t0.Add(time.Minute))
	require.NoError(t, err)

	left, err := MarkInactive(db, "g", "u", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, left.IsActive)
	require.NotNil(t, left.LeftAt)
	assert.True(t, left.LeftAt.Equal(t0.Add(time.Hour)))
	assert.True(t, left.JoinedAt.Equal(t0))

	roles, ok = left.Roles()
	require.True(t, ok)
	assert.Equal(t, []string{"r1"}, roles)

	back, err := MarkActive(db, "g", "u", []string{}, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, back.LeftAt)
	assert.True(t, back.JoinedAt.Equal(t0.Add(2*time.Hour)))

	unknown, err := MarkInactive(db, "g", "never-seen", t0)
	require.NoError(t, err)
	assert.False(t, unknown.IsActive)

	_, err = Get(db, "g", "nobody")
	require.ErrorIs(t, err, ErrPresenceNotFound)
}

func TestEligibleIntersection(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Now()

	for i := range 5 {
		_, err := MarkActive(db, "src", fmt.Sprintf("u%d", i), nil, now)
		require.NoError(t, err)
	}

	for _, u := range []string{"u1", "u2", "u3", "x"} {
		_, err := MarkActive(db, "dst", u, nil, now)
		require.NoError(t, err)
	}

	_, err := MarkInactive(db, "dst", "u2", now)
	require.NoError(t, err)

	n, err := CountEligible(db, "src", "dst")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ids, err := Eligible(db, "src", "dst", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, ids)

	ids, err = Eligible(db, "src", "dst", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, ids)
}

func TestMarkAllInactiveAndList(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Now()

	for _, u := range []string{"a", "b"} {
		_, err := MarkActive(db, "g", u, nil, now)
		require.NoError(t, err)
	}

	n, err := MarkAllInactive(db, "g", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	active := true
	rows, total, err := List(db, Filter{GroupID: "g", Active: &active})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)

	rows, total, err = List(db, Filter{GroupID: "g"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rows, 2)
}
