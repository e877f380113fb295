package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/cancelreg"
	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/job"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/controller/mapping"
	"github.com/rolemirror/rolemirror/internal/db/controller/presence"
	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/platform"
	"github.com/rolemirror/rolemirror/internal/platform/platformtest"
	"github.com/rolemirror/rolemirror/internal/policy"
)

var noDelays = config.Reconcile{AutoMaxMembersPerLink: 2, FullBatchSize: 3, MemberDelayMS: -1, BatchDelayMS: -1}

type env struct {
	db   *gorm.DB
	fake *platformtest.Fake
	svc  *Service
}

func newEnv(t *testing.T, mode models.SyncMode, p models.ConflictPolicy) *env {
	t.Helper()

	e := &env{db: dbtest.Open(t), fake: platformtest.New()}

	e.fake.PutGroup("1", "main")
	e.fake.PutGroup("2", "branch")
	e.fake.PutRole(platform.Role{ID: "10", GroupID: "1", Name: "vip"})
	e.fake.PutRole(platform.Role{ID: "20", GroupID: "2", Name: "vip"})

	_, err := link.Upsert(e.db, models.SyncLink{LinkID: "main", SourceGroupID: "1", TargetGroupID: "2", Enabled: true, DefaultConflictPolicy: p})
	require.NoError(t, err)

	_, err = mapping.Upsert(e.db, models.RoleMapping{
		LinkID: "main", SourceRoleID: "10", TargetRoleID: "20", Enabled: true, SyncMode: mode, MaxDelaySeconds: 60,
	})
	require.NoError(t, err)

	e.svc = New(e.db, e.fake, noDelays, 3)

	return e
}

// member puts the user in both groups, on the platform and in presence.
func (e *env) member(t *testing.T, user string, sourceRoles, targetRoles []string) {
	t.Helper()

	e.fake.PutMember("1", user, sourceRoles...)
	e.fake.PutMember("2", user, targetRoles...)

	_, err := presence.MarkActive(e.db, "1", user, sourceRoles, time.Now())
	require.NoError(t, err)
	_, err = presence.MarkActive(e.db, "2", user, targetRoles, time.Now())
	require.NoError(t, err)
}

func (e *env) pending(t *testing.T) []models.SyncJob {
	t.Helper()

	jobs, _, err := job.List(e.db, job.Filter{Status: models.JobPending, PageSize: 500})
	require.NoError(t, err)

	return jobs
}

func TestWant(t *testing.T) {
	tests := []struct {
		dir        policy.Direction
		src, dst   bool
		wantAction models.JobAction
		wantOK     bool
	}{
		{policy.SourceToTarget, true, false, models.ActionAdd, true},
		{policy.SourceToTarget, false, true, models.ActionRemove, true},
		{policy.SourceToTarget, true, true, "", false},
		{policy.SourceToTarget, false, false, "", false},
		{policy.TargetToSource, false, true, models.ActionAdd, true},
		{policy.TargetToSource, true, false, models.ActionRemove, true},
	}

	for _, tt := range tests {
		action, ok := Want(tt.dir, tt.src, tt.dst)
		assert.Equal(t, tt.wantOK, ok)
		assert.Equal(t, tt.wantAction, action)
	}
}

func TestMemberPlansAndIsIdempotent(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")
	e.member(t, "u", []string{"10"}, nil)

	start := time.Now()

	res, err := e.svc.Member(context.Background(), "main", "u", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Planned)

	jobs := e.pending(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.ActionAdd, jobs[0].Action)
	assert.Equal(t, "2", jobs[0].TargetGroupID)
	assert.Equal(t, ReasonManual, jobs[0].SourceEvent)
	assert.GreaterOrEqual(t, jobs[0].NotBefore, start.Add(jobDelay).UnixMilli())

	// the live job already covers the difference
	res, err = e.svc.Member(context.Background(), "main", "u", "")
	require.NoError(t, err)
	assert.Zero(t, res.Planned)
	assert.Len(t, e.pending(t), 1)
}

func TestMemberInAgreementPlansNothing(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")
	e.member(t, "u", []string{"10"}, []string{"20"})

	res, err := e.svc.Member(context.Background(), "main", "u", "")
	require.NoError(t, err)
	assert.Zero(t, res.Planned)
	assert.False(t, res.Skipped)
}

func TestMemberOutsideIntersection(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")
	e.member(t, "u", []string{"10"}, nil)
	e.fake.DeleteMember("2", "u")

	res, err := e.svc.Member(context.Background(), "main", "u", "")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.True(t, res.Departed)
	assert.Empty(t, e.pending(t))

	p, err := presence.Get(e.db, "2", "u")
	require.NoError(t, err)
	assert.False(t, p.IsActive)
}

func TestMemberLinkState(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")

	_, err := e.svc.Member(context.Background(), "nope", "u", "")
	require.ErrorIs(t, err, link.ErrLinkNotFound)

	require.NoError(t, link.SetEnabled(e.db, "main", false))

	res, err := e.svc.Member(context.Background(), "main", "u", "")
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	_, err = e.svc.Full(context.Background(), "main", FullOptions{})
	require.ErrorIs(t, err, ErrLinkDisabled)
}

func TestDirectionByPolicy(t *testing.T) {
	tests := []struct {
		name       string
		mode       models.SyncMode
		policy     models.ConflictPolicy
		wantTarget string
	}{
		{"manual only is left alone", models.SyncBidirectional, models.PolicyManualOnly, ""},
		{"latest wins is left alone", models.SyncBidirectional, models.PolicyBidirectionalLatest, ""},
		{"main priority", models.SyncBidirectional, models.PolicyBidirectionalMainPriority, "2"},
		{"reverse mapping", models.SyncTargetToSource, "", "1"},
		{"disabled mapping", models.SyncDisabled, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.mode, tt.policy)
			e.member(t, "u", []string{"10"}, nil)

			_, err := e.svc.Member(context.Background(), "main", "u", "")
			require.NoError(t, err)

			jobs := e.pending(t)
			if tt.wantTarget == "" {
				assert.Empty(t, jobs)
				return
			}

			require.Len(t, jobs, 1)
			assert.Equal(t, tt.wantTarget, jobs[0].TargetGroupID)
		})
	}
}

func TestBatchWindow(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")

	for i := 0; i < 5; i++ {
		e.member(t, fmt.Sprintf("u%d", i), []string{"10"}, nil)
	}

	var calls int

	res, err := e.svc.Batch(context.Background(), "main", 2, 2, "", func(Progress) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.TotalEligible)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 2, res.Planned)
	assert.Equal(t, 4, res.NextOffset)
	assert.Equal(t, 2, calls)

	users := map[string]bool{}
	for _, j := range e.pending(t) {
		users[j.UserID] = true
	}

	assert.Equal(t, map[string]bool{"u2": true, "u3": true}, users)
}

func TestFullRunAndResume(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")

	for i := 0; i < 7; i++ {
		e.member(t, fmt.Sprintf("u%d", i), []string{"10"}, nil)
	}

	ctx := context.Background()

	first, err := e.svc.Full(ctx, "main", FullOptions{Progress: func(p Progress) {
		if p.Processed == 4 {
			assert.True(t, e.svc.IsRunning("main"))
			_, err := e.svc.Full(ctx, "main", FullOptions{})
			assert.ErrorIs(t, err, cancelreg.ErrAlreadyRunning)
			assert.True(t, e.svc.Stop("main"))
		}
	}})
	require.NoError(t, err)
	assert.True(t, first.Aborted)
	assert.Equal(t, 4, first.Processed)
	assert.Equal(t, 4, first.NextOffset)
	assert.False(t, e.svc.IsRunning("main"))

	second, err := e.svc.Full(ctx, "main", FullOptions{Offset: first.NextOffset})
	require.NoError(t, err)
	assert.False(t, second.Aborted)
	assert.Equal(t, 3, second.Processed)
	assert.Equal(t, 7, first.Planned+second.Planned)
	assert.Len(t, e.pending(t), 7)
}

// stopDuring stops the full run of a link while a member lookup is in flight.
type stopDuring struct {
	*platformtest.Fake
	svc  *Service
	user string
}

func (c *stopDuring) FetchMember(ctx context.Context, groupID, userID string) (*platform.Member, error) {
	if userID == c.user && groupID == "1" {
		c.svc.Stop("main")
	}

	return c.Fake.FetchMember(ctx, groupID, userID)
}

func TestFullStopLetsMemberFinish(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")

	for _, u := range []string{"a", "b", "c", "d"} {
		e.member(t, u, []string{"10"}, nil)
	}

	client := &stopDuring{Fake: e.fake, user: "b"}
	svc := New(e.db, client, noDelays, 3)
	client.svc = svc

	ctx := context.Background()

	first, err := svc.Full(ctx, "main", FullOptions{})
	require.NoError(t, err)
	assert.True(t, first.Aborted)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 2, first.Planned)
	assert.Zero(t, first.Failed)
	assert.Empty(t, first.Failures)
	assert.Equal(t, 2, first.NextOffset)

	client.user = ""

	second, err := svc.Full(ctx, "main", FullOptions{Offset: first.NextOffset})
	require.NoError(t, err)
	assert.False(t, second.Aborted)
	assert.Equal(t, 2, second.Processed)
	assert.Len(t, e.pending(t), 4)
}

func TestFullCallerCancelKeepsMember(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")
	e.member(t, "a", []string{"10"}, nil)
	e.member(t, "b", []string{"10"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := e.svc.Full(ctx, "main", FullOptions{Progress: func(p Progress) {
		if p.Processed == 1 {
			cancel()
		}
	}})
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 1, res.NextOffset)
}

func TestFullSurvivesDepartures(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")

	for i := 0; i < 7; i++ {
		e.member(t, fmt.Sprintf("u%d", i), []string{"10"}, nil)
	}

	e.fake.DeleteMember("2", "u1")
	e.fake.DeleteMember("2", "u4")

	res, err := e.svc.Full(context.Background(), "main", FullOptions{})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Processed)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 5, res.Planned)
	assert.Equal(t, 5, res.NextOffset)
}

func TestFullSamplesFailures(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")
	e.member(t, "u0", []string{"10"}, nil)
	e.member(t, "u1", []string{"10"}, nil)

	// the first member lookup is u0 on the source side
	e.fake.FailNext("FetchMember", &platform.NetworkError{Err: fmt.Errorf("reset")})

	res, err := e.svc.Full(context.Background(), "main", FullOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "u0", res.Failures[0].UserID)
	assert.Equal(t, 1, res.Processed)
}

func TestAutoCursor(t *testing.T) {
	e := newEnv(t, models.SyncSourceToTarget, "")

	_, err := link.Upsert(e.db, models.SyncLink{LinkID: "empty", SourceGroupID: "1", TargetGroupID: "3", Enabled: true})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e.member(t, fmt.Sprintf("u%d", i), []string{"10"}, []string{"20"})
	}

	ctx := context.Background()
	wantCursors := []int{2, 0, 2}

	for _, want := range wantCursors {
		res, err := e.svc.AutoOnce(ctx)
		require.NoError(t, err)
		require.False(t, res.Skipped)
		require.Len(t, res.Links, 2)

		byID := map[string]AutoLink{}
		for _, l := range res.Links {
			byID[l.LinkID] = l
		}

		assert.True(t, byID["empty"].Skipped)
		assert.Equal(t, want, byID["main"].Cursor)

		cur, err := e.svc.Cursor(ctx, "main")
		require.NoError(t, err)
		assert.Equal(t, want, cur)
	}

	st, err := e.svc.AutoStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"main": 2}, st.Cursors)

	e.svc.autoRunning.Store(true)

	res, err := e.svc.AutoOnce(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestFullTenThousandMembers(t *testing.T) {
	if testing.Short() {
		t.Skip("large intersection")
	}

	e := newEnv(t, models.SyncSourceToTarget, "")

	const n = 10000

	rows := make([]models.MemberPresence, 0, 2*n)
	snap := models.EncodeRoles([]string{})

	for i := 0; i < n; i++ {
		u := fmt.Sprintf("%018d", i)
		e.fake.PutMember("1", u)
		e.fake.PutMember("2", u)

		rows = append(rows,
			models.MemberPresence{GroupID: "1", UserID: u, IsActive: true, RoleSnapshot: snap},
			models.MemberPresence{GroupID: "2", UserID: u, IsActive: true, RoleSnapshot: snap})
	}

	require.NoError(t, e.db.CreateInBatches(rows, 500).Error)

	svc := New(e.db, e.fake, config.Reconcile{FullBatchSize: 50, MemberDelayMS: -1, BatchDelayMS: -1}, 3)
	ctx := context.Background()

	first, err := svc.Full(ctx, "main", FullOptions{Progress: func(p Progress) {
		if p.Processed == 2500 {
			svc.Stop("main")
		}
	}})
	require.NoError(t, err)
	assert.True(t, first.Aborted)
	assert.Equal(t, 2500, first.NextOffset)

	second, err := svc.Full(ctx, "main", FullOptions{Offset: first.NextOffset})
	require.NoError(t, err)
	assert.False(t, second.Aborted)
	assert.Equal(t, n, first.Processed+second.Processed)
	assert.LessOrEqual(t, first.Windows+second.Windows, 200)
	assert.Equal(t, int64(n), second.TotalEligible)
}
