package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/changelog"
	"github.com/rolemirror/rolemirror/internal/db/controller/job"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/controller/mapping"
	"github.com/rolemirror/rolemirror/internal/db/controller/presence"
	"github.com/rolemirror/rolemirror/internal/db/controller/snapshot"
	"github.com/rolemirror/rolemirror/internal/db/dbtest"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

type bootstraps []string

func (b bootstraps) Running() []string { return b }

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()

	_, err := link.Upsert(db, models.SyncLink{LinkID: "main", SourceGroupID: "1", TargetGroupID: "2", Enabled: true})
	require.NoError(t, err)

	_, err = mapping.Upsert(db, models.RoleMapping{LinkID: "main", SourceRoleID: "10", TargetRoleID: "20", Enabled: true})
	require.NoError(t, err)

	_, err = job.Enqueue(db, &models.SyncJob{
		JobID: "rs_1_abcdef01", LinkID: "main", SourceGroupID: "1", TargetGroupID: "2",
		SourceRoleID: "10", TargetRoleID: "20", UserID: "42", Action: models.ActionAdd,
		Lane: models.LaneFast, MaxAttempts: 3, NotBefore: time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	require.NoError(t, changelog.Write(db, &models.RoleChangeLog{
		LinkID: "main", UserID: "42", Action: "member_update", Result: models.ResultPlanned,
	}))

	_, err = presence.MarkActive(db, "1", "42", []string{"10"}, time.Now())
	require.NoError(t, err)

	_, err = presence.MarkInactive(db, "2", "42", time.Now())
	require.NoError(t, err)

	id := "main"
	_, err = snapshot.Create(db, &id, "manual", "ops", nil)
	require.NoError(t, err)
}

func newService(t *testing.T) *Service {
	t.Helper()

	db := dbtest.Open(t)
	seed(t, db)

	cfg := &config.Config{Title: "rolemirror", Webserver: config.Webserver{MetricsPath: "/metrics"}}

	return New(cfg, db, Deps{Bootstrapper: bootstraps{"1"}})
}

func get(t *testing.T, s *Service, target string) (int, []byte) {
	t.Helper()

	resp, err := s.App.Test(httptest.NewRequest(fiber.MethodGet, target, nil))
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

type page struct {
	Items []map[string]any `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
}

func TestCheckAlive(t *testing.T) {
	s := newService(t)

	code, body := get(t, s, "/checkalive")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "OK", string(body))

	s.alive.Store(false)

	code, _ = get(t, s, "/checkalive")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
}

func TestStatus(t *testing.T) {
	s := newService(t)

	code, body := get(t, s, "/api/status")
	require.Equal(t, fiber.StatusOK, code)

	var o struct {
		Links         []map[string]any `json:"links"`
		QueueByStatus map[string]int64 `json:"queue_by_status"`
		Bootstraps    []string         `json:"bootstraps"`
		Auto          any              `json:"auto"`
	}

	require.NoError(t, json.Unmarshal(body, &o))
	assert.Len(t, o.Links, 1)
	assert.Equal(t, int64(1), o.QueueByStatus["pending"])
	assert.Equal(t, []string{"1"}, o.Bootstraps)
	assert.Nil(t, o.Auto)
}

func TestListings(t *testing.T) {
	s := newService(t)

	tests := []struct {
		name   string
		target string
		code   int
		total  int64
	}{
		{name: "jobs", target: "/api/jobs", code: 200, total: 1},
		{name: "jobs by status", target: "/api/jobs?status=completed", code: 200, total: 0},
		{name: "jobs bad status", target: "/api/jobs?status=bogus", code: 400},
		{name: "jobs bad page size", target: "/api/jobs?page_size=1000", code: 400},
		{name: "logs", target: "/api/logs?result=planned&user_id=4", code: 200, total: 1},
		{name: "logs bad time", target: "/api/logs?from=yesterday", code: 400},
		{name: "logs window", target: "/api/logs?to=2000-01-01T00:00:00Z", code: 200, total: 0},
		{name: "presence active", target: "/api/presence?active=true", code: 200, total: 1},
		{name: "presence by group", target: "/api/presence?group_id=2", code: 200, total: 1},
		{name: "presence bad flag", target: "/api/presence?active=maybe", code: 400},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := get(t, s, tc.target)
			require.Equal(t, tc.code, code, string(body))

			if tc.code != 200 {
				return
			}

			var p page
			require.NoError(t, json.Unmarshal(body, &p))
			assert.Equal(t, tc.total, p.Total)
			assert.Len(t, p.Items, int(tc.total))
			assert.Equal(t, 1, p.Page)
		})
	}
}

func TestJobByID(t *testing.T) {
	s := newService(t)

	code, body := get(t, s, "/api/jobs/rs_1_abcdef01")
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), `"status":"pending"`)

	code, _ = get(t, s, "/api/jobs/missing")
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestLinksAndMappings(t *testing.T) {
	s := newService(t)

	code, body := get(t, s, "/api/links")
	require.Equal(t, fiber.StatusOK, code)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Len(t, rows, 1)

	code, body = get(t, s, "/api/links/main/mappings?enabled=true")
	require.Equal(t, fiber.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "20", rows[0]["target_role_id"])

	code, _ = get(t, s, "/api/links/nope/mappings")
	assert.Equal(t, fiber.StatusNotFound, code)

	code, _ = get(t, s, "/api/links/nope")
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestSnapshots(t *testing.T) {
	s := newService(t)

	code, body := get(t, s, "/api/snapshots?link_id=main")
	require.Equal(t, fiber.StatusOK, code)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "manual", rows[0]["name"])
	assert.NotContains(t, rows[0], "mapping_rows")
}

func TestMetrics(t *testing.T) {
	s := newService(t)

	code, body := get(t, s, "/metrics")
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), "go_goroutines")
}
