// Package configcsv imports mapping plans from CSV or XLSX files, previews them against
// the platform, applies them with a snapshot per link and rolls back from snapshots.
package configcsv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/controller/importjob"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/controller/mapping"
	"github.com/rolemirror/rolemirror/internal/db/controller/snapshot"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/platform"
)

var rowsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rolemirror",
	Subsystem: "plan",
	Name:      "rows_applied_total",
	Help:      "Plan rows processed by apply, by outcome.",
}, []string{"outcome"})

const (
	reasonPrefix       = "[RoleMirror] csv import"
	snapshotApplyName  = "csv_apply_"
	snapshotBackupName = "rollback_backup_before_"
	msgPreviewOK       = "preview passed"
)

// ImportResult summarizes a stored import.
type ImportResult struct {
	JobID       string     `json:"job_id"`
	TotalRows   int        `json:"total_rows"`
	ValidRows   int        `json:"valid_rows"`
	InvalidRows int        `json:"invalid_rows"`
	Errors      []RowError `json:"errors"`
}

// PreviewRow is the verdict on one plan row.
type PreviewRow struct {
	RowNumber            int      `json:"row_number"`
	Action               Action   `json:"action"`
	LinkID               string   `json:"link_id"`
	Valid                bool     `json:"valid"`
	Messages             []string `json:"messages"`
	ResolvedTargetRoleID string   `json:"resolved_target_role_id,omitempty"`
	WillCreateRole       bool     `json:"will_create_role"`
}

// PreviewSummary aggregates a preview run.
type PreviewSummary struct {
	TotalRows       int          `json:"total_rows"`
	BaseInvalidRows int          `json:"base_invalid_rows"`
	ValidRows       int          `json:"valid_rows"`
	InvalidRows     int          `json:"invalid_rows"`
	WillCreateRoles int          `json:"will_create_roles"`
	Upserts         int          `json:"upserts"`
	Disables        int          `json:"disables"`
	Deletes         int          `json:"deletes"`
	Rows            []PreviewRow `json:"rows"`
}

// RowFailure is a row that raised during apply.
type RowFailure struct {
	RowNumber int    `json:"row_number"`
	Error     string `json:"error"`
}

// SnapshotRef ties a link to the snapshot taken before it was changed.
type SnapshotRef struct {
	LinkID     string `json:"link_id"`
	SnapshotID string `json:"snapshot_id"`
}

// ApplyResult is stored on the import whether or not every row succeeded.
type ApplyResult struct {
	Applied        int           `json:"applied"`
	CreatedRoles   int           `json:"created_roles"`
	Upserted       int           `json:"upserted"`
	Disabled       int           `json:"disabled"`
	Deleted        int           `json:"deleted"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	Failures       []RowFailure  `json:"failures"`
	Snapshots      []SnapshotRef `json:"snapshots"`
	PositionErrors []string      `json:"position_errors,omitempty"`
}

// RollbackResult describes a restore.
type RollbackResult struct {
	LinkID           string `json:"link_id"`
	RestoredFrom     string `json:"restored_from"`
	RestoredRows     int    `json:"restored_rows"`
	BackupSnapshotID string `json:"backup_snapshot_id"`
}

// LinkExport holds the role listings of both groups of a link.
type LinkExport struct {
	Link      *models.SyncLink
	SourceCSV string
	TargetCSV string
}

// Service runs the plan lifecycle.
type Service struct {
	db     *gorm.DB
	client platform.Client
	now    func() time.Time
}

// New returns a plan service.
func New(db *gorm.DB, client platform.Client) *Service {
	return &Service{db: db, client: client, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now

	return s
}

func newImportID(now time.Time) string {
	return fmt.Sprintf("imp_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Import parses a plan file and stores it. Live mappings are not touched.
func (s *Service) Import(fileName string, data []byte, createdBy string) (*ImportResult, error) {
	parsed, err := Read(fileName, data)
	if err != nil {
		return nil, err
	}

	rows, err := json.Marshal(parsed.Rows)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode parsed rows")
	}

	errs, err := json.Marshal(parsed.Errors)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode row errors")
	}

	valid := len(parsed.Valid())

	j := &models.ConfigImportJob{
		JobID:       newImportID(s.now()),
		FileName:    fileName,
		Status:      models.ImportImported,
		ParsedRows:  string(rows),
		ValidRows:   valid,
		InvalidRows: len(parsed.Rows) - valid,
		Errors:      string(errs),
		CreatedBy:   createdBy,
	}

	if err = importjob.Create(s.db, j); err != nil {
		return nil, pkgerrors.Wrap(err, "store import")
	}

	log.Info().Str("job_id", j.JobID).Str("file", fileName).
		Int("rows", len(parsed.Rows)).Int("invalid", j.InvalidRows).Msg("plan imported")

	return &ImportResult{
		JobID:       j.JobID,
		TotalRows:   len(parsed.Rows),
		ValidRows:   j.ValidRows,
		InvalidRows: j.InvalidRows,
		Errors:      parsed.Errors,
	}, nil
}

// Job returns a stored import.
func (s *Service) Job(jobID string) (*models.ConfigImportJob, error) {
	return importjob.Get(s.db, jobID)
}

// Rows decodes the parsed rows and row errors of an import.
func Rows(j *models.ConfigImportJob) (Parsed, error) {
	var p Parsed

	if err := json.Unmarshal([]byte(j.ParsedRows), &p.Rows); err != nil {
		return p, pkgerrors.Wrapf(err, "decode rows of %s", j.JobID)
	}

	if j.Errors != "" {
		if err := json.Unmarshal([]byte(j.Errors), &p.Errors); err != nil {
			return p, pkgerrors.Wrapf(err, "decode errors of %s", j.JobID)
		}
	}

	return p, nil
}

// StoredPreview decodes the last preview of an import, nil when it was never previewed.
func StoredPreview(j *models.ConfigImportJob) (*PreviewSummary, error) {
	if j.PreviewSummary == nil {
		return nil, nil //nolint:nilnil
	}

	var p PreviewSummary
	if err := json.Unmarshal([]byte(*j.PreviewSummary), &p); err != nil {
		return nil, pkgerrors.Wrapf(err, "decode preview of %s", j.JobID)
	}

	return &p, nil
}

// StoredApplyResult decodes the apply result of an import, nil when it was never applied.
func StoredApplyResult(j *models.ConfigImportJob) (*ApplyResult, error) {
	if j.ApplyResult == nil {
		return nil, nil //nolint:nilnil
	}

	var r ApplyResult
	if err := json.Unmarshal([]byte(*j.ApplyResult), &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "decode apply result of %s", j.JobID)
	}

	return &r, nil
}

func encode(v any) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode")
	}

	out := string(b)

	return &out, nil
}

// groupProbe remembers which groups answered during one pass.
type groupProbe struct {
	client platform.Client
	seen   map[string]error
}

func (g *groupProbe) reachable(ctx context.Context, id string) bool {
	if err, ok := g.seen[id]; ok {
		return err == nil
	}

	_, err := g.client.FetchGroup(ctx, id)
	g.seen[id] = err

	return err == nil
}

// Preview checks every row against stored links and the platform. Only the import row changes.
func (s *Service) Preview(ctx context.Context, jobID string) (*PreviewSummary, error) {
	j, err := importjob.Get(s.db, jobID)
	if err != nil {
		return nil, err
	}

	if j.Status == models.ImportApplied {
		return nil, ErrAlreadyApplied
	}

	parsed, err := Rows(j)
	if err != nil {
		return nil, err
	}

	base := make(map[int][]string, len(parsed.Errors))
	for _, e := range parsed.Errors {
		base[e.RowNumber] = e.Errors
	}

	sum := &PreviewSummary{
		TotalRows:       len(parsed.Rows),
		BaseInvalidRows: j.InvalidRows,
		Rows:            make([]PreviewRow, 0, len(parsed.Rows)),
	}
	probe := &groupProbe{client: s.client, seen: map[string]error{}}

	for _, row := range parsed.Rows {
		pr := s.previewRow(ctx, probe, row, base[row.RowNumber])

		if pr.Valid {
			sum.ValidRows++

			if pr.WillCreateRole {
				sum.WillCreateRoles++
			}

			switch row.Action {
			case ActionUpsert:
				sum.Upserts++
			case ActionDisable:
				sum.Disables++
			case ActionDelete:
				sum.Deletes++
			}
		} else {
			sum.InvalidRows++
		}

		sum.Rows = append(sum.Rows, pr)
	}

	if j.PreviewSummary, err = encode(sum); err != nil {
		return nil, err
	}

	j.Status = models.ImportPreviewed

	if err = importjob.Save(s.db, j); err != nil {
		return nil, pkgerrors.Wrap(err, "store preview")
	}

	return sum, nil
}

func (s *Service) previewRow(ctx context.Context, probe *groupProbe, row Row, baseErrs []string) PreviewRow {
	pr := PreviewRow{
		RowNumber:            row.RowNumber,
		Action:               row.Action,
		LinkID:               row.LinkID,
		ResolvedTargetRoleID: row.TargetRoleID,
	}

	reject := func(msgs ...string) PreviewRow {
		pr.Messages = append(pr.Messages, msgs...)

		return pr
	}

	if len(baseErrs) > 0 {
		return reject(baseErrs...)
	}

	l, err := link.Get(s.db, row.LinkID)
	if err != nil {
		if errors.Is(err, link.ErrLinkNotFound) {
			return reject("link_id does not exist")
		}

		return reject(err.Error())
	}

	if l.SourceGroupID != row.SourceGroupID || l.TargetGroupID != row.TargetGroupID {
		return reject("source/target group does not match the link")
	}

	if !probe.reachable(ctx, row.SourceGroupID) {
		return reject("source group is unreachable")
	}

	if !probe.reachable(ctx, row.TargetGroupID) {
		return reject("target group is unreachable")
	}

	src, err := s.client.FetchRole(ctx, row.SourceGroupID, row.SourceRoleID)
	if err != nil {
		return reject("source_role_id does not exist in the source group")
	}

	if src.IsManaged() || src.IsImplicit() {
		return reject("source role is managed or the all-members role and cannot be mirrored")
	}

	var target *platform.Role
	if row.TargetRoleID != "" {
		target, _ = s.client.FetchRole(ctx, row.TargetGroupID, row.TargetRoleID)
	}

	if target == nil && row.Action == ActionUpsert {
		if !row.CreateIfMissing {
			return reject("target_role_id does not exist and create_if_missing is off")
		}

		pr.WillCreateRole = true
	}

	pr.Valid = true
	pr.Messages = append(pr.Messages, msgPreviewOK)

	return pr
}

type createdRole struct {
	groupID   string
	roleID    string
	rowNumber int
	position  int
}

// Apply executes the valid rows of an import. Row failures are collected, never fatal.
// The import ends applied when every row went through and failed otherwise.
func (s *Service) Apply(ctx context.Context, jobID, operator string) (*ApplyResult, error) {
	j, err := importjob.Get(s.db, jobID)
	if err != nil {
		return nil, err
	}

	if j.Status == models.ImportApplied {
		return nil, ErrAlreadyApplied
	}

	preview, err := StoredPreview(j)
	if err != nil {
		return nil, err
	}

	if preview == nil || j.Status == models.ImportImported {
		if preview, err = s.Preview(ctx, jobID); err != nil {
			return nil, err
		}

		if j, err = importjob.Get(s.db, jobID); err != nil {
			return nil, err
		}
	}

	parsed, err := Rows(j)
	if err != nil {
		return nil, err
	}

	byNumber := make(map[int]Row, len(parsed.Rows))
	for _, r := range parsed.Rows {
		byNumber[r.RowNumber] = r
	}

	var todo []Row

	for _, pr := range preview.Rows {
		if r, ok := byNumber[pr.RowNumber]; ok && pr.Valid {
			todo = append(todo, r)
		}
	}

	if len(todo) == 0 {
		return nil, ErrNoValidRows
	}

	res := &ApplyResult{Failures: []RowFailure{}, Snapshots: []SnapshotRef{}}
	snapped := map[string]bool{}

	var created []createdRole

	for _, row := range todo {
		if !snapped[row.LinkID] {
			ref, serr := s.snapshotLink(row.LinkID, snapshotApplyName+jobID, operator)
			if serr != nil {
				return nil, serr
			}

			snapped[row.LinkID] = true
			res.Snapshots = append(res.Snapshots, ref)
		}

		role, err := s.applyRow(ctx, row, res)
		if err != nil {
			res.Failed++
			res.Failures = append(res.Failures, RowFailure{RowNumber: row.RowNumber, Error: err.Error()})
			rowsApplied.WithLabelValues("failed").Inc()

			log.Warn().Err(err).Str("job_id", jobID).Int("row", row.RowNumber).Msg("plan row failed")

			continue
		}

		if role != nil {
			created = append(created, createdRole{
				groupID:   row.TargetGroupID,
				roleID:    role.ID,
				rowNumber: row.RowNumber,
				position:  row.TargetRolePosition,
			})
		}
	}

	res.PositionErrors = s.placeCreatedRoles(ctx, created)

	if j.ApplyResult, err = encode(res); err != nil {
		return nil, err
	}

	j.Status = models.ImportApplied
	if res.Failed > 0 {
		j.Status = models.ImportFailed
	}

	if err = importjob.Save(s.db, j); err != nil {
		return nil, pkgerrors.Wrap(err, "store apply result")
	}

	log.Info().Str("job_id", jobID).Str("status", string(j.Status)).
		Int("applied", res.Applied).Int("failed", res.Failed).Int("created_roles", res.CreatedRoles).
		Msg("plan applied")

	return res, nil
}

func (s *Service) snapshotLink(linkID, name, operator string) (SnapshotRef, error) {
	rows, err := mapping.ListByLink(s.db, linkID, false)
	if err != nil {
		return SnapshotRef{}, pkgerrors.Wrapf(err, "list mappings of %s", linkID)
	}

	id := linkID

	snap, err := snapshot.Create(s.db, &id, name, operator, rows)
	if err != nil {
		return SnapshotRef{}, pkgerrors.Wrapf(err, "snapshot %s", linkID)
	}

	return SnapshotRef{LinkID: linkID, SnapshotID: snap.SnapshotID}, nil
}

// applyRow performs one row and returns the role it created, if any.
func (s *Service) applyRow(ctx context.Context, row Row, res *ApplyResult) (*platform.Role, error) {
	src, err := s.client.FetchRole(ctx, row.SourceGroupID, row.SourceRoleID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "fetch source role")
	}

	target, isNew, err := s.ensureTargetRole(ctx, row, src)
	if err != nil {
		return nil, err
	}

	targetID := row.TargetRoleID
	if target != nil {
		targetID = target.ID
	}

	if targetID == "" {
		res.Skipped++
		rowsApplied.WithLabelValues("skipped").Inc()

		return nil, nil //nolint:nilnil
	}

	if isNew {
		res.CreatedRoles++
	}

	switch IntentOf(row).(type) {
	case DeleteIntent:
		err = mapping.Delete(s.db, row.LinkID, row.SourceRoleID, targetID)
		if errors.Is(err, mapping.ErrMappingNotFound) {
			err = nil
		}

		if err == nil {
			res.Deleted++
		}
	case DisableIntent:
		if _, err = mapping.Upsert(s.db, row.Mapping(targetID, false)); err == nil {
			res.Disabled++
		}
	default:
		if _, err = mapping.Upsert(s.db, row.Mapping(targetID, row.Enabled)); err == nil {
			res.Upserted++
		}
	}

	if err != nil {
		return nil, pkgerrors.Wrap(err, "write mapping")
	}

	res.Applied++
	rowsApplied.WithLabelValues(string(row.Action)).Inc()

	if isNew {
		return target, nil
	}

	return nil, nil //nolint:nilnil
}

// ensureTargetRole resolves the row's target role, creating it when the row allows.
// A missing role that may not be created yields nil.
func (s *Service) ensureTargetRole(ctx context.Context, row Row, src *platform.Role) (*platform.Role, bool, error) {
	if row.TargetRoleID != "" {
		r, err := s.client.FetchRole(ctx, row.TargetGroupID, row.TargetRoleID)
		if err == nil {
			return r, false, nil
		}

		if !platform.IsNotFound(err) {
			return nil, false, pkgerrors.Wrap(err, "fetch target role")
		}
	}

	if !row.CreateIfMissing || row.Action != ActionUpsert {
		return nil, false, nil
	}

	spec := platform.RoleSpec{
		Name:        row.TargetRoleNameIfCreate,
		Permissions: createPermissions(src.Permissions, row.CopyPermissionsMode),
	}
	if spec.Name == "" {
		spec.Name = src.Name
	}

	if row.CopyVisual {
		spec.Color = src.Color
		spec.Hoist = src.Hoist
		spec.Mentionable = src.Mentionable
	}

	reason := fmt.Sprintf("%s link=%s source_role=%s", reasonPrefix, row.LinkID, row.SourceRoleID)

	r, err := s.client.CreateRole(ctx, row.TargetGroupID, spec, reason)
	if err != nil {
		return nil, false, pkgerrors.Wrap(err, "create target role")
	}

	return r, true, nil
}

func createPermissions(bits int64, mode models.CopyPermissionsMode) int64 {
	switch mode {
	case models.CopyPermissionsStrict:
		return bits
	case models.CopyPermissionsSafe:
		return bits & platform.SafePermissions
	default:
		return 0
	}
}

// placeCreatedRoles positions new roles per target group. The first role with an explicit
// position anchors the group; the others follow in file order, earlier rows higher.
func (s *Service) placeCreatedRoles(ctx context.Context, created []createdRole) []string {
	byGroup := map[string][]createdRole{}

	var order []string

	for _, c := range created {
		if _, ok := byGroup[c.groupID]; !ok {
			order = append(order, c.groupID)
		}

		byGroup[c.groupID] = append(byGroup[c.groupID], c)
	}

	var errs []string

	for _, groupID := range order {
		entries := byGroup[groupID]
		slices.SortFunc(entries, func(a, b createdRole) int { return a.rowNumber - b.rowNumber })

		anchor := slices.IndexFunc(entries, func(c createdRole) bool { return c.position >= 0 })
		if anchor < 0 {
			continue
		}

		var moves []platform.RolePosition

		for i, e := range entries {
			if pos := entries[anchor].position - (i - anchor); pos >= 1 {
				moves = append(moves, platform.RolePosition{RoleID: e.roleID, Position: pos})
			}
		}

		if len(moves) == 0 {
			continue
		}

		if err := s.client.SetRolePositions(ctx, groupID, moves, reasonPrefix+" positions"); err != nil {
			log.Warn().Err(err).Str("group_id", groupID).Msg("placing created roles failed")
			errs = append(errs, fmt.Sprintf("group %s: %v", groupID, err))
		}
	}

	return errs
}

// Snapshots lists stored snapshots, newest first.
func (s *Service) Snapshots(linkID string, limit int) ([]models.ConfigSnapshot, error) {
	return snapshot.List(s.db, linkID, limit)
}

// Rollback restores the mapping set of a snapshot's link after backing up the current one.
func (s *Service) Rollback(snapshotID, operator string) (*RollbackResult, error) {
	snap, err := snapshot.Get(s.db, snapshotID)
	if err != nil {
		return nil, err
	}

	if snap.LinkID == nil || *snap.LinkID == "" {
		return nil, ErrNoBackup
	}

	rows, err := snapshot.Rows(snap)
	if err != nil {
		return nil, err
	}

	linkID := *snap.LinkID

	backup, err := s.snapshotLink(linkID, snapshotBackupName+snapshotID, operator)
	if err != nil {
		return nil, err
	}

	if err = mapping.ReplaceForLink(s.db, linkID, rows); err != nil {
		return nil, pkgerrors.Wrapf(err, "restore %s", linkID)
	}

	log.Info().Str("link_id", linkID).Str("snapshot_id", snapshotID).
		Str("backup", backup.SnapshotID).Int("rows", len(rows)).Msg("mappings rolled back")

	return &RollbackResult{
		LinkID:           linkID,
		RestoredFrom:     snapshotID,
		RestoredRows:     len(rows),
		BackupSnapshotID: backup.SnapshotID,
	}, nil
}
