package configcsv

import (
	"bytes"
	"context"
	"encoding/csv"
	"slices"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/platform"
)

// ExportColumns is the header of a role listing.
var ExportColumns = []string{
	"guild_id", "role_id", "role_name", "position", "color",
	"hoist", "mentionable", "permissions", "is_managed", "is_everyone",
}

// ExportGroupRoles renders the roles of a group as CSV, highest position first.
func (s *Service) ExportGroupRoles(ctx context.Context, groupID string) (string, error) {
	roles, err := s.client.ListRoles(ctx, groupID)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "list roles of %s", groupID)
	}

	slices.SortStableFunc(roles, func(a, b platform.Role) int { return b.Position - a.Position })

	var buf bytes.Buffer

	w := csv.NewWriter(&buf)
	_ = w.Write(ExportColumns)

	for _, r := range roles {
		_ = w.Write([]string{
			groupID,
			r.ID,
			r.Name,
			strconv.Itoa(r.Position),
			strconv.Itoa(r.Color),
			strconv.FormatBool(r.Hoist),
			strconv.FormatBool(r.Mentionable),
			strconv.FormatInt(r.Permissions, 10),
			strconv.FormatBool(r.IsManaged()),
			strconv.FormatBool(r.IsImplicit()),
		})
	}

	w.Flush()

	if err = w.Error(); err != nil {
		return "", pkgerrors.Wrap(err, "write role csv")
	}

	return buf.String(), nil
}

// ExportLinkRoles renders the role listings of both groups of a link.
func (s *Service) ExportLinkRoles(ctx context.Context, linkID string) (*LinkExport, error) {
	l, err := link.Get(s.db, linkID)
	if err != nil {
		return nil, err
	}

	out := &LinkExport{Link: l}

	if out.SourceCSV, err = s.ExportGroupRoles(ctx, l.SourceGroupID); err != nil {
		return nil, err
	}

	if out.TargetCSV, err = s.ExportGroupRoles(ctx, l.TargetGroupID); err != nil {
		return nil, err
	}

	return out, nil
}
