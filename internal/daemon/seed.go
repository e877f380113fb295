package daemon

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/group"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/platform"
)

// SeedLinks writes the statically configured links to the store.
func SeedLinks(db *gorm.DB, links []config.Link) error {
	for _, l := range links {
		_, err := link.Upsert(db, models.SyncLink{
			LinkID:                l.LinkID,
			SourceGroupID:         l.SourceGroupID,
			TargetGroupID:         l.TargetGroupID,
			Enabled:               l.IsEnabled(),
			DefaultConflictPolicy: models.ConflictPolicy(l.DefaultConflictPolicy),
		})
		if err != nil {
			return pkgerrors.Wrapf(err, "seed link %q", l.LinkID)
		}
	}

	return nil
}

// WarmGroups fetches both groups of every enabled link and records them.
// Source groups are flagged primary. Unreachable groups are logged and skipped.
func WarmGroups(ctx context.Context, db *gorm.DB, client platform.Client) (int, error) {
	links, err := link.ListEnabled(db)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "list links")
	}

	warmed := 0
	seen := map[string]bool{}

	for _, l := range links {
		for _, side := range []struct {
			id      string
			primary bool
		}{{l.SourceGroupID, true}, {l.TargetGroupID, false}} {
			if seen[side.id] && !side.primary {
				continue
			}

			g, err := client.FetchGroup(ctx, side.id)
			if err != nil {
				log.Warn().Err(err).Str("link_id", l.LinkID).Str("group_id", side.id).Msg("group warm-up failed")
				continue
			}

			if _, err = group.Upsert(db, g.ID, g.Name, side.primary); err != nil {
				return warmed, pkgerrors.Wrap(err, "store group")
			}

			if !seen[side.id] {
				warmed++
			}

			seen[side.id] = true
		}
	}

	return warmed, nil
}
