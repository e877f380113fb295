package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/controller/presence"
	"github.com/rolemirror/rolemirror/internal/db/controller/setting"
)

// CursorSettingPrefix prefixes the persisted auto reconcile cursor of every link.
const CursorSettingPrefix = "reconcile.cursor."

// AutoLink sums up one link of an auto reconcile pass.
type AutoLink struct {
	LinkID        string `json:"link_id"`
	TotalEligible int64  `json:"total_eligible"`
	Scanned       int    `json:"scanned"`
	Planned       int    `json:"planned"`
	Failed        int    `json:"failed"`
	Cursor        int    `json:"cursor"`
	Skipped       bool   `json:"skipped"`
	Reason        string `json:"reason,omitempty"`
}

// AutoResult is the outcome of AutoOnce. Skipped is set when a pass was already running.
type AutoResult struct {
	Skipped bool       `json:"skipped"`
	Links   []AutoLink `json:"links"`
}

// AutoOnce reconciles a small window of every enabled link and advances the stored cursors.
func (s *Service) AutoOnce(ctx context.Context) (AutoResult, error) {
	if !s.autoRunning.CompareAndSwap(false, true) {
		return AutoResult{Skipped: true}, nil
	}
	defer s.autoRunning.Store(false)

	db := s.db.WithContext(ctx)

	links, err := link.ListEnabled(db)
	if err != nil {
		return AutoResult{}, pkgerrors.Wrap(err, "list links")
	}

	res := AutoResult{Links: make([]AutoLink, 0, len(links))}

	for _, l := range links {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		total, err := presence.CountEligible(db, l.SourceGroupID, l.TargetGroupID)
		if err != nil {
			return res, pkgerrors.Wrap(err, "count eligible")
		}

		if total == 0 {
			res.Links = append(res.Links, AutoLink{LinkID: l.LinkID, Skipped: true, Reason: "no eligible members"})
			continue
		}

		offset, err := s.Cursor(ctx, l.LinkID)
		if err != nil {
			return res, err
		}

		if int64(offset) >= total {
			offset = 0
		}

		b, err := s.Batch(ctx, l.LinkID, offset, s.cfg.AutoMaxMembersPerLink, ReasonAuto, nil)
		if err != nil {
			log.Error().Err(err).Str("link_id", l.LinkID).Msg("auto reconcile batch")

			res.Links = append(res.Links, AutoLink{LinkID: l.LinkID, TotalEligible: total, Cursor: offset, Skipped: true, Reason: err.Error()})

			continue
		}

		next := b.NextOffset
		if int64(next) >= total {
			next = 0
		}

		if err = setting.SetJSON(db, CursorSettingPrefix+l.LinkID, next); err != nil {
			return res, pkgerrors.Wrap(err, "store cursor")
		}

		res.Links = append(res.Links, AutoLink{
			LinkID:        l.LinkID,
			TotalEligible: total,
			Scanned:       b.Scanned,
			Planned:       b.Planned,
			Failed:        b.Failed,
			Cursor:        next,
		})
	}

	return res, nil
}

// Cursor returns the stored auto reconcile offset of a link, 0 when none was stored.
func (s *Service) Cursor(ctx context.Context, linkID string) (int, error) {
	var offset int

	err := setting.GetJSON(s.db.WithContext(ctx), CursorSettingPrefix+linkID, &offset)
	if err != nil && !errors.Is(err, setting.ErrSettingNotFound) {
		return 0, pkgerrors.Wrap(err, "load cursor")
	}

	return max(0, offset), nil
}

// AutoStatus describes the auto reconcile configuration and cursors.
type AutoStatus struct {
	Enabled           bool           `json:"enabled"`
	Running           bool           `json:"running"`
	IntervalMS        int            `json:"interval_ms"`
	MaxMembersPerLink int            `json:"max_members_per_link"`
	Cursors           map[string]int `json:"cursors"`
}

// AutoStatus reports the auto reconcile state.
func (s *Service) AutoStatus(ctx context.Context) (AutoStatus, error) {
	st := AutoStatus{
		Enabled:           s.cfg.AutoEnabled,
		Running:           s.autoRunning.Load(),
		IntervalMS:        s.cfg.AutoIntervalMS,
		MaxMembersPerLink: s.cfg.AutoMaxMembersPerLink,
		Cursors:           map[string]int{},
	}

	rows, err := setting.ListPrefix(s.db.WithContext(ctx), CursorSettingPrefix)
	if err != nil {
		return st, pkgerrors.Wrap(err, "list cursors")
	}

	for _, r := range rows {
		var offset int
		if err := json.Unmarshal(r.Value, &offset); err == nil {
			st.Cursors[strings.TrimPrefix(r.Name, CursorSettingPrefix)] = offset
		}
	}

	return st, nil
}
