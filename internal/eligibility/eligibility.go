// Package eligibility confirms that a user is still a member of a group before the worker touches them.
package eligibility

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/controller/presence"
	"github.com/rolemirror/rolemirror/internal/platform"
)

// Service checks membership live and writes the result back to the presence table.
type Service struct {
	db     *gorm.DB
	client platform.Client
	now    func() time.Time
}

// New creates the service. client should already retry transient reads.
func New(db *gorm.DB, client platform.Client) *Service {
	return &Service{db: db, client: client, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now

	return s
}

// Check reports whether userID is a member of groupID.
// "Not a member" is a false result, never an error. A transport failure is an error,
// except when the user is already known to have left: then it counts as not eligible.
func (s *Service) Check(ctx context.Context, groupID, userID string) (bool, error) {
	db := s.db.WithContext(ctx)

	local, err := presence.Get(db, groupID, userID)
	if err != nil && !errors.Is(err, presence.ErrPresenceNotFound) {
		return false, pkgerrors.Wrap(err, "load presence")
	}

	knownGone := local != nil && !local.IsActive

	member, err := s.client.FetchMember(ctx, groupID, userID)

	switch {
	case err == nil:
		if _, err = presence.MarkActive(db, groupID, userID, platform.WithoutImplicit(groupID, member.RoleIDs), s.now()); err != nil {
			return false, pkgerrors.Wrap(err, "store presence")
		}

		return true, nil
	case platform.IsNotFound(err):
		if _, err = presence.MarkInactive(db, groupID, userID, s.now()); err != nil {
			return false, pkgerrors.Wrap(err, "store presence")
		}

		return false, nil
	case knownGone:
		log.Warn().Err(err).Str("group_id", groupID).Str("user_id", userID).
			Msg("live recheck of departed member failed, treating as not eligible")

		return false, nil
	default:
		return false, pkgerrors.Wrap(err, "live membership check")
	}
}
