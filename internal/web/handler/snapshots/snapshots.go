// Package snapshots lists stored mapping snapshots.
package snapshots

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/snapshot"
	"github.com/rolemirror/rolemirror/internal/web/handler"
)

// Path is the snapshot listing.
const Path = handler.APIPath + "snapshots"

const defaultLimit = 20

// Query filters the listing.
type Query struct {
	LinkID string `query:"link_id" validate:"omitempty,max=64"`
	Limit  int    `query:"limit"   validate:"omitempty,min=1,max=200"`
}

// Service is the snapshot handler service.
type Service struct {
	handler.Service
	db *gorm.DB
}

// Handler is the snapshot handler.
var Handler = Service{}

// Init registers the route.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.db = db

	app.Get(Path, s.List)
}

// List returns the newest snapshots without their rows.
func (s *Service) List(c *fiber.Ctx) error {
	q := Query{Limit: defaultLimit}
	if ok, err := handler.ParseQuery(c, &q); !ok {
		return err
	}

	rows, err := snapshot.List(s.db.WithContext(c.UserContext()), q.LinkID, q.Limit)
	if err != nil {
		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(rows)
}
