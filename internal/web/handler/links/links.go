// Package links serves sync links and their role mappings.
package links

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/controller/mapping"
	"github.com/rolemirror/rolemirror/internal/web/handler"
)

// Path is the link listing.
const Path = handler.APIPath + "links"

// MappingQuery filters the mappings of a link.
type MappingQuery struct {
	Enabled bool `query:"enabled"`
}

// Service is the link handler service.
type Service struct {
	handler.Service
	db *gorm.DB
}

// Handler is the link handler.
var Handler = Service{}

// Init registers the routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.db = db

	app.Get(Path, s.List)
	app.Get(Path+"/:id", s.Get)
	app.Get(Path+"/:id/mappings", s.Mappings)
}

// List returns every link.
func (s *Service) List(c *fiber.Ctx) error {
	rows, err := link.List(s.db.WithContext(c.UserContext()))
	if err != nil {
		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(rows)
}

// Get returns one link.
func (s *Service) Get(c *fiber.Ctx) error {
	l, err := link.Get(s.db.WithContext(c.UserContext()), c.Params("id"))

	switch {
	case errors.Is(err, link.ErrLinkNotFound):
		return handler.Fail(c, fiber.StatusNotFound, err)
	case err != nil:
		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(l)
}

// Mappings returns the role mappings of a link; ?enabled=true keeps only enabled ones.
func (s *Service) Mappings(c *fiber.Ctx) error {
	var q MappingQuery
	if ok, err := handler.ParseQuery(c, &q); !ok {
		return err
	}

	db := s.db.WithContext(c.UserContext())

	if _, err := link.Get(db, c.Params("id")); err != nil {
		if errors.Is(err, link.ErrLinkNotFound) {
			return handler.Fail(c, fiber.StatusNotFound, err)
		}

		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	rows, err := mapping.ListByLink(db, c.Params("id"), q.Enabled)
	if err != nil {
		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(rows)
}
