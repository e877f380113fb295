// Package overview serves the runtime status of the service.
package overview

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/status"
	"github.com/rolemirror/rolemirror/internal/web/handler"
)

// Path is the status endpoint.
const Path = handler.APIPath + "status"

// Service is the status handler service.
type Service struct {
	db   *gorm.DB
	rec  status.Reconciler
	boot status.Bootstrapper
}

// Handler is the status handler.
var Handler = Service{}

// Init registers the route. rec and boot may be nil.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, rec status.Reconciler, boot status.Bootstrapper) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.db = db
	s.rec = rec
	s.boot = boot

	app.Get(Path, s.Get)
}

// Get returns the overview.
func (s *Service) Get(c *fiber.Ctx) error {
	o, err := status.Collect(c.UserContext(), s.db, s.rec, s.boot)
	if err != nil {
		log.Error().Err(err).Msg("collecting status failed")

		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(o)
}
