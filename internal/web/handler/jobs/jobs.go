// Package jobs serves the sync job queue.
package jobs

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/job"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/web/handler"
)

// Path is the job listing.
const Path = handler.APIPath + "jobs"

// Query filters the listing.
type Query struct {
	handler.Paging
	Status string `query:"status"  validate:"omitempty,oneof=pending processing completed failed cancelled"`
	Lane   string `query:"lane"    validate:"omitempty,oneof=fast normal"`
	LinkID string `query:"link_id" validate:"omitempty,max=64"`
	UserID string `query:"user_id" validate:"omitempty,numeric"`
}

// Service is the job handler service.
type Service struct {
	handler.Service
	db *gorm.DB
}

// Handler is the job handler.
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
}

// List pages jobs, newest first.
func (s *Service) List(c *fiber.Ctx) error {
	var q Query
	if ok, err := handler.ParseQuery(c, &q); !ok {
		return err
	}

	page, size := q.Bounds()

	rows, total, err := job.List(s.db.WithContext(c.UserContext()), job.Filter{
		Status:   models.JobStatus(q.Status),
		Lane:     models.Lane(q.Lane),
		LinkID:   q.LinkID,
		UserID:   q.UserID,
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(handler.Page{Items: rows, Total: total, Page: page, PageSize: size})
}

// Get returns one job by its public id.
func (s *Service) Get(c *fiber.Ctx) error {
	j, err := job.Get(s.db.WithContext(c.UserContext()), c.Params("id"))

	switch {
	case errors.Is(err, job.ErrJobNotFound):
		return handler.Fail(c, fiber.StatusNotFound, err)
	case err != nil:
		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(j)
}
