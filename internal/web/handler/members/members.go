// Package members serves the member presence table.
package members

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/presence"
	"github.com/rolemirror/rolemirror/internal/web/handler"
)

// Path is the presence listing.
const Path = handler.APIPath + "presence"

// Query filters the listing. Active is "true", "false" or empty for both.
type Query struct {
	handler.Paging
	GroupID string `query:"group_id" validate:"omitempty,numeric"`
	UserID  string `query:"user_id"  validate:"omitempty,numeric"`
	Active  string `query:"active"   validate:"omitempty,oneof=true false"`
}

// Service is the presence handler service.
type Service struct {
	handler.Service
	db *gorm.DB
}

// Handler is the presence handler.
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

// List pages presence rows.
func (s *Service) List(c *fiber.Ctx) error {
	var q Query
	if ok, err := handler.ParseQuery(c, &q); !ok {
		return err
	}

	page, size := q.Bounds()
	f := presence.Filter{GroupID: q.GroupID, UserID: q.UserID, Page: page, PageSize: size}

	if q.Active != "" {
		active := q.Active == "true"
		f.Active = &active
	}

	rows, total, err := presence.List(s.db.WithContext(c.UserContext()), f)
	if err != nil {
		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(handler.Page{Items: rows, Total: total, Page: page, PageSize: size})
}
