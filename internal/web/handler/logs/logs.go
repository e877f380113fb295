// Package logs serves the role change audit log.
package logs

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db/controller/changelog"
	"github.com/rolemirror/rolemirror/internal/db/models"
	"github.com/rolemirror/rolemirror/internal/web/handler"
)

// Path is the audit log listing.
const Path = handler.APIPath + "logs"

// Query filters the audit log. From and To are RFC 3339 timestamps.
type Query struct {
	handler.Paging
	UserID string `query:"user_id" validate:"omitempty,max=32"`
	LinkID string `query:"link_id" validate:"omitempty,max=64"`
	Result string `query:"result"  validate:"omitempty,oneof=success failed skipped noop planned"`
	Action string `query:"action"  validate:"omitempty,max=32"`
	From   string `query:"from"    validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To     string `query:"to"      validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}

	return &t
}

// Service is the audit log handler service.
type Service struct {
	handler.Service
	db *gorm.DB
}

// Handler is the audit log handler.
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

// List pages audit entries, newest first.
func (s *Service) List(c *fiber.Ctx) error {
	var q Query
	if ok, err := handler.ParseQuery(c, &q); !ok {
		return err
	}

	page, size := q.Bounds()

	rows, total, err := changelog.Query(s.db.WithContext(c.UserContext()), changelog.Filter{
		UserID:   q.UserID,
		LinkID:   q.LinkID,
		Result:   models.LogResult(q.Result),
		Action:   q.Action,
		From:     parseTime(q.From),
		To:       parseTime(q.To),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return handler.Fail(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(handler.Page{Items: rows, Total: total, Page: page, PageSize: size})
}
