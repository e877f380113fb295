// Package web serves the read-only status API and prometheus metrics.
package web

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/logger/adapter/fiberlog"
	"github.com/rolemirror/rolemirror/internal/status"
	"github.com/rolemirror/rolemirror/internal/web/handler"
	"github.com/rolemirror/rolemirror/internal/web/handler/jobs"
	"github.com/rolemirror/rolemirror/internal/web/handler/links"
	"github.com/rolemirror/rolemirror/internal/web/handler/logs"
	"github.com/rolemirror/rolemirror/internal/web/handler/members"
	"github.com/rolemirror/rolemirror/internal/web/handler/overview"
	"github.com/rolemirror/rolemirror/internal/web/handler/snapshots"
)

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
	db           *gorm.DB
}

// Deps are the live services the status endpoint reports on. Both may be nil.
type Deps struct {
	Reconciler   status.Reconciler
	Bootstrapper status.Bootstrapper
}

// Start starts the web service on the given address and blocks until it stops.
func (s *Service) Start(addr string) error {
	if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err //nolint:wrapcheck
	}

	return nil
}

// Alive reports whether checkalive answers OK.
func (s *Service) Alive() bool {
	return s.alive.Load()
}

// Shutdown drains the load balancer, then stops the http server.
func (s *Service) Shutdown() {
	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	log.Info().Msg("stopping http server ...")

	if err := s.App.Shutdown(); err != nil {
		log.Error().Err(err).Msg("")
	}

	log.Info().Msg("http server was stopped")
}

// New creates a new web service with the given configuration.
func New(cfg *config.Config, db *gorm.DB, deps Deps) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if db == nil {
		panic("db cannot be nil")
	}

	// create fiber app
	app := fiber.New(
		fiber.Config{
			ReadBufferSize:        8192,
			AppName:               cfg.Title,
			CaseSensitive:         true,
			Prefork:               false,
			Immutable:             true,
			DisableStartupMessage: !cfg.DevMode,
		},
	)

	app.Use(recover.New())
	app.Use(fiberlog.New(fiberlog.Config{Log: cfg.Log, CheckAliveURI: handler.CheckAlivePath}))

	service := &Service{
		cfg:          cfg,
		App:          app,
		db:           db,
		fastShutDown: cfg.DevMode,
	}
	service.alive.Store(true)

	app.Get(handler.CheckAlivePath, func(c *fiber.Ctx) error {
		if !service.alive.Load() {
			return c.Status(fiber.StatusServiceUnavailable).SendString("shutting down")
		}

		return c.SendString("OK")
	})

	app.Get(cfg.Webserver.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))

	overview.Handler.Init(app, cfg, db, deps.Reconciler, deps.Bootstrapper)
	jobs.Handler.Init(app, cfg, db)
	logs.Handler.Init(app, cfg, db)
	links.Handler.Init(app, cfg, db)
	snapshots.Handler.Init(app, cfg, db)
	members.Handler.Init(app, cfg, db)

	return service
}
