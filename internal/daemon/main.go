// Package daemon wires the sync engine to the Discord gateway, the periodic tasks and the status API.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/db"
	"github.com/rolemirror/rolemirror/internal/discord"
	"github.com/rolemirror/rolemirror/internal/scheduler"
	"github.com/rolemirror/rolemirror/internal/web"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	session    *discordgo.Session
	services   *Services
	webService *web.Service
	tasks      []*scheduler.Task
}

// New opens the store, creates the Discord session and builds every service.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil, nil
	}

	store, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}

	session, client, err := Connect(cfg)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		session:  session,
		services: NewServices(cfg, store, client),
	}

	if cfg.Webserver.Enabled {
		d.webService = web.New(cfg, store, web.Deps{
			Reconciler:   d.services.Reconciler,
			Bootstrapper: d.services.Roster,
		})
	}

	d.tasks = d.buildTasks()

	return d, nil
}

func (d *Daemon) buildTasks() []*scheduler.Task {
	w := d.cfg.Worker

	tasks := []*scheduler.Task{
		scheduler.New("worker", time.Duration(w.IntervalMS)*time.Millisecond, d.services.Worker.Tick),
		scheduler.New("maintenance", time.Duration(w.MaintenanceIntervalMS)*time.Millisecond,
			d.services.Worker.Maintenance, scheduler.RunImmediately()),
	}

	if r := d.cfg.Reconcile; r.AutoEnabled {
		tasks = append(tasks, scheduler.New("auto_reconcile", time.Duration(r.AutoIntervalMS)*time.Millisecond,
			func(ctx context.Context) error {
				res, err := d.services.Reconciler.AutoOnce(ctx)
				if err == nil && !res.Skipped {
					log.Debug().Int("links", len(res.Links)).Msg("auto reconcile pass done")
				}

				return err
			}))
	}

	return tasks
}

// Run runs the daemon until ctx is done or the status API fails.
func (d *Daemon) Run(ctx context.Context) error {
	s := d.services

	if err := SeedLinks(s.DB, d.cfg.Links); err != nil {
		return err
	}

	removeHandlers := discord.NewHandlers(ctx, s.DB, s.Planner, s.Roster).Register(d.session)
	defer removeHandlers()

	if err := d.session.Open(); err != nil {
		return pkgerrors.Wrap(err, "open discord gateway")
	}

	warmed, err := WarmGroups(ctx, s.DB, s.Client)
	if err != nil {
		log.Error().Err(err).Msg("group warm-up")
	}

	log.Info().Int("groups", warmed).Int("links", len(d.cfg.Links)).Msg("rolemirror started")

	for _, t := range d.tasks {
		t.Start(ctx)
	}

	webErr := make(chan error, 1)

	if d.webService != nil {
		go func() {
			webErr <- d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err = <-webErr:
		if err != nil {
			log.Error().Err(err).Msg("status api stopped")
		}
	}

	d.shutdown()

	return err
}

func (d *Daemon) shutdown() {
	if d.webService != nil {
		d.webService.Shutdown()
	}

	for _, t := range d.tasks {
		t.Stop()
	}

	d.services.Reconciler.StopAll()
	d.services.Roster.StopAll()

	if err := d.session.Close(); err != nil {
		log.Error().Err(err).Msg("close discord session")
	}

	if sqlDB, err := d.services.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("rolemirror stopped")
}
