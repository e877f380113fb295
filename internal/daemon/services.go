package daemon

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/configcsv"
	"github.com/rolemirror/rolemirror/internal/discord"
	"github.com/rolemirror/rolemirror/internal/eligibility"
	"github.com/rolemirror/rolemirror/internal/planner"
	"github.com/rolemirror/rolemirror/internal/platform"
	"github.com/rolemirror/rolemirror/internal/reconcile"
	"github.com/rolemirror/rolemirror/internal/roster"
	"github.com/rolemirror/rolemirror/internal/worker"
)

// Services bundles the sync engine. The daemon and the one-shot commands share it.
type Services struct {
	DB          *gorm.DB
	Client      platform.Client
	Eligibility *eligibility.Service
	Planner     *planner.Planner
	Worker      *worker.Worker
	Reconciler  *reconcile.Service
	Roster      *roster.Service
	Plans       *configcsv.Service
}

// NewServices builds every service on top of db and client.
func NewServices(cfg *config.Config, db *gorm.DB, client platform.Client) *Services {
	elig := eligibility.New(db, client)
	maxAttempts := cfg.Worker.MaxAttempts

	return &Services{
		DB:          db,
		Client:      client,
		Eligibility: elig,
		Planner:     planner.New(db, maxAttempts),
		Worker:      worker.New(db, client, elig, cfg.Worker),
		Reconciler:  reconcile.New(db, client, cfg.Reconcile, maxAttempts),
		Roster:      roster.New(db, client, cfg.Bootstrap),
		Plans:       configcsv.New(db, client),
	}
}

// Connect creates the Discord session and the platform client stack on top of it.
// The gateway is not opened, REST calls work without it.
func Connect(cfg *config.Config) (*discordgo.Session, platform.Client, error) {
	s, err := discord.NewSession(cfg.Discord.Token, cfg.Discord.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	ttl := time.Duration(cfg.Discord.GroupCacheTTLSeconds) * time.Second
	client := platform.WithGroupCache(
		platform.WithRetry(discord.New(s), platform.DefaultRetryPolicy),
		cfg.Discord.GroupCacheSize,
		ttl,
	)

	return s, client, nil
}
