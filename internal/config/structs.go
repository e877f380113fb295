package config

import (
	"github.com/rolemirror/rolemirror/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	Discord   Discord
	Worker    Worker
	Reconcile Reconcile
	Bootstrap Bootstrap
	Links     []Link
}

// Webserver implements the read-only status API settings.
type Webserver struct {
	Enabled      bool   // start the status API with the daemon
	Port         int    // listening port for the webserver
	ShutDownTime int    // wait time for shutdown in seconds
	MetricsPath  string // path serving prometheus metrics
}

// Discord holds the chat platform credentials.
type Discord struct {
	Token                string // bot token without the "Bot " prefix
	LogLevel             string // discordgo library log level
	GroupCacheSize       int
	GroupCacheTTLSeconds int
}

// Worker holds the sync queue worker settings. All durations are milliseconds.
type Worker struct {
	IntervalMS            int // worker tick
	BatchSize             int // total jobs per tick
	FastBatchSize         int // fast lane quota per tick
	NormalBatchSize       int // normal lane quota per tick
	MaxAttempts           int // nominal attempt budget of a job
	NetworkMaxAttempts    int // attempt budget for transient network failures
	BackoffBaseMS         int
	BackoffCapMS          int
	NetworkPenaltyMS      int
	MarkTTLMS             int // operation mark lifetime
	MaintenanceIntervalMS int
	ProcessingLeaseMS     int // processing jobs untouched this long are requeued
	LogRetentionDays      int
}

// Reconcile holds reconciliation settings. All durations are milliseconds.
type Reconcile struct {
	AutoEnabled           bool
	AutoIntervalMS        int
	AutoMaxMembersPerLink int
	FullBatchSize         int
	MemberDelayMS         int
	BatchDelayMS          int
}

// Bootstrap holds bulk presence bootstrap settings.
type Bootstrap struct {
	PageSize    int
	PageDelayMS int
}

// Link is a statically configured sync link written to the store at startup.
type Link struct {
	LinkID                string
	SourceGroupID         string
	TargetGroupID         string
	Enabled               *bool
	DefaultConflictPolicy string
}

// IsEnabled reports whether the link should be enabled, defaulting to true.
func (l Link) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}
