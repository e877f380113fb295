// Package config handles input from etc/*.toml files
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// EnvConfigJSON names the environment variable holding a JSON config override.
const EnvConfigJSON = "ROLEMIRROR_CONFIG_JSON"

const (
	defaultShutDownTime          = 5
	defaultMetricsPath           = "/metrics"
	defaultWorkerIntervalMS      = 3000
	defaultWorkerBatchSize       = 20
	defaultMinLaneBatchSize      = 5
	defaultMaxAttempts           = 3
	defaultNetworkMaxAttempts    = 5
	defaultBackoffBaseMS         = 5000
	defaultBackoffCapMS          = 5 * 60 * 1000
	defaultNetworkPenaltyMS      = 3000
	defaultMarkTTLMS             = 30000
	defaultMaintenanceIntervalMS = 10 * 60 * 1000
	defaultProcessingLeaseMS     = 10 * 60 * 1000
	defaultLogRetentionDays      = 90
	defaultAutoIntervalMS        = 15 * 60 * 1000
	defaultAutoMaxMembers        = 20
	defaultFullBatchSize         = 50
	defaultMemberDelayMS         = 200
	defaultBatchDelayMS          = 2000
	defaultBootstrapPageSize     = 1000
	defaultBootstrapPageDelayMS  = 200
	defaultGroupCacheSize        = 256
	defaultGroupCacheTTLSeconds  = 300
)

// ReadConfig from config file.
func ReadConfig(path string) (Config, error) {
	var (
		c             Config
		JSONConfigEnv string
		err           error
	)

	// Read main configuration
	if path == "" {
		path = "./etc/"
	}

	if _, err = toml.DecodeFile(path+"main.toml", &c); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	// override it from env
	JSONConfigEnv = os.Getenv(EnvConfigJSON)
	if JSONConfigEnv != "" {
		c, err = decodeAndMergeConfig(c, JSONConfigEnv)
		if err != nil {
			return c, err
		}
	}

	return c, validate(&c)
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read json config override")
	}

	return c, nil
}

// DumpConfig config as TOML String.
func DumpConfig(c *Config) (string, error) {
	var buffer bytes.Buffer

	t := toml.NewEncoder(&buffer)
	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer

	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validate rejects unusable settings and fills defaults for everything left at zero.
func validate(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Enabled && c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = defaultShutDownTime
	}

	if c.Webserver.MetricsPath == "" {
		c.Webserver.MetricsPath = defaultMetricsPath
	}

	c.DB.GormEngine = strings.ToLower(strings.TrimSpace(c.DB.GormEngine))
	if c.DB.GormEngine == "" {
		c.DB.GormEngine = GormEngineSQLite
	}

	switch c.DB.GormEngine {
	case GormEngineSQLite, GormEngineMySQL, GormEnginePostgres:
	default:
		return errors.Wrap(ErrUnknownGormEngine, invalidErrMessage)
	}

	if c.DB.Name == "" {
		return errors.Wrap(ErrEmptyDBName, invalidErrMessage)
	}

	if err := validateWorker(&c.Worker); err != nil {
		return errors.Wrap(err, invalidErrMessage)
	}

	validateReconcile(&c.Reconcile)

	if c.Discord.GroupCacheSize <= 0 {
		c.Discord.GroupCacheSize = defaultGroupCacheSize
	}

	if c.Discord.GroupCacheTTLSeconds <= 0 {
		c.Discord.GroupCacheTTLSeconds = defaultGroupCacheTTLSeconds
	}

	if c.Bootstrap.PageSize <= 0 {
		c.Bootstrap.PageSize = defaultBootstrapPageSize
	}

	if c.Bootstrap.PageDelayMS == 0 {
		c.Bootstrap.PageDelayMS = defaultBootstrapPageDelayMS
	}

	for _, l := range c.Links {
		if strings.TrimSpace(l.LinkID) == "" || strings.TrimSpace(l.SourceGroupID) == "" ||
			strings.TrimSpace(l.TargetGroupID) == "" {
			return errors.Wrap(ErrInvalidLink, invalidErrMessage)
		}
	}

	return nil
}

func validateWorker(w *Worker) error {
	if w.BatchSize < 0 || w.FastBatchSize < 0 || w.NormalBatchSize < 0 {
		return ErrInvalidWorkerQuota
	}

	if w.IntervalMS <= 0 {
		w.IntervalMS = defaultWorkerIntervalMS
	}

	if w.BatchSize == 0 {
		w.BatchSize = defaultWorkerBatchSize
	}

	// fast lane gets ~70% of the tick, normal lane may fill the rest
	if w.FastBatchSize == 0 {
		w.FastBatchSize = max(defaultMinLaneBatchSize, w.BatchSize*7/10) //nolint:mnd
	}

	if w.NormalBatchSize == 0 {
		w.NormalBatchSize = max(defaultMinLaneBatchSize, w.BatchSize)
	}

	if w.MaxAttempts <= 0 {
		w.MaxAttempts = defaultMaxAttempts
	}

	// network failures never get fewer attempts than the default allows
	w.NetworkMaxAttempts = max(defaultNetworkMaxAttempts, w.NetworkMaxAttempts)

	if w.BackoffBaseMS <= 0 {
		w.BackoffBaseMS = defaultBackoffBaseMS
	}

	if w.BackoffCapMS <= 0 {
		w.BackoffCapMS = defaultBackoffCapMS
	}

	if w.NetworkPenaltyMS == 0 {
		w.NetworkPenaltyMS = defaultNetworkPenaltyMS
	}

	if w.MarkTTLMS <= 0 {
		w.MarkTTLMS = defaultMarkTTLMS
	}

	if w.MaintenanceIntervalMS <= 0 {
		w.MaintenanceIntervalMS = defaultMaintenanceIntervalMS
	}

	if w.ProcessingLeaseMS <= 0 {
		w.ProcessingLeaseMS = defaultProcessingLeaseMS
	}

	if w.LogRetentionDays <= 0 {
		w.LogRetentionDays = defaultLogRetentionDays
	}

	return nil
}

func validateReconcile(r *Reconcile) {
	if r.AutoIntervalMS <= 0 {
		r.AutoIntervalMS = defaultAutoIntervalMS
	}

	if r.AutoMaxMembersPerLink <= 0 {
		r.AutoMaxMembersPerLink = defaultAutoMaxMembers
	}

	if r.FullBatchSize <= 0 {
		r.FullBatchSize = defaultFullBatchSize
	}

	if r.MemberDelayMS == 0 {
		r.MemberDelayMS = defaultMemberDelayMS
	}

	if r.BatchDelayMS == 0 {
		r.BatchDelayMS = defaultBatchDelayMS
	}
}
