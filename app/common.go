package app

import (
	"encoding/json"
	"io"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/config"
	"github.com/rolemirror/rolemirror/internal/daemon"
	"github.com/rolemirror/rolemirror/internal/db"
	"github.com/rolemirror/rolemirror/internal/logger"
)

var cfg config.Config

func loadConfig() error {
	var err error

	if cfg, err = config.ReadConfig(configPath); err != nil {
		return err
	}

	return logger.Init(cfg.Log)
}

// openStore reads the configuration and opens the migrated database.
func openStore() (*gorm.DB, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}

	return db.Open(&cfg)
}

// session is the REST only Discord session of a one-shot command.
type session struct {
	*daemon.Services
	discord *discordgo.Session
}

func (s *session) Close() {
	_ = s.discord.Close()

	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// openSession opens the store and a Discord REST client for commands that touch the platform.
func openSession() (*session, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	dg, client, err := daemon.Connect(&cfg)
	if err != nil {
		return nil, err
	}

	return &session{Services: daemon.NewServices(&cfg, store, client), discord: dg}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v) //nolint:wrapcheck
}

func out(cmd *cobra.Command, v any) error {
	return printJSON(cmd.OutOrStdout(), v)
}
