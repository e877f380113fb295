// Package app implements the main application commands.
package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string // directory holding main.toml

	rootCmd = &cobra.Command{
		Use:   "rolemirror",
		Short: "RoleMirror mirrors role membership between Discord communities",
		Long: `RoleMirror mirrors role membership between linked Discord communities.
It plans role changes from gateway events, executes them through a persistent
job queue and reconciles drift. The commands below manage links, mappings and
CSV configuration plans, and run one-shot reconciles.`,
		Args:          cobra.OnlyValidArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./etc/", "directory holding main.toml")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}
