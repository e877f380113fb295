package app

import (
	"github.com/spf13/cobra"

	"github.com/rolemirror/rolemirror/internal/reconcile"
	"github.com/rolemirror/rolemirror/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print links, queue depth, recent imports and auto reconcile cursors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		// no platform calls are made, the reconciler only reads its cursors here
		rec := reconcile.New(store, nil, cfg.Reconcile, cfg.Worker.MaxAttempts)

		o, err := status.Collect(cmd.Context(), store, rec, nil)
		if err != nil {
			return err
		}

		return out(cmd, o)
	},
}

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(statusCmd)
}
