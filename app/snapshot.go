package app

import (
	"github.com/spf13/cobra"

	"github.com/rolemirror/rolemirror/internal/configcsv"
)

var (
	snapshotLinkID   string
	snapshotLimit    int
	snapshotOperator string

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "List and restore mapping snapshots",
	}

	snapshotListCmd = &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			rows, err := configcsv.New(store, nil).Snapshots(snapshotLinkID, snapshotLimit)
			if err != nil {
				return err
			}

			return out(cmd, rows)
		},
	}

	snapshotRollbackCmd = &cobra.Command{
		Use:   "rollback <snapshot_id>",
		Short: "Restore the mappings of a snapshot's link, backing up the current set first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			res, err := configcsv.New(store, nil).Rollback(args[0], snapshotOperator)
			if err != nil {
				return err
			}

			return out(cmd, res)
		},
	}
)

func init() { //nolint: gochecknoinits
	snapshotListCmd.Flags().StringVar(&snapshotLinkID, "link", "", "only snapshots of this link")
	snapshotListCmd.Flags().IntVar(&snapshotLimit, "limit", 20, "maximum number of snapshots") //nolint:mnd
	snapshotRollbackCmd.Flags().StringVar(&snapshotOperator, "by", "cli", "operator recorded on the backup snapshot")

	snapshotCmd.AddCommand(snapshotListCmd, snapshotRollbackCmd)
	rootCmd.AddCommand(snapshotCmd)
}
