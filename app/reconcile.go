package app

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rolemirror/rolemirror/internal/reconcile"
)

var (
	reconcileOffset    int
	reconcileMax       int
	reconcileBatchSize int

	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Compare both sides of a link and plan the missing role changes",
	}

	reconcileMemberCmd = &cobra.Command{
		Use:   "member <link_id> <user_id>",
		Short: "Reconcile one user",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Reconciler.Member(cmd.Context(), args[0], args[1], reconcile.ReasonManual)
			if err != nil {
				return err
			}

			return out(cmd, res)
		},
	}

	reconcileBatchCmd = &cobra.Command{
		Use:   "batch <link_id>",
		Short: "Reconcile one window of users active in both groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Reconciler.Batch(cmd.Context(), args[0], reconcileOffset, reconcileMax, "", logProgress(args[0]))
			if err != nil {
				return err
			}

			return out(cmd, res)
		},
	}

	reconcileFullCmd = &cobra.Command{
		Use:   "full <link_id>",
		Short: "Walk every user active in both groups; interrupt to stop at the next member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Reconciler.Full(cmd.Context(), args[0], reconcile.FullOptions{
				Offset:    reconcileOffset,
				BatchSize: reconcileBatchSize,
				Progress:  logProgress(args[0]),
			})
			if err != nil {
				return err
			}

			return out(cmd, res)
		},
	}

	reconcileAutoCmd = &cobra.Command{
		Use:   "auto",
		Short: "Run one auto reconcile pass over every enabled link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Reconciler.AutoOnce(cmd.Context())
			if err != nil {
				return err
			}

			return out(cmd, res)
		},
	}
)

func logProgress(linkID string) func(reconcile.Progress) {
	return func(p reconcile.Progress) {
		log.Info().
			Str("link_id", linkID).
			Int64("total", p.TotalEligible).
			Int("processed", p.Processed).
			Int("planned", p.Planned).
			Int("failed", p.Failed).
			Int("offset", p.Offset).
			Msg("reconcile progress")
	}
}

func init() { //nolint: gochecknoinits
	reconcileBatchCmd.Flags().IntVar(&reconcileOffset, "offset", 0, "first intersection index")
	reconcileBatchCmd.Flags().IntVar(&reconcileMax, "max", 0, "users in the window, 0 uses the default")
	reconcileFullCmd.Flags().IntVar(&reconcileOffset, "offset", 0, "resume from this intersection index")
	reconcileFullCmd.Flags().IntVar(&reconcileBatchSize, "batch-size", 0, "users per window, 0 uses the configuration")

	reconcileCmd.AddCommand(reconcileMemberCmd, reconcileBatchCmd, reconcileFullCmd, reconcileAutoCmd)
	rootCmd.AddCommand(reconcileCmd)
}
