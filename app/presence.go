package app

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rolemirror/rolemirror/internal/roster"
)

var (
	bootstrapSide        string
	bootstrapGroupID     string
	bootstrapMax         int
	bootstrapMarkMissing bool

	presenceCmd = &cobra.Command{
		Use:   "presence",
		Short: "Maintain the member presence table",
	}

	presenceBootstrapCmd = &cobra.Command{
		Use:   "bootstrap [link_id]",
		Short: "Load the member lists of a link's groups, or of one group with --group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (bootstrapGroupID == "") {
				return errors.New("pass either a link id or --group")
			}

			side, err := roster.ParseSide(bootstrapSide)
			if err != nil {
				return err
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			opts := roster.BootstrapOptions{
				Side:                side,
				MaxMembers:          bootstrapMax,
				MarkMissingInactive: bootstrapMarkMissing,
				Progress: func(p roster.BootstrapProgress) {
					log.Info().
						Str("group_id", p.GroupID).
						Int("group", p.GroupIndex).
						Int("groups", p.TotalGroups).
						Int("scanned", p.Scanned).
						Int("pages", p.Pages).
						Msg("bootstrap progress")
				},
			}

			if bootstrapGroupID != "" {
				res, err := s.Roster.BootstrapGroup(cmd.Context(), bootstrapGroupID, opts)
				if err != nil {
					return err
				}

				return out(cmd, res)
			}

			res, err := s.Roster.Bootstrap(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}

			return out(cmd, res)
		},
	}
)

func init() { //nolint: gochecknoinits
	f := presenceBootstrapCmd.Flags()
	f.StringVar(&bootstrapSide, "side", "both", "source, target or both")
	f.StringVar(&bootstrapGroupID, "group", "", "bootstrap a single group instead of a link")
	f.IntVar(&bootstrapMax, "max", 0, "members read per group, 0 reads all")
	f.BoolVar(&bootstrapMarkMissing, "mark-missing", false, "deactivate members not seen, needs a full read")

	presenceCmd.AddCommand(presenceBootstrapCmd)
	rootCmd.AddCommand(presenceCmd)
}
