package app

import (
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals

type linkFlags struct {
	Source   string `validate:"required,numeric"`
	Target   string `validate:"required,numeric,nefield=Source"`
	Policy   string `validate:"omitempty,oneof=source_of_truth_main bidirectional_main_priority manual_only bidirectional_latest"`
	Disabled bool
}

var (
	linkOpts linkFlags

	linkCmd = &cobra.Command{
		Use:   "link",
		Short: "Manage sync links between a source and a target group",
	}

	linkListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			links, err := link.List(store)
			if err != nil {
				return err
			}

			return out(cmd, links)
		},
	}

	linkUpsertCmd = &cobra.Command{
		Use:   "upsert <link_id>",
		Short: "Create or update a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Struct(linkOpts); err != nil {
				return err //nolint:wrapcheck
			}

			store, err := openStore()
			if err != nil {
				return err
			}

			l, err := link.Upsert(store, models.SyncLink{
				LinkID:                args[0],
				SourceGroupID:         linkOpts.Source,
				TargetGroupID:         linkOpts.Target,
				Enabled:               !linkOpts.Disabled,
				DefaultConflictPolicy: models.ConflictPolicy(linkOpts.Policy),
			})
			if err != nil {
				return err
			}

			return out(cmd, l)
		},
	}
)

func setLinkEnabled(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		if err = link.SetEnabled(store, args[0], enabled); err != nil {
			return err
		}

		l, err := link.Get(store, args[0])
		if err != nil {
			return err
		}

		return out(cmd, l)
	}
}

func init() { //nolint: gochecknoinits
	f := linkUpsertCmd.Flags()
	f.StringVar(&linkOpts.Source, "source", "", "source group id")
	f.StringVar(&linkOpts.Target, "target", "", "target group id")
	f.StringVar(&linkOpts.Policy, "policy", "", "default conflict policy")
	f.BoolVar(&linkOpts.Disabled, "disabled", false, "store the link disabled")

	linkCmd.AddCommand(
		linkListCmd,
		linkUpsertCmd,
		&cobra.Command{
			Use:   "enable <link_id>",
			Short: "Enable a link",
			Args:  cobra.ExactArgs(1),
			RunE:  setLinkEnabled(true),
		},
		&cobra.Command{
			Use:   "disable <link_id>",
			Short: "Disable a link",
			Args:  cobra.ExactArgs(1),
			RunE:  setLinkEnabled(false),
		},
	)

	rootCmd.AddCommand(linkCmd)
}
