package app

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rolemirror/rolemirror/internal/db/controller/link"
	"github.com/rolemirror/rolemirror/internal/db/controller/mapping"
	"github.com/rolemirror/rolemirror/internal/db/models"
)

type mappingFlags struct {
	SourceRole  string `validate:"required,numeric"`
	TargetRole  string `validate:"required,numeric"`
	Mode        string `validate:"omitempty,oneof=bidirectional source_to_target target_to_source disabled"`
	Policy      string `validate:"omitempty,oneof=source_of_truth_main bidirectional_main_priority manual_only bidirectional_latest"`
	Permissions string `validate:"omitempty,oneof=none safe strict"`
	MaxDelay    int    `validate:"gte=0"`
	RoleType    string
	CopyVisual  bool
	Disabled    bool
	Note        string `validate:"max=500"`
}

func (f mappingFlags) mapping(linkID string) models.RoleMapping {
	m := models.RoleMapping{
		LinkID:              linkID,
		SourceRoleID:        f.SourceRole,
		TargetRoleID:        f.TargetRole,
		Enabled:             !f.Disabled,
		SyncMode:            models.SyncMode(f.Mode),
		MaxDelaySeconds:     f.MaxDelay,
		RoleType:            f.RoleType,
		CopyVisual:          f.CopyVisual,
		CopyPermissionsMode: models.CopyPermissionsMode(f.Permissions),
		Note:                f.Note,
	}

	if f.Policy != "" {
		p := models.ConflictPolicy(f.Policy)
		m.ConflictPolicy = &p
	}

	return m
}

var (
	mappingOpts    mappingFlags
	onlyEnabled    bool
	mappingEnabled bool

	mappingCmd = &cobra.Command{
		Use:   "mapping",
		Short: "Manage the role mappings of a link",
	}

	mappingListCmd = &cobra.Command{
		Use:   "list <link_id>",
		Short: "List the mappings of a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			rows, err := mapping.ListByLink(store, args[0], onlyEnabled)
			if err != nil {
				return err
			}

			return out(cmd, rows)
		},
	}

	mappingUpsertCmd = &cobra.Command{
		Use:   "upsert <link_id>",
		Short: "Create or overwrite a mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Struct(mappingOpts); err != nil {
				return err //nolint:wrapcheck
			}

			store, err := openStore()
			if err != nil {
				return err
			}

			if _, err = link.Get(store, args[0]); err != nil {
				return err
			}

			m, err := mapping.Upsert(store, mappingOpts.mapping(args[0]))
			if err != nil {
				return err
			}

			return out(cmd, m)
		},
	}

	mappingDeleteCmd = &cobra.Command{
		Use:   "delete <link_id> <source_role_id> <target_role_id>",
		Short: "Delete a mapping",
		Args:  cobra.ExactArgs(3), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			if err = mapping.Delete(store, args[0], args[1], args[2]); err != nil {
				return err
			}

			return out(cmd, map[string]any{"deleted": true})
		},
	}

	mappingToggleCmd = &cobra.Command{
		Use:   "toggle <mapping_id>",
		Short: "Enable or disable a mapping by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errors.Wrap(err, "mapping id")
			}

			store, err := openStore()
			if err != nil {
				return err
			}

			if err = mapping.SetEnabled(store, id, mappingEnabled); err != nil {
				return err
			}

			return out(cmd, map[string]any{"id": id, "enabled": mappingEnabled})
		},
	}
)

func init() { //nolint: gochecknoinits
	mappingListCmd.Flags().BoolVar(&onlyEnabled, "enabled", false, "only enabled mappings")
	mappingToggleCmd.Flags().BoolVar(&mappingEnabled, "enabled", true, "new enabled state")

	f := mappingUpsertCmd.Flags()
	f.StringVar(&mappingOpts.SourceRole, "source-role", "", "source role id")
	f.StringVar(&mappingOpts.TargetRole, "target-role", "", "target role id")
	f.StringVar(&mappingOpts.Mode, "mode", "", "sync mode, defaults to source_to_target")
	f.StringVar(&mappingOpts.Policy, "policy", "", "conflict policy overriding the link default")
	f.StringVar(&mappingOpts.Permissions, "permissions", "", "copy permissions mode: none, safe or strict")
	f.IntVar(&mappingOpts.MaxDelay, "max-delay", 120, "tolerated propagation delay in seconds") //nolint:mnd
	f.StringVar(&mappingOpts.RoleType, "role-type", "", "free form role category")
	f.BoolVar(&mappingOpts.CopyVisual, "copy-visual", false, "copy color and display settings on creation")
	f.BoolVar(&mappingOpts.Disabled, "disabled", false, "store the mapping disabled")
	f.StringVar(&mappingOpts.Note, "note", "", "operator note")

	mappingCmd.AddCommand(mappingListCmd, mappingUpsertCmd, mappingDeleteCmd, mappingToggleCmd)
	rootCmd.AddCommand(mappingCmd)
}
