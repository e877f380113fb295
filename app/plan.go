package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rolemirror/rolemirror/internal/configcsv"
)

var (
	planOperator string
	planOutDir   string
	planGroupID  string

	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Import, preview and apply CSV or XLSX mapping plans",
	}

	planImportCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Parse and store a plan file without touching any mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read plan")
			}

			store, err := openStore()
			if err != nil {
				return err
			}

			res, err := configcsv.New(store, nil).Import(filepath.Base(args[0]), data, planOperator)
			if err != nil {
				return err
			}

			return out(cmd, res)
		},
	}

	planShowCmd = &cobra.Command{
		Use:   "show <import_id>",
		Short: "Show an import with its stored preview and apply result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			j, err := configcsv.New(store, nil).Job(args[0])
			if err != nil {
				return err
			}

			preview, err := configcsv.StoredPreview(j)
			if err != nil {
				return err
			}

			applied, err := configcsv.StoredApplyResult(j)
			if err != nil {
				return err
			}

			return out(cmd, map[string]any{
				"import_id":  j.JobID,
				"file_name":  j.FileName,
				"status":     j.Status,
				"created_by": j.CreatedBy,
				"preview":    preview,
				"apply":      applied,
			})
		},
	}

	planPreviewCmd = &cobra.Command{
		Use:   "preview <import_id>",
		Short: "Check every row against the store and the platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Plans.Preview(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return out(cmd, res)
		},
	}

	planApplyCmd = &cobra.Command{
		Use:   "apply <import_id>",
		Short: "Apply the valid rows of an import, creating missing target roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Plans.Apply(cmd.Context(), args[0], planOperator)
			if err != nil {
				return err
			}

			return out(cmd, res)
		},
	}

	planExportCmd = &cobra.Command{
		Use:   "export [link_id]",
		Short: "Export the roles of both groups of a link, or of one group, as CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (planGroupID == "") {
				return errors.New("pass either a link id or --group")
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if planGroupID != "" {
				text, err := s.Plans.ExportGroupRoles(cmd.Context(), planGroupID)
				if err != nil {
					return err
				}

				return emit(cmd, planGroupID+"_roles.csv", text)
			}

			exp, err := s.Plans.ExportLinkRoles(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if err = emit(cmd, exp.Link.LinkID+"_source_roles.csv", exp.SourceCSV); err != nil {
				return err
			}

			return emit(cmd, exp.Link.LinkID+"_target_roles.csv", exp.TargetCSV)
		},
	}
)

// emit writes text below --out, or to stdout when no directory is given.
func emit(cmd *cobra.Command, name, text string) error {
	if planOutDir == "" {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", name, text)
		return err //nolint:wrapcheck
	}

	p := filepath.Join(planOutDir, name)
	if err := os.WriteFile(p, []byte(text), 0o600); err != nil { //nolint:mnd
		return errors.Wrap(err, "write export")
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), p)

	return err //nolint:wrapcheck
}

func init() { //nolint: gochecknoinits
	for _, c := range []*cobra.Command{planImportCmd, planApplyCmd} {
		c.Flags().StringVar(&planOperator, "by", "cli", "operator recorded on the import and its snapshots")
	}

	planExportCmd.Flags().StringVar(&planOutDir, "out", "", "directory receiving the csv files")
	planExportCmd.Flags().StringVar(&planGroupID, "group", "", "export a single group instead of a link")

	planCmd.AddCommand(planImportCmd, planShowCmd, planPreviewCmd, planApplyCmd, planExportCmd)
	rootCmd.AddCommand(planCmd)
}
