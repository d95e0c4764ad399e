package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tvinspection/tvinspect/pkg/draft"
	"github.com/tvinspection/tvinspect/pkg/validate"
)

func (a *app) draftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Manage locally stored drafts",
	}
	cmd.AddCommand(a.draftsListCmd(), a.draftsSaveCmd(), a.draftsShowCmd(), a.draftsDeleteCmd())
	return cmd
}

func (a *app) draftsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored drafts, most recently changed first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			drafts, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(drafts) == 0 {
				fmt.Fprintln(out, "No drafts.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DRAFT\tFORM\tBROADCASTER\tUPDATED")
			for _, d := range drafts {
				remote := d.RemoteID
				if remote == "" {
					remote = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, remote, d.Broadcaster, d.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func (a *app) draftsSaveCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Store a JSON record as a new draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(file)
			if err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			d := draft.Hydrate(rec)
			if err := st.Save(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved draft %s\n", d.ID())
			if report := d.Validate(); !report.IsValid() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d field(s) still need attention\n", report.Count())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON record")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) draftsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored draft and what is left to fill in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, d, err := a.loadDraft(cmd, args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Draft %s\n", d.ID())
			if d.RemoteID() != "" {
				fmt.Fprintf(out, "Form: %s\n", d.RemoteID())
			}
			fmt.Fprintf(out, "Completion: %d%%\n", d.Completion().Percentage)
			if err := printRecord(out, d.Record()); err != nil {
				return err
			}
			if report := d.Validate(); !report.IsValid() {
				fmt.Fprintln(out)
				printInvalid(out, &validate.Error{Report: report})
			}
			return nil
		},
	}
}

func (a *app) draftsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, d, err := a.loadDraft(cmd, args[0])
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Delete(cmd.Context(), d.ID()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted draft %s\n", d.ID())
			return nil
		},
	}
}
