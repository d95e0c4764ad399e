package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tvinspection/tvinspect/internal/store"
	"github.com/tvinspection/tvinspect/pkg/client"
	"github.com/tvinspection/tvinspect/pkg/constants"
	"github.com/tvinspection/tvinspect/pkg/draft"
	"github.com/tvinspection/tvinspect/pkg/export"
	"github.com/tvinspection/tvinspect/pkg/listing"
	"github.com/tvinspection/tvinspect/pkg/schema"
	"github.com/tvinspection/tvinspect/pkg/validate"
)

// recentCount is how many forms the dashboard lists.
const recentCount = 5

func adminValue(rec schema.Record, field string) string {
	f, _ := schema.Lookup(schema.AdministrativeInfo, field)
	return export.Display(f, schema.SectionOf(rec, schema.AdministrativeInfo)[field])
}

func formDate(rec schema.Record, key string) string {
	s, _ := rec[key].(string)
	if t, ok := schema.ParseDate(s, time.Local); ok {
		return t.Format(schema.DateLayout)
	}
	return s
}

func printForms(w io.Writer, forms []schema.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBROADCASTER\tSTATION TYPE\tLOCATION\tCREATED")
	for _, f := range forms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			listing.ID(f),
			adminValue(f, "name_of_broadcaster"),
			adminValue(f, "station_type"),
			adminValue(f, "location"),
			formDate(f, "created_at"),
		)
	}
	return tw.Flush()
}

// printRecord writes every filled-in field, section by section.
func printRecord(w io.Writer, rec schema.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, section := range schema.Sections {
		fmt.Fprintf(tw, "\n%s\n", schema.SectionTitle(section))
		values := schema.SectionOf(rec, section)
		for _, f := range schema.SectionFields(section) {
			if v := export.Display(f, values[f.Name]); v != "" {
				fmt.Fprintf(tw, "  %s\t%s\n", f.Label, v)
			}
		}
	}
	fmt.Fprintf(tw, "\n%s\n", schema.SectionTitle(schema.Personnel))
	fields := schema.SectionFields(schema.Personnel)
	for i, p := range schema.PersonnelOf(rec) {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			if v := export.Display(f, p[f.Name]); v != "" {
				parts = append(parts, v)
			}
		}
		fmt.Fprintf(tw, "  #%d\t%s\n", i+1, strings.Join(parts, ", "))
	}
	return tw.Flush()
}

// printInvalid lists the failing fields of an invalid record.
func printInvalid(w io.Writer, err error) {
	var verr *validate.Error
	if !errors.As(err, &verr) {
		return
	}
	fmt.Fprintln(w, "Please fix the following errors:")
	for _, line := range validate.FormatErrors(verr.Report) {
		fmt.Fprintf(w, "  - %s\n", line)
	}
}

func (a *app) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show form totals and the latest forms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.authed()
			if err != nil {
				return err
			}

			var (
				health map[string]any
				forms  []schema.Record
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				// an unhealthy backend still lets the dashboard render
				h, err := api.Health(ctx)
				if err != nil {
					a.log.Debug().Err(err).Msg("health check failed")
					return nil
				}
				health = h
				return nil
			})
			g.Go(func() error {
				_, err := a.sess.LoadProfile(ctx, api)
				return err
			})
			g.Go(func() error {
				page, err := api.ListForms(ctx, client.ListParams{})
				if err != nil {
					return err
				}
				forms = page.Results
				return nil
			})
			if err := g.Wait(); err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}

			out := cmd.OutOrStdout()
			u, _ := a.sess.User()
			fmt.Fprintf(out, "%s\nWelcome, %s\n\n", constants.AppName, u.DisplayName())
			status := "unreachable"
			if s, ok := health["status"].(string); ok {
				status = s
			}
			stats := listing.Summarize(forms, time.Now())
			fmt.Fprintf(out, "Backend:     %s\n", status)
			fmt.Fprintf(out, "Total forms: %d\n", stats.Total)
			fmt.Fprintf(out, "This month:  %d\n\n", stats.ThisMonth)

			recent := listing.Recent(forms, recentCount)
			if len(recent) == 0 {
				fmt.Fprintln(out, "No inspection forms yet. Create one with `tvinspect add`.")
				return nil
			}
			fmt.Fprintln(out, "Recent forms:")
			return printForms(out, recent)
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var (
		params listing.Query
		page   int
		size   int
		sortBy string
		order  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inspection forms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.authed()
			if err != nil {
				return err
			}
			res, err := api.ListForms(cmd.Context(), client.ListParams{
				Search:      params.Search,
				StationType: params.StationType,
				Page:        page,
				PageSize:    size,
			})
			if err != nil {
				return err
			}
			// backends that ignore the query parameters are filtered here
			forms := listing.Filter(res.Results, params)
			if sortBy != "" {
				if err := listing.Sort(forms, listing.By(sortBy), listing.Order(order)); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if len(forms) == 0 {
				fmt.Fprintln(out, "No inspection forms found.")
				return nil
			}
			if err := printForms(out, forms); err != nil {
				return err
			}
			if res.Next != "" || res.Previous != "" {
				fmt.Fprintf(out, "\n%d forms in total\n", res.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&params.Search, "search", "s", "", "Search broadcaster, location or id")
	cmd.Flags().StringVar(&params.StationType, "station-type", "", "Only forms of this station type (RADIO_AM, RADIO_FM, TV)")
	cmd.Flags().IntVar(&page, "page", 0, "Page number")
	cmd.Flags().IntVar(&size, "page-size", 0, "Forms per page")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort by broadcaster, station_type, location, created_at or updated_at")
	cmd.Flags().StringVar(&order, "order", string(listing.Asc), "Sort order: asc or desc")
	return cmd
}

func (a *app) viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "Show one inspection form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.authed()
			if err != nil {
				return err
			}
			rec, err := api.GetForm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (Form %s)\n", constants.FormTitle, args[0], formDate(rec, "created_at"))
			completion := validate.Completion(rec)
			fmt.Fprintf(out, "Completion: %d%%\n", completion.Percentage)
			return printRecord(out, schema.MergeWithDefaults(rec))
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var (
		file    string
		draftID string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Submit a new inspection form",
		Long: `Submit a new inspection form from a JSON record or a stored draft.

The record is validated first; when it is invalid the failing fields are
listed and nothing is sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (draftID == "") {
				return errors.New("exactly one of --file or --draft is required")
			}
			api, err := a.authed()
			if err != nil {
				return err
			}

			var (
				d  *draft.Draft
				st *store.SQLiteStore
			)
			if draftID != "" {
				if st, d, err = a.loadDraft(cmd, draftID); err != nil {
					return err
				}
				defer st.Close()
			} else {
				rec, err := readRecord(file)
				if err != nil {
					return err
				}
				delete(rec, "id")
				d = draft.Hydrate(rec)
			}

			payload, err := d.Submission()
			if err != nil {
				printInvalid(cmd.OutOrStdout(), err)
				return err
			}
			var saved schema.Record
			if d.RemoteID() == "" {
				saved, err = api.CreateForm(cmd.Context(), payload)
			} else {
				saved, err = api.UpdateForm(cmd.Context(), d.RemoteID(), payload)
			}
			if err != nil {
				return err
			}
			id := listing.ID(saved)
			fmt.Fprintf(cmd.OutOrStdout(), "Saved form %s\n", id)

			if st != nil {
				d.SetRemoteID(id)
				d.MarkSaved()
				if err := st.Save(cmd.Context(), d); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON record to submit")
	cmd.Flags().StringVar(&draftID, "draft", "", "Stored draft to submit")
	return cmd
}

// parseSet splits "section.field=value" or "ca_personnel.N.field=value".
// index is -1 for flat sections.
func parseSet(s string) (section string, index int, field, value string, err error) {
	path, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", 0, "", "", fmt.Errorf("invalid --set %q, want section.field=value", s)
	}
	parts := strings.Split(path, ".")
	switch {
	case len(parts) == 2 && parts[0] != schema.Personnel:
		return parts[0], -1, parts[1], value, nil
	case len(parts) == 3 && parts[0] == schema.Personnel:
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 0 {
			return "", 0, "", "", fmt.Errorf("invalid personnel index in %q", s)
		}
		return parts[0], n, parts[2], value, nil
	}
	return "", 0, "", "", fmt.Errorf("invalid --set %q, want section.field=value", s)
}

// applySets writes the --set values into d. A personnel index one past the
// end adds an entry.
func applySets(w io.Writer, d *draft.Draft, sets []string) error {
	for _, s := range sets {
		section, index, field, value, err := parseSet(s)
		if err != nil {
			return err
		}
		var msg string
		if index < 0 {
			msg, err = d.Set(section, field, value)
		} else {
			if index == len(schema.PersonnelOf(d.Record())) {
				d.AddPersonnel()
			}
			msg, err = d.SetPersonnel(index, field, value)
		}
		if err != nil {
			return err
		}
		if msg != "" {
			fmt.Fprintf(w, "warning: %s: %s\n", strings.SplitN(s, "=", 2)[0], msg)
		}
	}
	return nil
}

func (a *app) editCmd() *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:     "edit <id>",
		Short:   "Change fields of an inspection form",
		Example: `  tvinspect edit 12 --set tower_info.tower_height=52 --set ca_personnel.0.name="Jane Doe"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sets) == 0 {
				return errors.New("nothing to change, use --set")
			}
			api, err := a.authed()
			if err != nil {
				return err
			}
			rec, err := api.GetForm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			d := draft.Hydrate(rec, draft.WithRemoteID(args[0]))
			if err := applySets(cmd.ErrOrStderr(), d, sets); err != nil {
				return err
			}
			payload, err := d.Submission()
			if err != nil {
				printInvalid(cmd.OutOrStdout(), err)
				return err
			}
			if _, err := api.UpdateForm(cmd.Context(), args[0], payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated form %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Field to change, as section.field=value")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an inspection form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.authed()
			if err != nil {
				return err
			}
			if err := api.DeleteForm(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted form %s\n", args[0])
			return nil
		},
	}
}

func (a *app) downloadCmd() *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the PDF or Excel rendition of a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.authed()
			if err != nil {
				return err
			}
			var dl *client.Download
			switch format {
			case "pdf":
				dl, err = api.DownloadPDF(cmd.Context(), args[0])
			case "excel", "xlsx":
				dl, err = api.DownloadExcel(cmd.Context(), args[0])
			default:
				return fmt.Errorf("unknown format %q, want pdf or excel", format)
			}
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path = filepath.Base(dl.Filename)
			}
			if err := os.WriteFile(path, dl.Data, 0o644); err != nil {
				return fmt.Errorf("failed to save download: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", path, len(dl.Data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf or excel")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (defaults to the server's file name)")
	return cmd
}

// loadDraft opens the store and reads one draft. The caller closes the
// store.
func (a *app) loadDraft(cmd *cobra.Command, raw string) (*store.SQLiteStore, *draft.Draft, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid draft id %q", raw)
	}
	st, err := a.openStore(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	d, err := st.Get(cmd.Context(), id)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, d, nil
}
