package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tvinspection/tvinspect/pkg/export"
	"github.com/tvinspection/tvinspect/pkg/normalize"
	"github.com/tvinspection/tvinspect/pkg/validate"
)

func (a *app) validateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a JSON record without submitting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(file)
			if err != nil {
				return err
			}
			report := validate.ValidateRecord(rec)
			if !report.IsValid() {
				err := &validate.Error{Report: report}
				printInvalid(cmd.OutOrStdout(), err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Record is valid")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON record")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) normalizeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Print a JSON record with typed values, as it would be submitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(file)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), normalize.Normalize(rec))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON record")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) completionCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "completion",
		Short: "Show how much of a JSON record is filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(file)
			if err != nil {
				return err
			}
			st := validate.Completion(rec)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Completion: %d%%\n", st.Percentage)
			fmt.Fprintf(out, "Required:   %d/%d\n", st.RequiredCompleted, st.RequiredTotal)
			fmt.Fprintf(out, "Optional:   %d/%d\n", st.OptionalCompleted, st.OptionalTotal)
			if len(st.MissingRequired) > 0 {
				fmt.Fprintln(out, "Missing required fields:")
				for _, path := range st.MissingRequired {
					fmt.Fprintf(out, "  - %s\n", path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON record")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var file, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the Excel rendition of a JSON record locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(file)
			if err != nil {
				return err
			}
			if err := export.Save(out, rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON record")
	cmd.Flags().StringVarP(&out, "out", "o", "inspection_form.xlsx", "Output path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// sniffLen is how much of a file http.DetectContentType looks at.
const sniffLen = 512

func (a *app) checkFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-file <path>",
		Short: "Check that a file can be attached to a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			head := make([]byte, sniffLen)
			n, err := io.ReadFull(f, head)
			if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
				return err
			}
			contentType := http.DetectContentType(head[:n])
			if err := validate.CheckFile(filepath.Base(args[0]), info.Size(), contentType); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s can be attached (%s, %d bytes)\n", filepath.Base(args[0]), contentType, info.Size())
			return nil
		},
	}
}

// parseInterval reads a positive duration, or "off" as a negative one.
func parseInterval(s string) (time.Duration, error) {
	if s == "off" {
		return -1, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}
