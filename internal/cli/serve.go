package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tvinspection/tvinspect/internal/server"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		listen   string
		readOnly bool
		autoSave string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local validation and drafts service",
		Long: `Run the local companion service. It validates records, keeps drafts,
submits them to the backend with the stored login and serves the live
validation socket at /api/live.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, _, err := a.client()
			if err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			cfg := server.Config{Addr: a.cfg.Listen, ReadOnly: readOnly}
			if listen != "" {
				cfg.Addr = listen
			}
			if autoSave != "" {
				if cfg.AutoSaveInterval, err = parseInterval(autoSave); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", cfg.Addr)
			return server.New(cfg, st, api, a.log).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (defaults to the config file)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Reject draft changes and submissions")
	cmd.Flags().StringVar(&autoSave, "auto-save", "", `Auto-save interval for live edits, "off" to disable`)
	return cmd
}
