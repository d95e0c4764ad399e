// Package cli implements the tvinspect command line: one command per page
// of the inspection application, plus local tools that work without the
// backend.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tvinspection/tvinspect/internal/config"
	"github.com/tvinspection/tvinspect/internal/store"
	"github.com/tvinspection/tvinspect/pkg/client"
	"github.com/tvinspection/tvinspect/pkg/logger"
	"github.com/tvinspection/tvinspect/pkg/schema"
	"github.com/tvinspection/tvinspect/pkg/session"
)

var errNotLoggedIn = errors.New("not logged in: run `tvinspect login` first")

// app carries what the commands of one invocation share. Expensive parts
// are built on first use.
type app struct {
	configPath string
	apiURL     string
	verbose    bool

	cfg     *config.Config
	logData *logger.LogData
	log     zerolog.Logger

	sess *session.Session
	api  *client.Client
}

// Main runs the command line with args, writing to the process streams.
func Main(ctx context.Context, args []string) error {
	return Run(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// Run runs the command line with explicit streams.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{log: zerolog.Nop()}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tvinspect",
		Short: "FM & TV tower inspection reports",
		Long: `tvinspect fills in, validates and submits FM & TV inspection forms.

Forms live on the inspection backend; drafts are kept locally until they
are submitted. Run "tvinspect serve" for the live validation service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "Config file")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "Backend API URL (overrides the config file)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		a.loginCmd(),
		a.registerCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.dashboardCmd(),
		a.listCmd(),
		a.viewCmd(),
		a.addCmd(),
		a.editCmd(),
		a.deleteCmd(),
		a.downloadCmd(),
		a.validateCmd(),
		a.normalizeCmd(),
		a.completionCmd(),
		a.exportCmd(),
		a.checkFileCmd(),
		a.draftsCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Apply()
	a.cfg = cfg

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	build := logger.New().WithLevel(level)
	if a.verbose {
		build = build.WithLevel(zerolog.DebugLevel).Pretty()
	}
	if cfg.LogFile != "" {
		build = build.FromPath(cfg.LogFile)
	} else {
		build = build.FromBuffer(stderr)
	}
	a.logData, err = build.Make()
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	a.log = a.logData.Logger
	return nil
}

func (a *app) close() {
	if a.logData != nil {
		_ = a.logData.Close()
	}
}

// session restores the stored login.
func (a *app) session() (*session.Session, error) {
	if a.sess != nil {
		return a.sess, nil
	}
	sess := session.New(session.NewFileStorage(a.cfg.SessionFile), session.WithLogger(a.log))
	if err := sess.Init(); err != nil {
		return nil, err
	}
	a.sess = sess
	return sess, nil
}

// client returns the backend client, bound to the stored session.
func (a *app) client() (*client.Client, *session.Session, error) {
	sess, err := a.session()
	if err != nil {
		return nil, nil, err
	}
	if a.api == nil {
		a.api, err = client.New(a.cfg.APIURL,
			client.WithTokenStore(sess),
			client.WithLogger(a.log),
			client.WithTimeout(a.cfg.GetTimeout()),
			client.WithDownloadTimeout(a.cfg.GetDownloadTimeout()),
		)
		if err != nil {
			return nil, nil, err
		}
	}
	return a.api, sess, nil
}

// authed is client for commands that need a login.
func (a *app) authed() (*client.Client, error) {
	api, sess, err := a.client()
	if err != nil {
		return nil, err
	}
	if !sess.IsAuthenticated() {
		return nil, errNotLoggedIn
	}
	return api, nil
}

func (a *app) openStore(ctx context.Context) (*store.SQLiteStore, error) {
	return store.Open(ctx, a.cfg.DraftsDB, a.log)
}

func readRecord(path string) (schema.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec schema.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if rec == nil {
		rec = schema.Record{}
	}
	return rec, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
