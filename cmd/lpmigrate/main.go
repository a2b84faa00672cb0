// Command lpmigrate retargets Launchpad bugs from released milestones to the
// next release, applies declarative per-series policies and maintains the
// local cache of bug tasks both rely on.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lp-tools/lpmigrate/internal/config"
	"github.com/lp-tools/lpmigrate/internal/launchpad"
	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/storage/factory"
	"github.com/lp-tools/lpmigrate/internal/telemetry"
	"github.com/lp-tools/lpmigrate/internal/tracker"
	"github.com/lp-tools/lpmigrate/internal/ui"
)

// cliFlags holds the flags that are not configuration options.
type cliFlags struct {
	dryRun  bool
	execute bool
	yes     bool
	refresh bool
	verbose bool
	quiet   bool
}

func newRootCmd() *cobra.Command {
	f := &cliFlags{}
	root := &cobra.Command{
		Use:   "lpmigrate",
		Short: "Retarget Launchpad bugs from released milestones to the next release",
		Long: `lpmigrate reassigns the open bugs of released milestones to the next one.

Regular bugs get a task for the new milestone and are closed as "Won't Fix"
against the old one. Maintenance bugs (a task on a milestone containing the
maintenance marker) get the new milestone and move to "<old>-updates".

Options are read from flags, LP_RELEASE_<OPTION> environment variables and the
config file, in that order of precedence.`,
		Example: `  lpmigrate -d -p fuel -o 6.9 -n 8.0 -s New,Confirmed -i High,Medium -m 100
  lpmigrate -e -p fuel,mos -o 6.9,7.0 -n 8.0 -c ./lpmigrate.yaml`,
		Version:       versionString(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, f)
		},
	}
	root.SetVersionTemplate("lpmigrate {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringP("config_file", "c", "", "path to config file if any")
	pf.String("cache", "", "cache store URL (sqlite://path, mysql://dsn, dolt:///dir, memory://)")
	pf.String("credentials_file", "", "Launchpad OAuth credentials file (TOML)")
	pf.String("api_url", "", "Launchpad API root")
	pf.String("request_timeout", "", "timeout of a single remote call (e.g., 30s)")
	pf.BoolVar(&f.verbose, "verbose", false, "enable debug logging")
	pf.BoolVarP(&f.quiet, "quiet", "q", false, "log warnings and errors only")

	fl := root.Flags()
	addModeFlags(root, f)
	fl.StringSliceP("projects", "p", nil, "project names in which context the migration runs")
	fl.StringSliceP("old_milestone_names", "o", nil, "closed milestone names from which bugs are retargeted")
	fl.StringP("new_milestone_name", "n", "", "active milestone name to which bugs are retargeted")
	fl.IntP("maximum", "m", 0, "total amount of issues to be processed")
	fl.StringSliceP("statuses", "s", nil, "statuses of the bugs to be processed")
	fl.StringSliceP("bugs_importance", "i", nil, "importance of the bugs to be processed")
	fl.StringSlice("skip_tags", nil, "bugs carrying any of these tags are left alone")
	fl.String("maintenance_marker", "", "milestone substring that marks maintenance bugs")
	fl.BoolVar(&f.refresh, "refresh", false, "re-import each project into the cache before searching")
	fl.BoolVarP(&f.yes, "yes", "y", false, "do not ask for confirmation in execute mode")

	root.AddCommand(newApplyCmd(f), newImportCmd(f), newVersionCmd())
	return root
}

// addModeFlags registers the mutually exclusive --dry_run/--execute pair.
func addModeFlags(cmd *cobra.Command, f *cliFlags) {
	cmd.Flags().BoolVarP(&f.dryRun, "dry_run", "d", false, "dry-run mode to run without any actions on data")
	cmd.Flags().BoolVarP(&f.execute, "execute", "e", false, "mode to run with modifications of data")
	cmd.MarkFlagsMutuallyExclusive("dry_run", "execute")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, f *cliFlags) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case f.verbose:
		level = slog.LevelDebug
	case f.quiet:
		level = slog.LevelWarn
	}
	return ui.NewLogger(w, level)
}

// session bundles the collaborators every command needs.
type session struct {
	cfg      *config.Config
	log      *slog.Logger
	remote   tracker.Remote
	store    storage.Store
	shutdown func(context.Context) error
}

// setup starts telemetry and opens the remote and the cache. write means
// the command will change remote state, which needs credentials.
func setup(ctx context.Context, cfg *config.Config, log *slog.Logger, write bool) (*session, error) {
	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	if write && creds.Anonymous() {
		return nil, fmt.Errorf("execute mode needs credentials: set credentials_file or %s and %s",
			config.EnvVar("access_token"), config.EnvVar("access_secret"))
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.OTelEnabled,
		Stdout:      cfg.OTelStdout,
		ServiceName: "lpmigrate",
		Version:     Version,
	})
	if err != nil {
		return nil, err
	}

	client := launchpad.NewClient(creds).
		WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}).
		WithLogger(log)
	if cfg.APIURL != "" {
		client = client.WithBaseURL(cfg.APIURL)
	}

	store, err := factory.Open(ctx, cfg.Cache, log)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	return &session{
		cfg:      cfg,
		log:      log,
		remote:   telemetry.WrapRemote(client, cfg.OTelEnabled),
		store:    telemetry.WrapStore(store, cfg.OTelEnabled),
		shutdown: shutdown,
	}, nil
}

func (rt *session) close() {
	if err := rt.store.Close(); err != nil {
		rt.log.Warn("closing cache", "err", err)
	}
	if err := rt.shutdown(context.Background()); err != nil {
		rt.log.Warn("flushing telemetry", "err", err)
	}
}

// confirmExecute asks before touching remote state unless --yes was given.
func confirmExecute(f *cliFlags, title, description string) error {
	if !f.execute || f.yes {
		return nil
	}
	ok, err := ui.Confirm(title, description)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted")
	}
	return nil
}
