package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lp-tools/lpmigrate/internal/config"
	"github.com/lp-tools/lpmigrate/internal/importer"
)

func newImportCmd(root *cliFlags) *cobra.Command {
	var (
		since       string
		concurrency int
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Mirror the bug tasks of projects into the local cache",
		Long: `Import searches the bug tasks of each project, fetches every matching bug
with all of its tasks and stores the tasks of that project in the cache.

Without --statuses every status is imported, closed ones included.`,
		Example: `  lpmigrate import -p fuel,mos
  lpmigrate import -p fuel --since last
  lpmigrate import -p fuel --since "3 days ago" -s New,Confirmed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if len(cfg.Projects) == 0 {
				return fmt.Errorf("%w: projects", config.ErrMissingOption)
			}

			ctx := cmd.Context()
			log := newLogger(cmd.ErrOrStderr(), root)
			rt, err := setup(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer rt.close()

			opts := importer.Options{Concurrency: concurrency, DryRun: dryRun}
			if cmd.Flags().Changed("statuses") {
				opts.Statuses = cfg.Statuses
			}

			imp := importer.New(rt.remote, rt.store, log)
			var failed []string
			for _, project := range cfg.Projects {
				opts.Since, err = imp.ResolveSince(ctx, project, since)
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				res, err := imp.Import(ctx, project, opts)
				if err != nil {
					return err
				}
				if res.Failed > 0 {
					failed = append(failed, project)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("some issues could not be fetched in %v; run import again", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceP("projects", "p", nil, "projects to import")
	cmd.Flags().StringSliceP("statuses", "s", nil, "only import tasks in these statuses")
	cmd.Flags().StringVar(&since, "since", "", `only tasks modified since (e.g., "last", "-7d", "2025-01-02", "3 days ago")`)
	cmd.Flags().IntVar(&concurrency, "concurrency", importer.DefaultConcurrency, "parallel issue fetches")
	cmd.Flags().BoolVarP(&dryRun, "dry_run", "d", false, "fetch and count without writing the cache")
	return cmd
}
