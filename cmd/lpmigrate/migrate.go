package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lp-tools/lpmigrate/internal/config"
	"github.com/lp-tools/lpmigrate/internal/importer"
	"github.com/lp-tools/lpmigrate/internal/migrate"
	"github.com/lp-tools/lpmigrate/internal/telemetry"
	"github.com/lp-tools/lpmigrate/internal/tracker"
	"github.com/lp-tools/lpmigrate/internal/ui"
)

func runMigrate(cmd *cobra.Command, f *cliFlags) error {
	if !f.dryRun && !f.execute {
		return cmd.Help()
	}

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.RequireMigration(); err != nil {
		return err
	}

	ctx := cmd.Context()
	log := newLogger(cmd.ErrOrStderr(), f)
	log.Info("starting release migration", append([]any{"mode", modeName(f)}, cfg.Summary()...)...)

	if err := confirmExecute(f, "Retarget bugs on Launchpad?",
		fmt.Sprintf("%s: %s -> %s", strings.Join(cfg.Projects, ", "),
			strings.Join(cfg.OldMilestones, ", "), cfg.NewMilestone)); err != nil {
		return err
	}

	rt, err := setup(ctx, cfg, log, f.execute)
	if err != nil {
		return err
	}
	defer rt.close()

	driver := migrate.NewDriver(tracker.NewEngine(rt.remote, rt.store, log), migrate.Options{
		Projects:          cfg.Projects,
		OldMilestones:     cfg.OldMilestones,
		NewMilestone:      cfg.NewMilestone,
		Statuses:          cfg.Statuses,
		Importances:       cfg.Importances,
		Maximum:           cfg.Maximum,
		SkipTags:          cfg.SkipTags,
		MaintenanceMarker: cfg.MaintenanceMarker,
		DryRun:            f.dryRun,
	}, log)
	if cfg.OTelEnabled {
		driver.Metrics = telemetry.NewRunMetrics(nil)
	}
	if f.refresh {
		imp := importer.New(rt.remote, rt.store, log)
		driver.Refresh = func(ctx context.Context, project string) error {
			_, err := imp.Import(ctx, project, importer.Options{})
			return err
		}
	}

	stats, err := driver.Run(ctx)
	if stats != nil {
		reportStats(cmd.OutOrStdout(), log, stats)
	}
	return err
}

func modeName(f *cliFlags) string {
	if f.dryRun {
		return "dry-run"
	}
	return "execute"
}

// reportStats logs one line per project and milestone and, on a terminal,
// renders the same numbers as a table.
func reportStats(w io.Writer, log *slog.Logger, stats *migrate.Stats) {
	for _, u := range stats.Units {
		log.Info("milestone statistics", "project", u.Project, "milestone", u.Milestone,
			"total", u.Total, "migrated", u.Migrated, "failed", u.Failed, "skipped", u.Skipped, "ambiguous", u.Ambiguous)
	}
	log.Info("run statistics", "processed", stats.Processed, "errors", stats.Errors, "limit_reached", stats.LimitReached)

	if len(stats.Units) == 0 || !ui.IsTerminal() {
		return
	}
	table := ui.MarkdownTable(migrate.TableHeaders, stats.TableRows())
	summary := fmt.Sprintf("## Migration summary\n\n%s\nProcessed **%d** issues, **%d** errors.\n",
		table, stats.Processed, stats.Errors)
	_, _ = fmt.Fprint(w, ui.RenderMarkdown(summary))
}
