package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lp-tools/lpmigrate/internal/config"
	"github.com/lp-tools/lpmigrate/internal/tracker"
)

func newApplyCmd(root *cliFlags) *cobra.Command {
	f := &cliFlags{}
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the target-state policies of a policy file",
		Long: `Apply reads a policy file of tasks. Each task selects cached bugs of one
project with a filter and lists, per series, the fields every matching bug
should have there. Missing targets are added; differing ones are updated
when the task sets update_existing.

The whole file is validated before anything is sent to Launchpad.`,
		Example: `  lpmigrate apply -d --policy_file ./policy.yaml
  lpmigrate apply -e -y --policy_file ./policy.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.verbose, f.quiet = root.verbose, root.quiet
			return runApply(cmd, f)
		},
	}
	addModeFlags(cmd, f)
	cmd.Flags().String("policy_file", "", "policy file to apply")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "do not ask for confirmation in execute mode")
	return cmd
}

func runApply(cmd *cobra.Command, f *cliFlags) error {
	if !f.dryRun && !f.execute {
		return cmd.Help()
	}

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	tasks, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	log := newLogger(cmd.ErrOrStderr(), f)
	log.Info("applying policy", "mode", modeName(f), "file", cfg.PolicyFile, "tasks", len(tasks))

	if err := confirmExecute(f, "Apply policy on Launchpad?",
		fmt.Sprintf("%d tasks from %s", len(tasks), cfg.PolicyFile)); err != nil {
		return err
	}

	rt, err := setup(ctx, cfg, log, f.execute)
	if err != nil {
		return err
	}
	defer rt.close()

	engine := tracker.NewEngine(rt.remote, rt.store, log)
	engine.DryRun = f.dryRun

	failed := 0
	for i, task := range tasks {
		tlog := log.With("task", i+1, "project", task.Project)
		if task.Description != "" {
			tlog.Info(task.Description)
		}
		stats, err := engine.ApplyRules(ctx, task.Project, task.Filter, task.Policy, task.UpdateExisting)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tlog.Error("task failed", "err", err)
			failed++
			continue
		}
		tlog.Info("task finished",
			"candidates", stats.Candidates, "changed", stats.Changed, "unchanged", stats.Unchanged,
			"ambiguous", stats.Ambiguous, "no_match", stats.NoMatch, "failed", stats.Failed)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(tasks))
	}
	return nil
}
