// Package migrate retargets the open issues of released milestones to the
// next release. Regular issues are closed against the old milestone;
// maintenance issues move to the "<old>-updates" milestone instead.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lp-tools/lpmigrate/internal/telemetry"
	"github.com/lp-tools/lpmigrate/internal/tracker"
	"github.com/lp-tools/lpmigrate/internal/types"
)

// ErrTargetCollision means the new milestone, the source entry and the old
// milestone's series all resolve to one target, so the issue cannot be both
// retargeted and closed.
var ErrTargetCollision = errors.New("new and closing targets collide")

// DefaultMaintenanceMarker identifies maintenance milestones by name.
const DefaultMaintenanceMarker = "-mu"

const updatesSuffix = "-updates"

// Options configures a Driver.
type Options struct {
	Projects          []string
	OldMilestones     []string
	NewMilestone      string
	Statuses          []types.Status
	Importances       []types.Importance
	Maximum           int
	SkipTags          []string
	MaintenanceMarker string
	DryRun            bool
}

// State is the outcome of one issue.
type State int

const (
	StatePending State = iota
	StateTargeted
	StateTargetSkipped
	StateTargetFailed
	StateUpdatesSet
	StateUpdatesFailed
	StateClosed
	StateCloseFailed
	StateSkipped
)

var stateNames = map[State]string{
	StatePending:       "pending",
	StateTargeted:      "targeted",
	StateTargetSkipped: "target-skipped",
	StateTargetFailed:  "target-failed",
	StateUpdatesSet:    "updates-set",
	StateUpdatesFailed: "updates-failed",
	StateClosed:        "closed",
	StateCloseFailed:   "close-failed",
	StateSkipped:       "skipped",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Failed reports whether s is a failure state.
func (s State) Failed() bool {
	return s == StateTargetFailed || s == StateUpdatesFailed || s == StateCloseFailed
}

// Driver runs a release migration over every configured project and old
// milestone, one issue at a time.
type Driver struct {
	remote tracker.Remote
	engine *tracker.Engine
	opts   Options
	log    *slog.Logger

	// Refresh, when set, re-imports a project into the cache before its
	// milestones are searched.
	Refresh func(ctx context.Context, project string) error

	// Metrics may be nil.
	Metrics *telemetry.RunMetrics

	stats   *Stats
	updates map[string]*types.Milestone
}

// NewDriver creates a driver. engine reads candidates from the cache and
// applies per-issue policies; its DryRun flag follows opts.DryRun.
func NewDriver(engine *tracker.Engine, opts Options, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.MaintenanceMarker == "" {
		opts.MaintenanceMarker = DefaultMaintenanceMarker
	}
	engine.DryRun = opts.DryRun
	return &Driver{remote: engine.Remote, engine: engine, opts: opts, log: log}
}

// Run migrates every unit and returns the statistics. Not-found projects
// and milestones, ambiguous issues and failed issues are logged and
// skipped; only context cancellation and cache errors end the run with an
// error. Reaching the maximum ends it early without one.
func (d *Driver) Run(ctx context.Context) (*Stats, error) {
	if d.opts.Maximum <= 0 {
		return nil, fmt.Errorf("maximum must be positive, got %d", d.opts.Maximum)
	}
	d.stats = &Stats{}
	d.updates = make(map[string]*types.Milestone)

	for _, name := range d.opts.Projects {
		if d.limitReached() {
			break
		}
		if err := d.runProject(ctx, name); err != nil {
			return d.stats, err
		}
	}

	d.log.Info("migration finished",
		"processed", d.stats.Processed, "errors", d.stats.Errors, "limit_reached", d.stats.LimitReached)
	return d.stats, nil
}

func (d *Driver) runProject(ctx context.Context, name string) error {
	if d.Refresh != nil {
		if err := d.Refresh(ctx, name); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			d.log.Warn("cache refresh failed, using cached rows", "project", name, "err", err)
		}
	}

	d.log.Debug("retrieving project", "project", name)
	p, err := d.remote.Project(ctx, name)
	if err != nil {
		return d.skip(ctx, err, "project not found, skipped", "project", name)
	}

	d.log.Debug("retrieving active milestone", "milestone", d.opts.NewMilestone)
	newMs, err := d.remote.Milestone(ctx, p.Name, d.opts.NewMilestone)
	if err != nil {
		return d.skip(ctx, err, "new milestone not found, project skipped", "project", p.Name, "milestone", d.opts.NewMilestone)
	}

	for _, old := range d.opts.OldMilestones {
		if d.limitReached() {
			return nil
		}
		if err := d.runMilestone(ctx, p, old, newMs); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) runMilestone(ctx context.Context, p *types.Project, oldName string, newMs *types.Milestone) error {
	d.log.Debug("retrieving closed milestone", "project", p.Name, "milestone", oldName)
	oldMs, err := d.remote.Milestone(ctx, p.Name, oldName)
	if err != nil {
		return d.skip(ctx, err, "closed milestone not found, skipped", "project", p.Name, "milestone", oldName)
	}

	filter := d.filter(oldMs.Name)
	cands, err := d.engine.Index.Search(ctx, p, filter)
	if err != nil {
		return err
	}
	unit := d.stats.unit(p.Name, oldMs.Name)
	unit.Total = len(cands.IDs)
	unit.Ambiguous = len(cands.Ambiguous)
	d.log.Info("retargeting issues", "project", p.Name, "from", oldMs.Name, "to", newMs.Name, "issues", unit.Total)

	for _, id := range cands.IDs {
		if d.limitReached() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := d.engine.Resolver.Resolve(ctx, p, id, filter)
		switch {
		case errors.Is(err, tracker.ErrNoMatch):
			unit.Skipped++
			continue
		case errors.Is(err, tracker.ErrAmbiguous):
			unit.Ambiguous++
			continue
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			d.log.Error("failed to fetch issue", "issue", id, "err", err)
			d.fail(ctx, unit)
			continue
		}

		state := d.MigrateIssue(ctx, p, res, oldMs, newMs)
		switch {
		case state == StateSkipped:
			unit.Skipped++
			d.Metrics.Skipped(ctx, p.Name, oldMs.Name)
		case state.Failed():
			d.log.Error("can't reassign the issue", "issue", id, "state", state.String())
			d.fail(ctx, unit)
		default:
			unit.Migrated++
			d.stats.Processed++
			d.Metrics.Migrated(ctx, p.Name, oldMs.Name)
		}
	}
	return nil
}

// MigrateIssue retargets one resolved issue and reports its final state.
func (d *Driver) MigrateIssue(ctx context.Context, p *types.Project, res *tracker.Resolution, oldMs, newMs *types.Milestone) State {
	issue, source := res.Issue, res.Entry
	d.log.Debug("issue", "id", issue.ID, "title", issue.ShortTitle(), "link", d.link(issue))

	if len(d.opts.SkipTags) > 0 && issue.HasTag(d.opts.SkipTags...) {
		d.log.Info("issue carries a skip tag, skipped", "issue", issue.ID, "skip_tags", d.opts.SkipTags)
		return StateSkipped
	}

	maintenance := d.isMaintenance(issue)
	var closing types.FieldSet
	if maintenance {
		updates, err := d.updatesMilestone(ctx, p, oldMs.Name)
		if err != nil {
			d.log.Error("can't find the updates milestone", "project", p.Name,
				"milestone", oldMs.Name+updatesSuffix, "issue", issue.ID, "err", err)
			return StateUpdatesFailed
		}
		closing.Set(types.FieldMilestone, updates.Name)
	} else {
		closing.Set(types.FieldStatus, string(types.StatusWontFix))
	}
	var retarget types.FieldSet
	retarget.Set(types.FieldMilestone, newMs.Name)

	newTarget := newMs.SeriesTarget()
	closeTarget := source.Target
	if p.SameTarget(newTarget, source.Target) {
		closeTarget = oldMs.SeriesTarget()
		if p.SameTarget(closeTarget, source.Target) {
			d.log.Error("can't retarget issue", "issue", issue.ID, "target", source.Target, "err", ErrTargetCollision)
			if maintenance {
				return StateUpdatesFailed
			}
			return StateCloseFailed
		}
		newTarget = source.Target
	}
	policy := types.Policy{
		{Target: newTarget, Fields: retarget},
		{Target: closeTarget, Fields: closing},
	}

	d.log.Debug("migration policy", "issue", issue.ID, "maintenance", maintenance,
		"source", source.Target, "target", newTarget, "close", closeTarget)
	actions, err := d.engine.ApplyIssue(ctx, p, issue, source, policy, true)

	targetState := StatePending
	closeState := StatePending
	for _, a := range actions {
		switch {
		case p.SameTarget(a.Target, p.Qualify(newTarget)):
			targetState = targetOutcome(a.Kind)
		case p.SameTarget(a.Target, p.Qualify(closeTarget)):
			closeState = closeOutcome(a.Kind, maintenance)
		}
	}
	if err != nil && !targetState.Failed() && !closeState.Failed() {
		closeState = closeOutcome(tracker.ActionFailed, maintenance)
	}

	switch {
	case targetState.Failed():
		return targetState
	case closeState != StatePending:
		return closeState
	default:
		return targetState
	}
}

func targetOutcome(k tracker.ActionKind) State {
	switch k {
	case tracker.ActionFailed:
		return StateTargetFailed
	case tracker.ActionUnchanged:
		return StateTargetSkipped
	default:
		return StateTargeted
	}
}

func closeOutcome(k tracker.ActionKind, maintenance bool) State {
	switch {
	case maintenance && k == tracker.ActionFailed:
		return StateUpdatesFailed
	case maintenance:
		return StateUpdatesSet
	case k == tracker.ActionFailed:
		return StateCloseFailed
	default:
		return StateClosed
	}
}

// isMaintenance reports whether any entry of issue sits on a maintenance
// milestone.
func (d *Driver) isMaintenance(issue *types.Issue) bool {
	for _, e := range issue.Entries {
		if strings.Contains(bareMilestone(e.Milestone), d.opts.MaintenanceMarker) {
			return true
		}
	}
	return false
}

// updatesMilestone looks up "<old>-updates" once per project and milestone.
func (d *Driver) updatesMilestone(ctx context.Context, p *types.Project, oldName string) (*types.Milestone, error) {
	key := types.QualifyMilestone(p.Name, oldName+updatesSuffix)
	if m, ok := d.updates[key]; ok {
		if m == nil {
			return nil, fmt.Errorf("milestone %s: %w", key, tracker.ErrNotFound)
		}
		return m, nil
	}
	m, err := d.remote.Milestone(ctx, p.Name, oldName+updatesSuffix)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			d.updates[key] = nil
		}
		return nil, err
	}
	d.updates[key] = m
	return m, nil
}

func (d *Driver) filter(oldMilestone string) types.Filter {
	f := types.Filter{"milestone": {oldMilestone}}
	if len(d.opts.Statuses) > 0 {
		values := make([]string, len(d.opts.Statuses))
		for i, s := range d.opts.Statuses {
			values[i] = string(s)
		}
		f["status"] = values
	}
	if len(d.opts.Importances) > 0 {
		values := make([]string, len(d.opts.Importances))
		for i, imp := range d.opts.Importances {
			values[i] = string(imp)
		}
		f["importance"] = values
	}
	return f
}

func (d *Driver) limitReached() bool {
	if d.stats.Processed < d.opts.Maximum {
		return false
	}
	if !d.stats.LimitReached {
		d.stats.LimitReached = true
		d.log.Info("maximum number of issues processed, stopping", "maximum", d.opts.Maximum)
	}
	return true
}

func (d *Driver) fail(ctx context.Context, unit *UnitStats) {
	unit.Failed++
	d.stats.Errors++
	d.Metrics.Failed(ctx, unit.Project, unit.Milestone)
}

// skip logs a lookup failure of a project or milestone. Only context errors
// are returned.
func (d *Driver) skip(ctx context.Context, err error, msg string, args ...any) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	d.log.Error(msg, append(args, "err", err)...)
	if !errors.Is(err, tracker.ErrNotFound) {
		d.stats.Errors++
	}
	return nil
}

func (d *Driver) link(issue *types.Issue) string {
	if issue.WebLink != "" {
		return issue.WebLink
	}
	return d.remote.WebLink(issue.ID)
}

func bareMilestone(name string) string {
	if _, after, ok := strings.Cut(name, "/+milestone/"); ok {
		return after
	}
	return name
}
