package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/types"
)

// ActionKind classifies what the engine did to one policy target.
type ActionKind int

const (
	ActionUnchanged ActionKind = iota
	ActionAdd
	ActionUpdate
	ActionFailed
)

func (k ActionKind) String() string {
	switch k {
	case ActionAdd:
		return "ADD"
	case ActionUpdate:
		return "UPDATE"
	case ActionFailed:
		return "FAILED"
	default:
		return "NONE"
	}
}

// Action is the outcome for one policy target of one issue.
type Action struct {
	Kind   ActionKind
	Target string
	Fields []string // fields that differed, for updates
	Err    error
}

func (a Action) String() string {
	s := a.Kind.String() + " " + a.Target
	if len(a.Fields) > 0 {
		s += " (" + strings.Join(a.Fields, ", ") + ")"
	}
	return s
}

// Changed reports whether any action created or updated an entry.
func Changed(actions []Action) bool {
	for _, a := range actions {
		if a.Kind == ActionAdd || a.Kind == ActionUpdate {
			return true
		}
	}
	return false
}

// ApplyStats summarizes one ApplyRules run.
type ApplyStats struct {
	Candidates int `json:"candidates"` // issues returned by the cache search
	Ambiguous  int `json:"ambiguous"`  // excluded by the cache or the live pass
	NoMatch    int `json:"no_match"`   // stale cache rows
	Changed    int `json:"changed"`    // issues with at least one add or update
	Unchanged  int `json:"unchanged"`  // issues already converged
	Failed     int `json:"failed"`     // issues with a failed remote call
}

// Engine applies target-state policies to remote issues.
type Engine struct {
	Remote   Remote
	Index    *Index
	Resolver *Resolver
	Log      *slog.Logger

	// DryRun logs every mutation instead of sending it. Decisions still see
	// the would-be state, so the output is a faithful preview.
	DryRun bool

	milestones map[string]*types.Milestone
}

// NewEngine creates an engine reading candidates from store.
func NewEngine(remote Remote, store storage.Reader, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		Remote:   remote,
		Index:    &Index{Store: store, Remote: remote, Log: log},
		Resolver: &Resolver{Remote: remote, Log: log},
		Log:      log,
	}
}

// ApplyRules searches the cache for issues of project matching filter,
// re-validates each against the remote and applies policy to it. Existing
// entries that differ from the policy are only updated when updateExisting
// is set.
func (e *Engine) ApplyRules(ctx context.Context, project string, filter types.Filter, policy types.Policy, updateExisting bool) (*ApplyStats, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	p, err := e.Remote.Project(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", project, err)
	}
	policy = NormalizePolicy(p, policy)
	if err := e.checkSeries(ctx, p, policy); err != nil {
		return nil, err
	}

	if updateExisting {
		e.Log.Info("Update if target exists", "project", p.Name)
	} else {
		e.Log.Info("No updates if target exists", "project", p.Name)
	}

	cands, err := e.Index.Search(ctx, p, filter)
	if err != nil {
		return nil, err
	}
	stats := &ApplyStats{Candidates: len(cands.IDs), Ambiguous: len(cands.Ambiguous)}

	for _, id := range cands.IDs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, err := e.Resolver.Resolve(ctx, p, id, filter)
		switch {
		case errors.Is(err, ErrNoMatch):
			stats.NoMatch++
			continue
		case errors.Is(err, ErrAmbiguous):
			stats.Ambiguous++
			continue
		case err != nil:
			e.Log.Error("failed to fetch issue", "issue", id, "err", err)
			stats.Failed++
			continue
		}

		e.Log.Info("Apply rules", "issue", issueLink(e.Remote, res.Issue), "source", res.Entry.Target)
		actions, err := e.ApplyIssue(ctx, p, res.Issue, res.Entry, policy, updateExisting)
		switch {
		case err != nil:
			stats.Failed++
		case Changed(actions):
			stats.Changed++
		default:
			stats.Unchanged++
		}
	}
	return stats, nil
}

// ApplyIssue brings the entries of one issue in line with policy. source is
// the authoritative entry that matched the filter; its values are the
// defaults for every created or updated entry, so the source target is
// always processed last. The first failed remote call aborts the issue.
func (e *Engine) ApplyIssue(ctx context.Context, p *types.Project, issue *types.Issue, source *types.Entry, policy types.Policy, updateExisting bool) ([]Action, error) {
	ordered := orderSourceLast(p, NormalizePolicy(p, policy), source.Target)

	actions := make([]Action, 0, len(ordered))
	for _, tp := range ordered {
		existing := entryFor(p, issue, tp.Target)

		var a Action
		switch {
		case existing != nil && tp.Fields.Matches(existing):
			a = Action{Kind: ActionUnchanged, Target: existing.Target}
		case existing != nil && !updateExisting:
			e.Log.Debug("target exists, updates disabled", "issue", issue.ID, "target", existing.Target)
			a = Action{Kind: ActionUnchanged, Target: existing.Target}
		case existing != nil:
			a = Action{Kind: ActionUpdate, Target: existing.Target, Fields: tp.Fields.Diff(existing)}
		default:
			a = Action{Kind: ActionAdd, Target: p.Qualify(tp.Target)}
		}

		if a.Kind != ActionUnchanged {
			if _, err := e.AddOrUpdate(ctx, p, issue, source, tp.Target, tp.Fields); err != nil {
				e.Log.Error("failed to persist entry", "issue", issue.ID, "target", a.Target, "err", err)
				actions = append(actions, Action{Kind: ActionFailed, Target: a.Target, Err: err})
				e.logActions(issue, actions)
				return actions, fmt.Errorf("issue %d target %s: %w", issue.ID, a.Target, err)
			}
		}
		actions = append(actions, a)
	}
	e.logActions(issue, actions)
	return actions, nil
}

func (e *Engine) logActions(issue *types.Issue, actions []Action) {
	var done []string
	for _, a := range actions {
		if a.Kind != ActionUnchanged {
			done = append(done, a.String())
		}
	}
	summary := "None"
	if len(done) > 0 {
		summary = strings.Join(done, ", ")
	}
	if e.DryRun {
		summary = "[dry-run] " + summary
	}
	e.Log.Info("Actions done", "issue", issue.ID, "actions", summary)
}

// checkSeries verifies that every series named by the policy exists.
func (e *Engine) checkSeries(ctx context.Context, p *types.Project, policy types.Policy) error {
	for _, tp := range policy {
		if tp.Target == p.Name {
			continue
		}
		name := strings.TrimPrefix(tp.Target, p.Name+"/")
		if _, err := e.Remote.Series(ctx, p.Name, name); err != nil {
			return fmt.Errorf("series %s: %w", tp.Target, err)
		}
	}
	return nil
}

// NormalizePolicy qualifies target names with the project name and, when
// both the bare project and the development focus are named, drops the bare
// project.
func NormalizePolicy(p *types.Project, policy types.Policy) types.Policy {
	out := make(types.Policy, 0, len(policy))
	hasFocus := false
	for _, tp := range policy {
		tp.Target = p.Qualify(tp.Target)
		if tp.Target == p.FocusTarget() {
			hasFocus = true
		}
		out = append(out, tp)
	}
	if !hasFocus {
		return out
	}
	kept := out[:0]
	for _, tp := range out {
		if tp.Target != p.Name {
			kept = append(kept, tp)
		}
	}
	return kept
}

// orderSourceLast partitions policy into (other targets, source target).
func orderSourceLast(p *types.Project, policy types.Policy, source string) types.Policy {
	var others, last types.Policy
	for _, tp := range policy {
		if p.SameTarget(tp.Target, source) {
			last = append(last, tp)
		} else {
			others = append(others, tp)
		}
	}
	return append(others, last...)
}

// entryFor finds the authoritative entry of issue for target. The bare
// project and the development focus stand in for each other, and a
// project-level entry is ignored when a focus entry exists.
func entryFor(p *types.Project, issue *types.Issue, target string) *types.Entry {
	target = p.Qualify(target)

	var own []*types.Entry
	var targets []string
	for _, e := range issue.Entries {
		if e.Project == p.Name {
			own = append(own, e)
			targets = append(targets, e.Target)
		}
	}

	var alias *types.Entry
	for _, i := range withoutRedundantProject(p, targets) {
		e := own[i]
		if e.Target == target {
			return e
		}
		if alias == nil && p.SameTarget(e.Target, target) {
			alias = e
		}
	}
	return alias
}
