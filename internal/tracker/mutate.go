package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/lp-tools/lpmigrate/internal/types"
)

// AddOrUpdate locates or creates the entry of issue for target and writes
// all four copy-fields in one save: the value from fields when set, the
// source entry's current value otherwise. The in-memory issue is updated to
// match, also in dry-run mode.
func (e *Engine) AddOrUpdate(ctx context.Context, p *types.Project, issue *types.Issue, source *types.Entry, target string, fields types.FieldSet) (*types.Entry, error) {
	values := fields.Merge(source.Fields())
	if ms, ok := values.Get(types.FieldMilestone); ok && ms != "" {
		name, err := e.resolveMilestone(ctx, p, ms)
		if err != nil {
			return nil, err
		}
		values.Set(types.FieldMilestone, name)
	}

	dest := entryFor(p, issue, target)
	if dest == nil {
		target = p.Qualify(target)
		if e.DryRun {
			e.Log.Info("[dry-run] would add entry", "issue", issue.ID, "target", target)
			dest = &types.Entry{IssueID: issue.ID, Project: p.Name, Target: target}
		} else {
			created, err := e.Remote.AddEntry(ctx, issue, target)
			if err != nil {
				return nil, fmt.Errorf("adding entry for %s: %w", target, err)
			}
			dest = created
		}
		issue.Entries = append(issue.Entries, dest)
	}

	updated := dest.Clone()
	updated.Apply(values)

	if e.DryRun {
		e.Log.Info("[dry-run] would save entry", "issue", issue.ID, "target", dest.Target, "fields", values.String())
		*dest = *updated
		return dest, nil
	}
	if err := e.Remote.SaveEntry(ctx, updated); err != nil {
		return nil, fmt.Errorf("saving entry %s: %w", dest.Target, err)
	}
	*dest = *updated
	return dest, nil
}

// resolveMilestone checks that a milestone exists in p and returns its bare
// name. Qualified names of p are accepted.
func (e *Engine) resolveMilestone(ctx context.Context, p *types.Project, name string) (string, error) {
	name = strings.TrimPrefix(name, p.Name+"/+milestone/")
	key := types.QualifyMilestone(p.Name, name)
	if _, ok := e.milestones[key]; ok {
		return name, nil
	}

	m, err := e.Remote.Milestone(ctx, p.Name, name)
	if err != nil {
		return "", fmt.Errorf("milestone %s: %w", key, err)
	}
	if e.milestones == nil {
		e.milestones = make(map[string]*types.Milestone)
	}
	e.milestones[key] = m
	return name, nil
}
