package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/types"
)

// Candidates is the result of a cache search.
type Candidates struct {
	// IDs holds one entry per issue, ascending.
	IDs []int
	// Ambiguous holds issues excluded because several rows matched.
	Ambiguous []int
}

// Index resolves filters against the cache store.
type Index struct {
	Store  storage.Reader
	Remote Remote // for issue links in warnings; may be nil
	Log    *slog.Logger
}

// Search returns the deduplicated set of issues of project with at least one
// cache row matching filter. When an issue has both a project-level row and a
// development focus row, the project-level row is dropped; an issue with more
// than one row left is ambiguous and excluded.
func (x *Index) Search(ctx context.Context, project *types.Project, filter types.Filter) (*Candidates, error) {
	rows, err := x.Store.Rows(ctx, project.Name, filter)
	if err != nil {
		return nil, fmt.Errorf("searching cache for %s: %w", project.Name, err)
	}

	// Pass 1: group rows by issue. Rows arrive ordered by bug id.
	var (
		order  []int
		groups = make(map[int][]types.CacheRow)
	)
	for _, r := range rows {
		if _, seen := groups[r.BugID]; !seen {
			order = append(order, r.BugID)
		}
		groups[r.BugID] = append(groups[r.BugID], r)
	}

	// Pass 2: keep issues with exactly one authoritative row.
	out := &Candidates{}
	for _, id := range order {
		group := groups[id]
		targets := make([]string, len(group))
		for i, r := range group {
			targets[i] = r.Target
		}
		if n := len(withoutRedundantProject(project, targets)); n > 1 {
			x.logger().Warn("skipping ambiguous issue: several cached entries match",
				"issue", x.link(id), "targets", targets, "filter", filter.String())
			out.Ambiguous = append(out.Ambiguous, id)
			continue
		}
		out.IDs = append(out.IDs, id)
	}
	x.logger().Debug("cache search", "project", project.Name, "filter", filter.String(),
		"rows", len(rows), "candidates", len(out.IDs), "ambiguous", len(out.Ambiguous))
	return out, nil
}

func (x *Index) link(id int) string {
	if x.Remote == nil {
		return fmt.Sprint(id)
	}
	return x.Remote.WebLink(id)
}

func (x *Index) logger() *slog.Logger {
	if x.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return x.Log
}

// withoutRedundantProject returns the indexes of targets that remain
// authoritative: the project-level target is dropped when the development
// focus target is also present.
func withoutRedundantProject(project *types.Project, targets []string) []int {
	hasProject, hasFocus := false, false
	focus := project.FocusTarget()
	for _, t := range targets {
		switch t {
		case project.Name:
			hasProject = true
		case focus:
			hasFocus = true
		}
	}

	keep := make([]int, 0, len(targets))
	for i, t := range targets {
		if hasProject && hasFocus && t == project.Name {
			continue
		}
		keep = append(keep, i)
	}
	return keep
}
