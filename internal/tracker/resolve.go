package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lp-tools/lpmigrate/internal/types"
)

// Resolution pairs a live issue with its single authoritative matching entry.
type Resolution struct {
	Issue *types.Issue
	Entry *types.Entry
}

// Resolver re-validates cache candidates against live remote state. The cache
// may lag the remote, so the live pass never trusts it.
type Resolver struct {
	Remote Remote
	Log    *slog.Logger
}

// Resolve fetches issue id, drops the project-level entry of project when a
// development focus entry exists, and applies filter to the rest. It returns
// ErrAmbiguous when several entries remain and ErrNoMatch when none do.
func (r *Resolver) Resolve(ctx context.Context, project *types.Project, id int, filter types.Filter) (*Resolution, error) {
	log := r.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	issue, err := r.Remote.Issue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching issue %d: %w", id, err)
	}

	var own []*types.Entry
	var ownTargets []string
	for _, e := range issue.Entries {
		if e.Project == project.Name {
			own = append(own, e)
			ownTargets = append(ownTargets, e.Target)
		}
	}

	// The redundant project-level entry goes before filtering, so it never
	// stands in for a focus entry that does not match.
	var matched []*types.Entry
	for _, i := range withoutRedundantProject(project, ownTargets) {
		if filter.MatchEntry(own[i]) {
			matched = append(matched, own[i])
		}
	}

	targets := make([]string, len(matched))
	for i, e := range matched {
		targets[i] = e.Target
	}

	switch len(matched) {
	case 0:
		log.Debug("issue no longer matches filter", "issue", id, "filter", filter.String())
		return nil, fmt.Errorf("issue %d: %w", id, ErrNoMatch)
	case 1:
		return &Resolution{Issue: issue, Entry: matched[0]}, nil
	default:
		log.Warn("skipping ambiguous issue: several live entries match",
			"issue", issueLink(r.Remote, issue), "targets", targets, "filter", filter.String())
		return nil, fmt.Errorf("issue %d: %w", id, ErrAmbiguous)
	}
}

func issueLink(remote Remote, issue *types.Issue) string {
	if issue.WebLink != "" {
		return issue.WebLink
	}
	return remote.WebLink(issue.ID)
}
