// Package tracker is the reconciliation engine. It finds candidate issues in
// the cache, re-validates them against live remote state, and applies an
// ordered per-target policy with the minimal set of create and update calls,
// so that re-running with the same inputs is a no-op.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/lp-tools/lpmigrate/internal/types"
)

var (
	// ErrNotFound is returned by a Remote when a project, series, milestone
	// or issue does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous means more than one entry of an issue matched a filter
	// after duplicate resolution.
	ErrAmbiguous = errors.New("ambiguous match")

	// ErrNoMatch means no live entry of an issue matched the filter.
	ErrNoMatch = errors.New("no matching entry")
)

// Remote is the remote tracking service as consumed by the engine and the
// importer.
type Remote interface {
	// Project returns the named project with its development focus.
	Project(ctx context.Context, name string) (*types.Project, error)

	// Milestone returns a milestone of project by name.
	Milestone(ctx context.Context, project, name string) (*types.Milestone, error)

	// Series returns a series of project by name.
	Series(ctx context.Context, project, name string) (*types.Series, error)

	// Issue returns the issue with all of its live entries, across projects.
	Issue(ctx context.Context, id int) (*types.Issue, error)

	// AddEntry creates an entry of issue for target and returns it.
	AddEntry(ctx context.Context, issue *types.Issue, target string) (*types.Entry, error)

	// SaveEntry persists the copy-fields of an existing entry in a single
	// call.
	SaveEntry(ctx context.Context, entry *types.Entry) error

	// SearchEntries lists the entries of project; used by the importer only.
	SearchEntries(ctx context.Context, project string, opts SearchOptions) ([]*types.Entry, error)

	// WebLink returns the human-facing URL of an issue.
	WebLink(id int) string
}

// SearchOptions narrows Remote.SearchEntries.
type SearchOptions struct {
	// Statuses empty means every status.
	Statuses      []types.Status
	ModifiedSince time.Time
}
