// Package importer mirrors the live entries of a project into the cache
// store, so the candidate index can find issues without asking the remote.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/timeparsing"
	"github.com/lp-tools/lpmigrate/internal/tracker"
	"github.com/lp-tools/lpmigrate/internal/types"
)

const (
	// DefaultConcurrency bounds parallel issue fetches.
	DefaultConcurrency = 8

	progressEvery = 100
	upsertBatch   = 500
)

// Options contains import configuration
type Options struct {
	Statuses    []types.Status // Entry statuses to search (all when empty)
	Since       time.Time      // Only entries modified since (zero means all)
	Concurrency int            // Parallel issue fetches (default 8)
	DryRun      bool           // Fetch and count, but leave the cache untouched
}

// Result contains statistics about the import operation
type Result struct {
	Project   string
	Issues    int   // Distinct issues found by the search
	Rows      int   // Cache rows written (or that would be written)
	Failed    int   // Issues that could not be fetched
	FailedIDs []int // Ids of those issues, ascending
	Started   time.Time
}

// Importer fills a cache store from a remote.
type Importer struct {
	remote tracker.Remote
	store  storage.Store
	log    *slog.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// New returns an importer writing to store.
func New(remote tracker.Remote, store storage.Store, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Importer{remote: remote, store: store, log: log, Now: time.Now}
}

// Import searches the entries of project, fetches every matching issue
// with all of its live entries, and upserts one row per entry that belongs
// to project. The last import time is recorded only when every issue was
// fetched.
func (im *Importer) Import(ctx context.Context, project string, opts Options) (*Result, error) {
	result := &Result{Project: project, Started: im.Now().UTC()}

	entries, err := im.remote.SearchEntries(ctx, project, tracker.SearchOptions{
		Statuses:      opts.Statuses,
		ModifiedSince: opts.Since,
	})
	if err != nil {
		return nil, fmt.Errorf("search entries of %s: %w", project, err)
	}
	ids := issueIDs(entries)
	result.Issues = len(ids)
	im.log.Info("importing issues", "project", project, "issues", len(ids), "since", sinceString(opts.Since))

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var (
		mu     sync.Mutex
		rows   []types.CacheRow
		failed []int
		done   atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			issue, err := im.remote.Issue(gctx, id)
			if n := done.Add(1); n%progressEvery == 0 {
				im.log.Info("import progress", "project", project, "done", n, "total", len(ids))
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				im.log.Warn("failed to fetch issue", "bug", id, "error", err)
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
				return nil
			}
			own := projectRows(issue, project)
			mu.Lock()
			rows = append(rows, own...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Ints(failed)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BugID != rows[j].BugID {
			return rows[i].BugID < rows[j].BugID
		}
		return rows[i].Target < rows[j].Target
	})
	result.Failed = len(failed)
	result.FailedIDs = failed
	result.Rows = len(rows)

	if opts.DryRun {
		im.log.Info("dry run, cache not written", "project", project, "rows", len(rows))
		return result, nil
	}

	for start := 0; start < len(rows); start += upsertBatch {
		end := min(start+upsertBatch, len(rows))
		if err := im.store.Upsert(ctx, rows[start:end]); err != nil {
			return nil, fmt.Errorf("write cache rows of %s: %w", project, err)
		}
	}

	if len(failed) == 0 {
		if err := im.store.SetMeta(ctx, storage.LastImportKey(project), result.Started.Format(time.RFC3339)); err != nil {
			return nil, fmt.Errorf("record last import of %s: %w", project, err)
		}
	} else {
		im.log.Warn("last import time not recorded", "project", project, "failed", len(failed))
	}

	if c, ok := im.store.(storage.Committer); ok {
		msg := fmt.Sprintf("lpmigrate import %s: %d rows", project, len(rows))
		if err := c.Commit(ctx, msg); err != nil {
			return nil, err
		}
	}

	im.log.Info("import finished", "project", project, "issues", result.Issues, "rows", result.Rows, "failed", result.Failed)
	return result, nil
}

// LastImport returns the recorded last import time of project, or the zero
// time when the project was never imported.
func (im *Importer) LastImport(ctx context.Context, project string) (time.Time, error) {
	v, err := im.store.GetMeta(ctx, storage.LastImportKey(project))
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last import time %q of %s: %w", v, project, err)
	}
	return t, nil
}

// ResolveSince turns a --since expression into a time. "last" means the
// recorded last import of project; an empty expression means no bound.
func (im *Importer) ResolveSince(ctx context.Context, project, expr string) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "":
		return time.Time{}, nil
	case "last":
		return im.LastImport(ctx, project)
	}
	return timeparsing.ParseRelativeTime(expr, im.Now())
}

func issueIDs(entries []*types.Entry) []int {
	seen := make(map[int]bool, len(entries))
	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		if e.IssueID <= 0 || seen[e.IssueID] {
			continue
		}
		seen[e.IssueID] = true
		ids = append(ids, e.IssueID)
	}
	sort.Ints(ids)
	return ids
}

func projectRows(issue *types.Issue, project string) []types.CacheRow {
	var rows []types.CacheRow
	for _, e := range issue.Entries {
		if e.Project != project {
			continue
		}
		rows = append(rows, types.RowFromEntry(e))
	}
	return rows
}

func sinceString(t time.Time) string {
	if t.IsZero() {
		return "all"
	}
	return t.Format(time.RFC3339)
}
