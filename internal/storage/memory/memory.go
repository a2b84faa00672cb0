// Package memory implements an in-process cache store, used by tests and by
// dry runs that do not need a persistent cache.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/types"
)

type rowKey struct {
	bugID  int
	target string
}

// Store holds cache rows in a map keyed by (bug id, target).
type Store struct {
	mu   sync.RWMutex
	rows map[rowKey]types.CacheRow
	meta map[string]string
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		rows: make(map[rowKey]types.CacheRow),
		meta: make(map[string]string),
	}
}

// Rows returns the rows of project that satisfy filter, ordered by bug id
// then target.
func (s *Store) Rows(_ context.Context, project string, filter types.Filter) ([]types.CacheRow, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.CacheRow
	for _, r := range s.rows {
		if r.Project == project && filter.MatchRow(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BugID != out[j].BugID {
			return out[i].BugID < out[j].BugID
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

// Upsert inserts or replaces rows.
func (s *Store) Upsert(_ context.Context, rows []types.CacheRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if r.BugID <= 0 || r.Target == "" {
			return fmt.Errorf("invalid cache row: bug %d target %q", r.BugID, r.Target)
		}
		s.rows[rowKey{r.BugID, r.Target}] = r
	}
	return nil
}

func (s *Store) GetMeta(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.meta[key]
	if !ok {
		return "", fmt.Errorf("meta %q: %w", key, storage.ErrNotFound)
	}
	return v, nil
}

func (s *Store) SetMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta[key] = value
	return nil
}

// Len returns the number of cached rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *Store) Close() error { return nil }
