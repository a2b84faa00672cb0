// Package storage defines the cache store: a point-in-time mirror of remote
// tracking entries, one row per (issue, target).
//
// The concrete implementations live in the sqlstore and memory sub-packages.
// The engine only reads from the store; the importer writes to it.
package storage

import (
	"context"
	"errors"

	"github.com/lp-tools/lpmigrate/internal/types"
)

// ErrNotFound is returned when a requested meta key does not exist.
var ErrNotFound = errors.New("not found")

// Reader is the read side of the cache used by the candidate index.
type Reader interface {
	// Rows returns every cached row of project that satisfies filter,
	// ordered by bug id then target.
	Rows(ctx context.Context, project string, filter types.Filter) ([]types.CacheRow, error)
}

// Store is the full cache store interface.
type Store interface {
	Reader

	// Upsert inserts or replaces rows keyed by (bug id, target).
	Upsert(ctx context.Context, rows []types.CacheRow) error

	// GetMeta returns ErrNotFound if key was never set.
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	Close() error
}

// Committer is implemented by versioned backends that can record a snapshot
// after an import.
type Committer interface {
	Commit(ctx context.Context, message string) error
}

// LastImportKey is the meta key holding the last import time of a project.
func LastImportKey(project string) string {
	return "last_import." + project
}
