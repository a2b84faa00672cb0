// Package factory opens a cache store from a URL.
//
//	sqlite:///var/cache/lpmigrate/cache.db   (or a bare file path)
//	mysql://root@tcp(127.0.0.1:3306)/lpcache
//	dolt:///var/cache/lpmigrate/dolt?database=lpcache
//	memory://
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/storage/memory"
	"github.com/lp-tools/lpmigrate/internal/storage/sqlstore"
)

// DefaultDoltDatabase is used when a dolt:// URL names no database.
const DefaultDoltDatabase = "lpcache"

// BackendFactory opens a store from the remainder of a cache URL.
type BackendFactory func(ctx context.Context, rest string, log *slog.Logger) (storage.Store, error)

var backendRegistry = map[string]BackendFactory{
	"sqlite": func(ctx context.Context, rest string, log *slog.Logger) (storage.Store, error) {
		return sqlstore.OpenSQLite(ctx, rest, log)
	},
	"mysql": func(ctx context.Context, rest string, log *slog.Logger) (storage.Store, error) {
		return sqlstore.OpenMySQL(ctx, rest, log)
	},
	"dolt": openDolt,
	"memory": func(context.Context, string, *slog.Logger) (storage.Store, error) {
		return memory.New(), nil
	},
}

// RegisterBackend registers a store factory for a URL scheme.
func RegisterBackend(scheme string, factory BackendFactory) {
	backendRegistry[scheme] = factory
}

// Open opens the store named by rawURL. A value without a scheme is a SQLite
// file path.
func Open(ctx context.Context, rawURL string, log *slog.Logger) (storage.Store, error) {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		scheme, rest = "sqlite", rawURL
	}
	factory, ok := backendRegistry[scheme]
	if !ok {
		return nil, fmt.Errorf("unknown cache backend %q (supported: %s)", scheme, strings.Join(schemes(), ", "))
	}
	store, err := factory(ctx, rest, log)
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", scheme, err)
	}
	return store, nil
}

func openDolt(ctx context.Context, rest string, log *slog.Logger) (storage.Store, error) {
	dir, query, _ := strings.Cut(rest, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("invalid dolt cache URL: %w", err)
	}
	database := values.Get("database")
	if database == "" {
		database = DefaultDoltDatabase
	}
	if dir == "" {
		return nil, fmt.Errorf("dolt cache URL names no directory")
	}
	return sqlstore.OpenDolt(ctx, dir, database, log)
}

func schemes() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
