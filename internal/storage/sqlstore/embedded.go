//go:build cgo

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"
)

const embeddedOpenMaxElapsed = 30 * time.Second

func newEmbeddedOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = embeddedOpenMaxElapsed
	return bo
}

// OpenDolt opens an embedded Dolt database in dir, creating the directory
// and the database if needed. Each import is recorded as a Dolt commit.
func OpenDolt(ctx context.Context, dir, database string, log *slog.Logger) (*Store, error) {
	if err := validateDatabaseName(database); err != nil {
		return nil, fmt.Errorf("invalid database name %q: %w", database, err)
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("dolt cache path %q is a file, not a directory", dir)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create dolt cache directory: %w", err)
	}
	// The driver stacks its working directory onto relative paths.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	params := url.Values{}
	params.Set("commitname", "lpmigrate")
	params.Set("commitemail", "lpmigrate@localhost")
	initDSN := "file://" + absDir + "?" + params.Encode()
	params.Set("database", database)
	dbDSN := "file://" + absDir + "?" + params.Encode()

	if err := withEmbeddedDolt(ctx, initDSN, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database)) //nolint:gosec // G201: validated above
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to create dolt database: %w", err)
	}

	db, connector, err := openEmbeddedConnection(dbDSN)
	if err != nil {
		return nil, err
	}
	// The embedded driver reuses the session context of the first
	// connection; do not tie it to a caller context that may be canceled.
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("failed to ping dolt database: %w", err)
	}

	s, err := newStore(ctx, db, doltDialect, false, log)
	if err != nil {
		_ = connector.Close()
		return nil, err
	}
	s.connector = connector
	return s, nil
}

func openEmbeddedConnection(dsn string) (*sql.DB, *embedded.Connector, error) {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse dolt DSN: %w", err)
	}
	cfg.BackOff = newEmbeddedOpenBackoff()

	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create dolt connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// Embedded Dolt is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, connector, nil
}

func withEmbeddedDolt(ctx context.Context, dsn string, fn func(db *sql.DB) error) error {
	db, connector, err := openEmbeddedConnection(dsn)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
		_ = closeWithTimeout("dolt connector", connector.Close)
	}()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return fn(db)
}
