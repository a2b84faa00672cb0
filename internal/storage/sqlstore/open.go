package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) a SQLite cache at path.
func OpenSQLite(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite cache path is empty")
	}
	if !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteConnString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	// SQLite is single-writer.
	db.SetMaxOpenConns(1)

	return newStore(ctx, db, sqliteDialect, false, log)
}

// OpenMySQL connects to a MySQL-protocol server (MySQL or a Dolt sql-server)
// using a go-sql-driver DSN such as "root@tcp(127.0.0.1:3306)/lpcache". The
// database is created if it does not exist.
func OpenMySQL(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql DSN: %w", err)
	}
	if err := validateDatabaseName(cfg.DBName); err != nil {
		return nil, fmt.Errorf("invalid database name %q: %w", cfg.DBName, err)
	}
	cfg.ParseTime = true

	if err := createServerDatabase(ctx, cfg); err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Addr, err)
	}
	return newStore(ctx, db, mysqlDialect, true, log)
}

func createServerDatabase(ctx context.Context, cfg *mysql.Config) error {
	initCfg := cfg.Clone()
	initCfg.DBName = ""
	connector, err := mysql.NewConnector(initCfg)
	if err != nil {
		return fmt.Errorf("failed to create mysql connector: %w", err)
	}
	initDB := sql.OpenDB(connector)
	defer func() { _ = initDB.Close() }()

	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.DBName)) //nolint:gosec // G201: validated by validateDatabaseName
	if err != nil {
		// Dolt may return error 1007 even with IF NOT EXISTS.
		errLower := strings.ToLower(err.Error())
		if !strings.Contains(errLower, "database exists") && !strings.Contains(errLower, "1007") {
			return fmt.Errorf("failed to create database %s on %s: %w", cfg.DBName, cfg.Addr, err)
		}
	}
	return nil
}

var databaseNameRE = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

func validateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("database name is required")
	}
	if len(name) > 64 || !databaseNameRE.MatchString(name) {
		return fmt.Errorf("database name must be at most 64 letters, digits, '_' or '-'")
	}
	return nil
}
