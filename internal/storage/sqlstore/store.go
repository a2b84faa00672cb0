// Package sqlstore implements the cache store on database/sql. SQLite
// (modernc.org/sqlite), MySQL and Dolt sql-server (go-sql-driver/mysql) and
// embedded Dolt (dolthub/driver, cgo builds only) share one implementation and
// differ only in their dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/types"
)

// Store is a cache store backed by a SQL database.
type Store struct {
	db        *sql.DB
	dialect   dialect
	connector io.Closer // embedded Dolt only; releases filesystem locks
	remote    bool      // server connection; transient errors are retried
	log       *slog.Logger
}

var (
	_ storage.Store     = (*Store)(nil)
	_ storage.Committer = (*Store)(nil)
)

func newStore(ctx context.Context, db *sql.DB, d dialect, remote bool, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Store{db: db, dialect: d, remote: remote, log: log}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize %s schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

// Rows returns the cached rows of project that satisfy filter.
func (s *Store) Rows(ctx context.Context, project string, filter types.Filter) ([]types.CacheRow, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	query, args := buildRowsQuery(project, filter)

	var out []types.CacheRow
	err := s.withRetry(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				r                   types.CacheRow
				milestone, assignee sql.NullString
			)
			if err := rows.Scan(&r.Project, &r.BugID, &r.Target, &milestone, &r.Status, &r.Importance, &assignee); err != nil {
				return err
			}
			r.Milestone = milestone.String
			r.Assignee = assignee.String
			// SQL narrows the scan; MatchRow is the authoritative test.
			if filter.MatchRow(r) {
				out = append(out, r)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query bug_tasks: %w", err)
	}
	return out, nil
}

func buildRowsQuery(project string, filter types.Filter) (string, []any) {
	var (
		sb   strings.Builder
		args = []any{project}
	)
	sb.WriteString(`SELECT project, bug_id, target, milestone, status, importance, assignee
FROM bug_tasks WHERE project = ?`)

	p := types.Project{Name: project}
	for _, field := range filter.Fields() {
		var (
			values    []string
			allowNull bool
		)
		for _, v := range filter[field] {
			switch field {
			case "target":
				if v != "" {
					v = p.Qualify(v)
				}
			case "milestone":
				v = strings.TrimPrefix(v, project+"/+milestone/")
			case "assignee":
				v = types.NormalizeAssignee(v)
			}
			if v == "" {
				allowNull = true
				continue
			}
			values = append(values, v)
		}

		// field names are validated against types.FilterFields and match
		// the column names
		var terms []string
		if len(values) > 0 {
			terms = append(terms, field+" IN ("+placeholders(len(values))+")")
			for _, v := range values {
				args = append(args, v)
			}
		}
		if allowNull {
			terms = append(terms, field+" IS NULL", field+" = ''")
		}
		sb.WriteString(" AND (" + strings.Join(terms, " OR ") + ")")
	}
	sb.WriteString(" ORDER BY bug_id, target")
	return sb.String(), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Upsert writes rows in a single transaction, replacing existing rows with
// the same (bug id, target).
func (s *Store) Upsert(ctx context.Context, rows []types.CacheRow) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, s.dialect.upsertRow)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx,
				r.Project, r.BugID, r.Target,
				nullString(r.Milestone), r.Status, r.Importance,
				nullString(r.Assignee),
			); err != nil {
				return fmt.Errorf("bug %d target %s: %w", r.BugID, r.Target, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("failed to upsert bug_tasks: %w", err)
	}
	return nil
}

// GetMeta returns the value stored under key.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.withRetry(ctx, func() error {
		err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = ?`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return backoff.Permanent(storage.ErrNotFound)
		}
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("meta %q: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta stores value under key.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, s.dialect.upsertMeta, key, value)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write meta %q: %w", key, err)
	}
	return nil
}

// Commit records a Dolt commit of the working set. It is a no-op for
// unversioned dialects and when there is nothing to commit.
func (s *Store) Commit(ctx context.Context, message string) error {
	if !s.dialect.versioned {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "CALL DOLT_COMMIT('-Am', ?)", message)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "nothing to commit") {
		return fmt.Errorf("failed to commit cache snapshot: %w", err)
	}
	return nil
}

// Close releases the database and, for embedded Dolt, its filesystem locks.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.connector != nil {
		if cerr := closeWithTimeout("dolt connector", s.connector.Close); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

const serverRetryMaxElapsed = 30 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// withRetry retries transient connection errors against a server. Local
// databases run op once.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	if !s.remote {
		err := op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	bo := newServerRetryBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			s.log.Debug("retrying cache query", "err", err)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// isRetryableError reports whether err is a transient connection error.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, transient := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is read only",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	return false
}

// closeWithTimeout runs closeFn with a deadline; embedded Dolt can hang on
// shutdown.
func closeWithTimeout(name string, closeFn func() error) error {
	const closeTimeout = 5 * time.Second
	done := make(chan error, 1)
	go func() {
		done <- closeFn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(closeTimeout):
		return fmt.Errorf("%s close timed out after %v", name, closeTimeout)
	}
}
