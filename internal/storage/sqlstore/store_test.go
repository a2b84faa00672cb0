package sqlstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/types"
)

func newTestSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache", "bugs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRows() []types.CacheRow {
	return []types.CacheRow{
		{Project: "fuel", BugID: 100, Target: "fuel", Milestone: "6.9", Status: "New", Importance: "High"},
		{Project: "fuel", BugID: 100, Target: "fuel/10.0", Milestone: "6.9", Status: "New", Importance: "High"},
		{Project: "fuel", BugID: 200, Target: "fuel/9.0", Milestone: "6.9-mu-1", Status: "Confirmed", Importance: "Medium", Assignee: "jdoe"},
		{Project: "fuel", BugID: 300, Target: "fuel/9.0", Status: "Fix Released", Importance: "Low"},
		{Project: "mos", BugID: 400, Target: "mos", Milestone: "6.9", Status: "New", Importance: "High"},
	}
}

func TestSQLiteRowsFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, seedRows()))

	tests := []struct {
		name   string
		filter types.Filter
		want   []int
	}{
		{"all of project", types.Filter{}, []int{100, 100, 200, 300}},
		{"milestone", types.Filter{"milestone": {"6.9"}}, []int{100, 100}},
		{"qualified milestone", types.Filter{"milestone": {"fuel/+milestone/6.9"}}, []int{100, 100}},
		{"status set", types.Filter{"status": {"Confirmed", "Fix Released"}}, []int{200, 300}},
		{"unqualified target", types.Filter{"target": {"9.0"}}, []int{200, 300}},
		{"null milestone", types.Filter{"milestone": {""}}, []int{300}},
		{"assignee with tilde", types.Filter{"assignee": {"~jdoe"}}, []int{200}},
		{"no match", types.Filter{"importance": {"Wishlist"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Rows(ctx, "fuel", tt.filter)
			require.NoError(t, err)
			var ids []int
			for _, r := range rows {
				ids = append(ids, r.BugID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteUpsertReplacesByBugAndTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, seedRows()))

	updated := types.CacheRow{Project: "fuel", BugID: 300, Target: "fuel/9.0", Milestone: "8.0", Status: "Triaged", Importance: "Low"}
	require.NoError(t, s.Upsert(ctx, []types.CacheRow{updated}))

	rows, err := s.Rows(ctx, "fuel", types.Filter{"target": {"fuel/9.0"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, updated, rows[1])
}

func TestSQLiteRowsRejectsUnknownField(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.Rows(context.Background(), "fuel", types.Filter{"title; DROP TABLE bug_tasks": {"x"}})
	require.Error(t, err)
}

func TestSQLiteMeta(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, err := s.GetMeta(ctx, storage.LastImportKey("fuel"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetMeta(ctx, storage.LastImportKey("fuel"), "2026-01-01T00:00:00Z"))
	require.NoError(t, s.SetMeta(ctx, storage.LastImportKey("fuel"), "2026-02-01T00:00:00Z"))
	v, err := s.GetMeta(ctx, storage.LastImportKey("fuel"))
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T00:00:00Z", v)
}

func TestSQLiteCommitIsNoop(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Commit(context.Background(), "import"))
}

func TestBuildRowsQuery(t *testing.T) {
	query, args := buildRowsQuery("fuel", types.Filter{
		"milestone": {"6.9", ""},
		"target":    {"9.0"},
	})
	assert.True(t, strings.HasSuffix(query, "AND (milestone IN (?) OR milestone IS NULL OR milestone = '') AND (target IN (?)) ORDER BY bug_id, target"), query)
	assert.Equal(t, []any{"fuel", "6.9", "fuel/9.0"}, args)
}

func TestSQLiteConnString(t *testing.T) {
	assert.Equal(t, "", sqliteConnString("  "))
	assert.Equal(t, "file:/tmp/c.db?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)", sqliteConnString("/tmp/c.db"))
	assert.Equal(t, "file:/tmp/c.db?mode=ro&_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)", sqliteConnString("file:/tmp/c.db?mode=ro"))
}

func TestValidateDatabaseName(t *testing.T) {
	assert.NoError(t, validateDatabaseName("lpcache"))
	assert.NoError(t, validateDatabaseName("lp-cache_2"))
	assert.Error(t, validateDatabaseName(""))
	assert.Error(t, validateDatabaseName("lp`cache"))
	assert.Error(t, validateDatabaseName(strings.Repeat("a", 65)))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(assert.AnError))
	assert.True(t, isRetryableError(errString("dial tcp: connect: connection refused")))
	assert.True(t, isRetryableError(errString("driver: bad connection")))
	assert.False(t, isRetryableError(errString("Error 1064: syntax error")))
}

type errString string

func (e errString) Error() string { return string(e) }
