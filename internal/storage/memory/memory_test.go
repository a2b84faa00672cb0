package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/types"
)

func TestStoreRowsOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []types.CacheRow{
		{Project: "fuel", BugID: 300, Target: "fuel/9.0", Milestone: "6.9", Status: "New"},
		{Project: "fuel", BugID: 100, Target: "fuel/10.0", Milestone: "6.9", Status: "New"},
		{Project: "fuel", BugID: 100, Target: "fuel", Milestone: "6.9", Status: "New"},
		{Project: "mos", BugID: 50, Target: "mos", Milestone: "6.9", Status: "New"},
	}))
	assert.Equal(t, 4, s.Len())

	rows, err := s.Rows(ctx, "fuel", types.Filter{"milestone": {"6.9"}})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 100, rows[0].BugID)
	assert.Equal(t, "fuel", rows[0].Target)
	assert.Equal(t, "fuel/10.0", rows[1].Target)
	assert.Equal(t, 300, rows[2].BugID)
}

func TestStoreUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := New()
	row := types.CacheRow{Project: "fuel", BugID: 1, Target: "fuel", Status: "New"}
	require.NoError(t, s.Upsert(ctx, []types.CacheRow{row}))
	row.Status = "Triaged"
	require.NoError(t, s.Upsert(ctx, []types.CacheRow{row}))

	assert.Equal(t, 1, s.Len())
	rows, err := s.Rows(ctx, "fuel", types.Filter{"status": {"Triaged"}})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	assert.Error(t, s.Upsert(ctx, []types.CacheRow{{Project: "fuel"}}))
}

func TestStoreMeta(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.GetMeta(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetMeta(ctx, "k", "v"))
	v, err := s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
