//go:build integration

package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/lp-tools/lpmigrate/internal/types"
)

func TestDoltServerCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := dolt.Run(ctx, "dolthub/dolt-sql-server:1.32.4",
		dolt.WithDatabase("lpcache"),
		dolt.WithUsername("lpmigrate"),
		dolt.WithPassword("secret"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := OpenMySQL(ctx, dsn, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Upsert(ctx, seedRows()))
	require.NoError(t, s.Upsert(ctx, seedRows()), "upsert must be repeatable")

	rows, err := s.Rows(ctx, "fuel", types.Filter{"milestone": {"6.9"}, "status": {"New"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "fuel", rows[0].Target)
	assert.Equal(t, "fuel/10.0", rows[1].Target)

	require.NoError(t, s.SetMeta(ctx, "last_import.fuel", "2026-10-01T00:00:00Z"))
	v, err := s.GetMeta(ctx, "last_import.fuel")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-01T00:00:00Z", v)
}
