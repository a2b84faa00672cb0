package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lp-tools/lpmigrate/internal/storage/memory"
	"github.com/lp-tools/lpmigrate/internal/storage/sqlstore"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, "memory://", nil)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, s)
	})

	t.Run("sqlite scheme", func(t *testing.T) {
		s, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "c.db"), nil)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		assert.IsType(t, &sqlstore.Store{}, s)
	})

	t.Run("bare path", func(t *testing.T) {
		s, err := Open(ctx, filepath.Join(t.TempDir(), "c.db"), nil)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		assert.IsType(t, &sqlstore.Store{}, s)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := Open(ctx, "redis://localhost", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "supported: dolt, memory, mysql, sqlite")
	})

	t.Run("dolt without directory", func(t *testing.T) {
		_, err := Open(ctx, "dolt://?database=x", nil)
		require.Error(t, err)
	})
}
