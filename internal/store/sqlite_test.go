package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSQLiteStore_Contract(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "weather.db")
	s, err := NewSQLiteStore(dbPath, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	runStoreSuite(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "weather.db")

	s, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, record("stuttgart", "2024-05-02", false)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	defer reopened.Close()

	rows, err := reopened.FetchByStation(ctx, "stuttgart")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].ID)
	assert.Equal(t, "2024-05-02", rows[0].Time)
}
