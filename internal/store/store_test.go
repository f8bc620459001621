package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, Options{MinLogLevel: LevelDebug})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestLevelPriority_Ordering(t *testing.T) {
	require.Less(t, levelPriority(LevelDebug), levelPriority(LevelInfo))
	require.Less(t, levelPriority(LevelInfo), levelPriority(LevelWarn))
	require.Less(t, levelPriority(LevelWarn), levelPriority(LevelError))
}

func TestLevelPriority_Unknown(t *testing.T) {
	// Unknown levels rank below debug so they are never persisted
	require.Less(t, levelPriority(LogLevel("verbose")), levelPriority(LevelDebug))
}
