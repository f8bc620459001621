// ABOUTME: Tests for the structured log store
// ABOUTME: Covers level gating, tool wrappers, filtered queries, count, and trim

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_Insert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Info(ctx, "server started", map[string]any{"addr": ":8090"}))

	entries, err := store.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, LevelInfo, e.Level)
	assert.Equal(t, ":8090", e.Metadata["addr"])
	assert.False(t, e.Timestamp.IsZero())
}

func TestLog_MessageNotPersisted(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Info(ctx, "this text has no column", nil))

	entries, err := store.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Only structured context fields persist; the message is gone
	assert.Empty(t, entries[0].Tool)
	assert.Nil(t, entries[0].Metadata)
}

func TestLog_LevelGating(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"), Options{MinLogLevel: LevelWarn})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Debug(ctx, "dropped", nil))
	require.NoError(t, store.Info(ctx, "dropped", nil))
	require.NoError(t, store.Warn(ctx, "kept", nil))

	count, err := store.Count(ctx, LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	entries, err := store.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, LevelWarn, entries[0].Level)
}

func TestLog_LogTool(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.LogTool(ctx, "tg_send_message", "call",
		map[string]any{"chat_id": "c1", "text": "hi"},
		map[string]any{"message_id": "m9"},
		42*time.Millisecond,
		&LogContext{SessionID: "sess-1", ServerID: "srv-1"},
	)
	require.NoError(t, err)

	entries, err := store.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, LevelInfo, e.Level)
	assert.Equal(t, "tg_send_message", e.Tool)
	assert.Equal(t, "call", e.Action)
	assert.Equal(t, "c1", e.Arguments["chat_id"])
	assert.Equal(t, "m9", e.Result["message_id"])
	assert.Equal(t, "sess-1", e.SessionID)
	assert.Equal(t, "srv-1", e.ServerID)
	require.NotNil(t, e.Duration)
	assert.Equal(t, 42*time.Millisecond, *e.Duration)
	assert.Empty(t, e.Error)
}

func TestLog_LogToolError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.LogToolError(ctx, "tg_login", "call",
		map[string]any{"phone": "+15550000000"},
		errors.New("not authenticated"),
		7*time.Millisecond,
		nil,
	)
	require.NoError(t, err)

	entries, err := store.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, LevelError, e.Level)
	assert.Equal(t, "tg_login", e.Tool)
	assert.Equal(t, "not authenticated", e.Error)
}

// seedLogEntries inserts n info entries with ascending timestamps, sleeping
// between writes so timestamp ordering is unambiguous at ms resolution.
func seedLogEntries(t *testing.T, store *SQLiteStore, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, store.Info(ctx, "seed", map[string]any{"seq": i}))
		time.Sleep(2 * time.Millisecond)
	}
}

func TestLog_Query_OrderAndPagination(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seedLogEntries(t, store, 5)

	entries, err := store.Query(ctx, LogQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first
	assert.Equal(t, float64(4), entries[0].Metadata["seq"])
	assert.Equal(t, float64(3), entries[1].Metadata["seq"])

	entries, err = store.Query(ctx, LogQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, float64(2), entries[0].Metadata["seq"])
}

func TestLog_Query_ByLevelAndTool(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Warn(ctx, "w", nil))
	require.NoError(t, store.LogTool(ctx, "tg_list_chats", "call", nil, nil, time.Millisecond, nil))
	require.NoError(t, store.LogTool(ctx, "tg_get_me", "call", nil, nil, time.Millisecond, nil))

	level := LevelWarn
	entries, err := store.Query(ctx, LogQuery{Level: &level})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, LevelWarn, entries[0].Level)

	tool := "tg_list_chats"
	entries, err = store.Query(ctx, LogQuery{Tool: &tool})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tg_list_chats", entries[0].Tool)

	// Predicates are conjunctive: warn entries have no tool
	entries, err = store.Query(ctx, LogQuery{Level: &level, Tool: &tool})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_Query_InvalidLevelMatchesNothing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Info(ctx, "x", nil))

	level := LogLevel("bogus")
	entries, err := store.Query(ctx, LogQuery{Level: &level})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_Query_DateRange(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Millisecond)
	seedLogEntries(t, store, 3)
	after := time.Now().Add(time.Millisecond)

	entries, err := store.Query(ctx, LogQuery{Since: &before, Until: &after})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = store.Query(ctx, LogQuery{Since: &after})
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = store.Query(ctx, LogQuery{Until: &before})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_Query_BySession(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Log(ctx, LevelInfo, "a", &LogContext{SessionID: "s1"}))
	require.NoError(t, store.Log(ctx, LevelInfo, "b", &LogContext{SessionID: "s2"}))
	require.NoError(t, store.Log(ctx, LevelInfo, "c", &LogContext{SessionID: "s1"}))

	session := "s1"
	count, err := store.Count(ctx, LogQuery{SessionID: &session})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestLog_Count_IgnoresPagination(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seedLogEntries(t, store, 4)

	count, err := store.Count(ctx, LogQuery{Limit: 1, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestLog_Trim(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seedLogEntries(t, store, 10)

	removed, err := store.Trim(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), removed)

	entries, err := store.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// The five most recent by timestamp survive
	for i, e := range entries {
		assert.Equal(t, float64(9-i), e.Metadata["seq"])
	}
}

func TestLog_Trim_ZeroDeletesEverything(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seedLogEntries(t, store, 3)

	removed, err := store.Trim(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	count, err := store.Count(ctx, LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestLog_Trim_UnderLimitIsNoop(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seedLogEntries(t, store, 3)

	removed, err := store.Trim(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestLog_Clear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seedLogEntries(t, store, 3)
	require.NoError(t, store.ClearLogs(ctx))

	count, err := store.Count(ctx, LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
