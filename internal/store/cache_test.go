// ABOUTME: Tests for the TTL cache store
// ABOUTME: Covers upsert, lazy expiry, prefix clearing, stats, and cleanup

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "greeting", "hello", 0))

	var got string
	found, err := store.Get(ctx, "greeting", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", got)
}

func TestCache_Get_Missing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var got string
	found, err := store.Get(ctx, "nope", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Set_Overwrite(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v1", 0))
	require.NoError(t, store.Set(ctx, "k", "v2", 0))

	var got string
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v2", got)

	// Upsert, not append: still exactly one entry
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
}

func TestCache_StructValues(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	type chat struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	want := []chat{{ID: "c1", Title: "general"}, {ID: "c2", Title: "random"}}
	require.NoError(t, store.Set(ctx, "chats:all", want, time.Minute))

	var got []chat
	found, err := store.Get(ctx, "chats:all", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestCache_TTLExpiry(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ephemeral", "v", 100*time.Millisecond))

	var got string
	found, err := store.Get(ctx, "ephemeral", &got)
	require.NoError(t, err)
	assert.True(t, found, "entry should be live immediately after set")

	time.Sleep(150 * time.Millisecond)

	found, err = store.Get(ctx, "ephemeral", &got)
	require.NoError(t, err)
	assert.False(t, found, "entry should be expired")

	// Lazy expiry deletes the row as a side effect of the Get
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEntries)
}

func TestCache_NoTTL_NeverExpires(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "permanent", "v", 0))
	time.Sleep(50 * time.Millisecond)

	var got string
	found, err := store.Get(ctx, "permanent", &got)
	require.NoError(t, err)
	assert.True(t, found)

	// No TTL means Cleanup must not touch it either
	removed, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestCache_Delete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 0))

	existed, err := store.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestCache_Clear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", 1, 0))
	require.NoError(t, store.Set(ctx, "b", 2, 0))
	require.NoError(t, store.Clear(ctx))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEntries)
}

func TestCache_ClearPrefix(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user:1", "a", 0))
	require.NoError(t, store.Set(ctx, "user:2", "b", 0))
	require.NoError(t, store.Set(ctx, "config:1", "c", 0))

	require.NoError(t, store.ClearPrefix(ctx, "user:"))

	var got string
	found, err := store.Get(ctx, "user:1", &got)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = store.Get(ctx, "user:2", &got)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = store.Get(ctx, "config:1", &got)
	require.NoError(t, err)
	assert.True(t, found, "keys outside the prefix must survive")
}

func TestCache_ClearPrefix_LiteralMetacharacters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// A % in the prefix must match literally, not as a wildcard
	require.NoError(t, store.Set(ctx, "a%b:1", "x", 0))
	require.NoError(t, store.Set(ctx, "aXb:1", "y", 0))
	require.NoError(t, store.Set(ctx, "a_b:1", "z", 0))

	require.NoError(t, store.ClearPrefix(ctx, "a%b:"))

	var got string
	found, err := store.Get(ctx, "a%b:1", &got)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = store.Get(ctx, "aXb:1", &got)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.Get(ctx, "a_b:1", &got)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCache_HitMissAccounting(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 0))

	var got string
	for i := 0; i < 2; i++ {
		found, err := store.Get(ctx, "k", &got)
		require.NoError(t, err)
		require.True(t, found)
	}
	found, err := store.Get(ctx, "missing", &got)
	require.NoError(t, err)
	require.False(t, found)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)

	store.ResetStats()

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.HitCount)
	assert.Equal(t, int64(0), stats.MissCount)
}

func TestCache_Stats_Size(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// JSON-serialized "abc" is `"abc"`, 5 bytes
	require.NoError(t, store.Set(ctx, "k", "abc", 0))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.SizeBytes)
}

func TestCache_Cleanup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "stale-1", "v", 10*time.Millisecond))
	require.NoError(t, store.Set(ctx, "stale-2", "v", 10*time.Millisecond))
	require.NoError(t, store.Set(ctx, "fresh", "v", time.Minute))
	require.NoError(t, store.Set(ctx, "forever", "v", 0))

	time.Sleep(50 * time.Millisecond)

	// Expired rows remain physically present until a sweep or a Get
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalEntries)
	assert.Equal(t, int64(2), stats.ExpiredEntries)

	removed, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, int64(0), stats.ExpiredEntries)
}
