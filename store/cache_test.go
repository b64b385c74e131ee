package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func newTestCache(t *testing.T) (*CacheBackend, *time.Time) {
	t.Helper()
	cache := NewCacheBackend(newTestManager(t), 0)
	now := time.Now()
	cache.now = func() time.Time { return now }
	return cache, &now
}

// TestCacheBackend_FreshnessMonotonicity tests that a fresh write is fresh
// until the TTL elapses and stale afterwards
func TestCacheBackend_FreshnessMonotonicity(t *testing.T) {
	ctx := context.Background()
	cache, now := newTestCache(t)

	key := CacheKey(DataTypeCodeReviews, "gitlab", SubsectionAssigned)
	cache.Set(ctx, key, []byte(`[{"id":"1"}]`), 300*time.Second, DataTypeCodeReviews, "gitlab", SubsectionAssigned)

	assert.True(t, cache.IsFresh(ctx, key))

	*now = now.Add(299 * time.Second)
	assert.True(t, cache.IsFresh(ctx, key))

	*now = now.Add(2 * time.Second)
	assert.False(t, cache.IsFresh(ctx, key))
}

// TestCacheBackend_StaleReachability tests that accept_stale reads return
// the payload regardless of expiry until replaced or invalidated
func TestCacheBackend_StaleReachability(t *testing.T) {
	ctx := context.Background()
	cache, now := newTestCache(t)

	key := CacheKey(DataTypeWorkItems, "jira", "")
	payload := []byte(`[{"adapter_type":"jira","key":"PROJ-1"}]`)
	cache.Set(ctx, key, payload, time.Second, DataTypeWorkItems, "jira", "")

	// Long past expiry
	*now = now.Add(24 * time.Hour)

	got, ok := cache.Get(ctx, key, true)
	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(got))

	// Strict read misses once expired
	_, ok = cache.Get(ctx, key, false)
	assert.False(t, ok)

	// Replacement swaps the payload atomically
	replacement := []byte(`[{"adapter_type":"jira","key":"PROJ-2"}]`)
	cache.Set(ctx, key, replacement, time.Second, DataTypeWorkItems, "jira", "")
	got, ok = cache.Get(ctx, key, true)
	require.True(t, ok)
	assert.JSONEq(t, string(replacement), string(got))

	// Invalidation removes it entirely
	cache.Invalidate(ctx, DataTypeWorkItems, "jira")
	_, ok = cache.Get(ctx, key, true)
	assert.False(t, ok)
}

// TestCacheBackend_InvalidationScope tests the four invalidation scopes
func TestCacheBackend_InvalidationScope(t *testing.T) {
	ctx := context.Background()

	seed := func(cache *CacheBackend) {
		cache.Set(ctx, "code_reviews:gitlab:assigned", []byte(`[]`), time.Minute, DataTypeCodeReviews, "gitlab", SubsectionAssigned)
		cache.Set(ctx, "code_reviews:github:assigned", []byte(`[]`), time.Minute, DataTypeCodeReviews, "github", SubsectionAssigned)
		cache.Set(ctx, "work_items:jira", []byte(`[]`), time.Minute, DataTypeWorkItems, "jira", "")
		cache.Set(ctx, "work_items:gitlab", []byte(`[]`), time.Minute, DataTypeWorkItems, "gitlab", "")
	}

	has := func(cache *CacheBackend, key string) bool {
		_, ok := cache.Info(ctx, key)
		return ok
	}

	t.Run("exact data type and provider", func(t *testing.T) {
		cache, _ := newTestCache(t)
		seed(cache)
		cache.Invalidate(ctx, DataTypeCodeReviews, "gitlab")
		assert.False(t, has(cache, "code_reviews:gitlab:assigned"))
		assert.True(t, has(cache, "code_reviews:github:assigned"))
		assert.True(t, has(cache, "work_items:gitlab"))
	})

	t.Run("whole data type", func(t *testing.T) {
		cache, _ := newTestCache(t)
		seed(cache)
		cache.Invalidate(ctx, DataTypeCodeReviews, "")
		assert.False(t, has(cache, "code_reviews:gitlab:assigned"))
		assert.False(t, has(cache, "code_reviews:github:assigned"))
		assert.True(t, has(cache, "work_items:jira"))
	})

	t.Run("whole provider", func(t *testing.T) {
		cache, _ := newTestCache(t)
		seed(cache)
		cache.Invalidate(ctx, "", "gitlab")
		assert.False(t, has(cache, "code_reviews:gitlab:assigned"))
		assert.False(t, has(cache, "work_items:gitlab"))
		assert.True(t, has(cache, "work_items:jira"))
	})

	t.Run("everything", func(t *testing.T) {
		cache, _ := newTestCache(t)
		seed(cache)
		cache.Invalidate(ctx, "", "")
		assert.False(t, has(cache, "code_reviews:gitlab:assigned"))
		assert.False(t, has(cache, "code_reviews:github:assigned"))
		assert.False(t, has(cache, "work_items:jira"))
		assert.False(t, has(cache, "work_items:gitlab"))
	})

	t.Run("no matching rows still succeeds", func(t *testing.T) {
		cache, _ := newTestCache(t)
		cache.Invalidate(ctx, DataTypeCodeReviews, "nonexistent")
	})
}

// TestCacheBackend_RecordError tests error annotation without payload loss
func TestCacheBackend_RecordError(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	key := "code_reviews:gitlab:assigned"
	payload := []byte(`[{"id":"1"}]`)
	cache.Set(ctx, key, payload, time.Minute, DataTypeCodeReviews, "gitlab", SubsectionAssigned)

	cache.RecordError(ctx, key, "upstream timeout")

	info, ok := cache.Info(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "upstream timeout", info.LastError)

	// Payload still serves
	got, ok := cache.Get(ctx, key, false)
	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(got))
}

// TestCacheBackend_Info tests the metadata view
func TestCacheBackend_Info(t *testing.T) {
	ctx := context.Background()
	cache, now := newTestCache(t)

	key := "code_reviews:gitlab:assigned"
	cache.Set(ctx, key, []byte(`[]`), 300*time.Second, DataTypeCodeReviews, "gitlab", SubsectionAssigned)

	info, ok := cache.Info(ctx, key)
	require.True(t, ok)
	assert.Equal(t, key, info.CacheKey)
	assert.Equal(t, DataTypeCodeReviews, info.DataType)
	assert.Equal(t, "gitlab", info.Provider)
	assert.Equal(t, SubsectionAssigned, info.Subsection)
	assert.Equal(t, 300*time.Second, info.TTL)
	assert.Equal(t, 1, info.FetchCount)
	assert.True(t, info.IsValid)
	assert.Empty(t, info.LastError)
	assert.WithinDuration(t, *now, info.CachedAt, 2*time.Second)
	assert.WithinDuration(t, now.Add(300*time.Second), info.ExpiresAt, 2*time.Second)

	_, ok = cache.Info(ctx, "missing:key")
	assert.False(t, ok)
}

// TestCacheBackend_SetResetsFetchCountAndError tests full replacement
func TestCacheBackend_SetResetsFetchCountAndError(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	key := "work_items:jira"
	cache.Set(ctx, key, []byte(`[]`), time.Minute, DataTypeWorkItems, "jira", "")
	cache.RecordError(ctx, key, "boom")

	cache.Set(ctx, key, []byte(`[{"adapter_type":"jira"}]`), time.Minute, DataTypeWorkItems, "jira", "")

	info, ok := cache.Info(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 1, info.FetchCount)
	assert.Empty(t, info.LastError)
}

// TestCacheBackend_Compaction tests that old rows are removed on write
func TestCacheBackend_Compaction(t *testing.T) {
	ctx := context.Background()
	cache, now := newTestCache(t)

	cache.Set(ctx, "work_items:old", []byte(`[]`), time.Minute, DataTypeWorkItems, "old", "")

	// Jump past the cleanup window; the next write compacts the old row
	*now = now.AddDate(0, 0, DefaultCleanupDays+1)
	cache.Set(ctx, "work_items:new", []byte(`[]`), time.Minute, DataTypeWorkItems, "new", "")

	_, ok := cache.Info(ctx, "work_items:old")
	assert.False(t, ok)
	_, ok = cache.Info(ctx, "work_items:new")
	assert.True(t, ok)
}

// TestCacheBackend_MalformedPayload tests that an unreadable payload reads
// as a miss instead of an error
func TestCacheBackend_MalformedPayload(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	key := "work_items:jira"
	cache.Set(ctx, key, []byte(`[]`), time.Minute, DataTypeWorkItems, "jira", "")

	// Corrupt the stored payload directly
	err := cache.manager.DB().Exec("UPDATE cached_data SET payload = ? WHERE cache_key = ?", `{"not":"a list"}`, key).Error
	require.NoError(t, err)

	_, ok := cache.Get(ctx, key, true)
	assert.False(t, ok)
}
