package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notaproblemdotdev/monodash/models"
	"github.com/notaproblemdotdev/monodash/sources"
)

// stubReviewSource is a scriptable code review source for tests.
type stubReviewSource struct {
	mu         sync.Mutex
	sourceType string
	available  bool
	authed     bool
	assigned   []models.CodeReview
	authored   []models.CodeReview
	err        error
	fetchCalls int
}

func newStubReviewSource(sourceType string) *stubReviewSource {
	return &stubReviewSource{sourceType: sourceType, available: true, authed: true}
}

func (s *stubReviewSource) SourceType() string               { return s.sourceType }
func (s *stubReviewSource) SourceIcon() string               { return "X" }
func (s *stubReviewSource) IsAvailable(context.Context) bool { return s.available }
func (s *stubReviewSource) CheckAuth(context.Context) bool   { return s.authed }

func (s *stubReviewSource) FetchAssigned(context.Context) ([]models.CodeReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.assigned, nil
}

func (s *stubReviewSource) FetchAuthored(context.Context) ([]models.CodeReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.authored, nil
}

func (s *stubReviewSource) FetchPendingReview(context.Context) ([]models.CodeReview, error) {
	return nil, nil
}

func (s *stubReviewSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

func (s *stubReviewSource) setAssigned(reviews []models.CodeReview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned = reviews
}

// stubItemSource is a scriptable work item source for tests.
type stubItemSource struct {
	sourceType string
	items      []models.WorkItem
	err        error
}

func (s *stubItemSource) SourceType() string               { return s.sourceType }
func (s *stubItemSource) SourceIcon() string               { return "X" }
func (s *stubItemSource) IsAvailable(context.Context) bool { return true }
func (s *stubItemSource) CheckAuth(context.Context) bool   { return true }

func (s *stubItemSource) FetchItems(context.Context) ([]models.WorkItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func review(id, sourceType string) models.CodeReview {
	return models.CodeReview{
		ID:          id,
		Key:         "!" + id,
		Title:       "Fix",
		State:       models.ReviewStateOpen,
		Author:      "alice",
		URL:         "u-" + id,
		AdapterType: sourceType,
		AdapterIcon: "X",
	}
}

func newTestWorkStore(t *testing.T, registry *sources.Registry, opts Options) (*WorkStore, *CacheBackend) {
	t.Helper()
	cache := NewCacheBackend(newTestManager(t), 0)
	health := NewSourceHealth(0, 0)
	workStore := NewWorkStore(registry, cache, health, opts)
	t.Cleanup(workStore.Close)
	return workStore, cache
}

// TestWorkStore_ColdStart covers the cold start path: empty cache, one
// source, successful fetch
func TestWorkStore_ColdStart(t *testing.T) {
	ctx := context.Background()

	source := newStubReviewSource("gitlab")
	source.setAssigned([]models.CodeReview{review("gitlab-1", "gitlab")})
	registry := sources.NewRegistry()
	registry.RegisterCodeReviewSource(source)

	workStore, _ := newTestWorkStore(t, registry, Options{})

	result := workStore.GetCodeReviews(ctx, SubsectionAssigned, false)
	assert.True(t, result.Fresh)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "gitlab-1", result.Data[0].ID)
	assert.Empty(t, result.FailedSources)
	assert.Empty(t, result.Errors)

	// The fetch populated the assigned sub-key; the provider-scoped check
	// also wants "opened" fresh, so only the data-type check reports fresh.
	assert.True(t, workStore.IsFresh(ctx, DataTypeCodeReviews, ""))
	assert.True(t, workStore.Cache().IsFresh(ctx, CacheKey(DataTypeCodeReviews, "gitlab", SubsectionAssigned)))
}

// TestWorkStore_StaleServesAndRefreshes covers stale-while-revalidate:
// stale cache returns immediately and a background task refreshes it
func TestWorkStore_StaleServesAndRefreshes(t *testing.T) {
	ctx := context.Background()

	source := newStubReviewSource("gitlab")
	source.setAssigned([]models.CodeReview{review("new", "gitlab")})
	registry := sources.NewRegistry()
	registry.RegisterCodeReviewSource(source)

	workStore, cache := newTestWorkStore(t, registry, Options{})

	// Seed a stale row: cached an hour ago with a five minute TTL
	past := time.Now().Add(-time.Hour)
	cache.now = func() time.Time { return past }
	payload, err := models.MarshalCodeReviews([]models.CodeReview{review("old", "gitlab")})
	require.NoError(t, err)
	cache.Set(ctx, CacheKey(DataTypeCodeReviews, "gitlab", SubsectionAssigned), payload, 300*time.Second, DataTypeCodeReviews, "gitlab", SubsectionAssigned)
	cache.now = time.Now

	// Stale data returned immediately, not fresh
	result := workStore.GetCodeReviews(ctx, SubsectionAssigned, false)
	assert.False(t, result.Fresh)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "old", result.Data[0].ID)

	// The spawned background task lands the new payload
	workStore.WaitBackground()
	assert.GreaterOrEqual(t, source.calls(), 1)
	assert.True(t, cache.IsFresh(ctx, CacheKey(DataTypeCodeReviews, "gitlab", SubsectionAssigned)))

	followUp := workStore.GetCodeReviews(ctx, SubsectionAssigned, false)
	assert.False(t, followUp.Fresh)
	require.Len(t, followUp.Data, 1)
	assert.Equal(t, "new", followUp.Data[0].ID)
}

// TestWorkStore_PartialFailure covers scenario C: one source fails, one
// succeeds, and the aggregate carries both outcomes
func TestWorkStore_PartialFailure(t *testing.T) {
	ctx := context.Background()

	failing := newStubReviewSource("gitlab")
	failing.err = errors.New("timeout")
	healthy := newStubReviewSource("github")
	healthy.setAssigned([]models.CodeReview{review("gh-1", "github")})

	registry := sources.NewRegistry()
	registry.RegisterCodeReviewSource(failing)
	registry.RegisterCodeReviewSource(healthy)

	workStore, _ := newTestWorkStore(t, registry, Options{})

	result := workStore.GetCodeReviews(ctx, SubsectionAssigned, true)
	assert.True(t, result.Fresh)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "gh-1", result.Data[0].ID)
	assert.Equal(t, []string{"gitlab"}, result.FailedSources)
	assert.Equal(t, map[string]string{"gitlab": "timeout"}, result.Errors)

	// Health recorded the failure and the success
	assert.Equal(t, []string{"gitlab"}, workStore.Health().FailedSources())

	// The failing source moves to the front of the priority order
	assert.Equal(t, []string{"gitlab", "github"}, workStore.Health().PrioritySources([]string{"github", "gitlab"}))
}

// TestWorkStore_PartialFailureTotality covers property 4 with a larger
// source set: data from exactly the successful sources, errors from
// exactly the failing ones
func TestWorkStore_PartialFailureTotality(t *testing.T) {
	ctx := context.Background()

	registry := sources.NewRegistry()
	okA := newStubReviewSource("a")
	okA.setAssigned([]models.CodeReview{review("a-1", "a"), review("a-2", "a")})
	failB := newStubReviewSource("b")
	failB.err = errors.New("boom-b")
	okC := newStubReviewSource("c")
	okC.setAssigned([]models.CodeReview{review("c-1", "c")})
	failD := newStubReviewSource("d")
	failD.err = errors.New("boom-d")
	registry.RegisterCodeReviewSource(okA)
	registry.RegisterCodeReviewSource(failB)
	registry.RegisterCodeReviewSource(okC)
	registry.RegisterCodeReviewSource(failD)

	workStore, _ := newTestWorkStore(t, registry, Options{})

	result := workStore.GetCodeReviews(ctx, SubsectionAssigned, true)
	require.Len(t, result.Data, 3)
	assert.Equal(t, "a-1", result.Data[0].ID)
	assert.Equal(t, "a-2", result.Data[1].ID)
	assert.Equal(t, "c-1", result.Data[2].ID)
	assert.ElementsMatch(t, []string{"b", "d"}, result.FailedSources)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, "boom-b", result.Errors["b"])
	assert.Equal(t, "boom-d", result.Errors["d"])
}

// TestWorkStore_EmptyResultNotCached covers scenario F: an empty success is
// not written to the cache but still counts as a success
func TestWorkStore_EmptyResultNotCached(t *testing.T) {
	ctx := context.Background()

	source := newStubReviewSource("gitlab")
	registry := sources.NewRegistry()
	registry.RegisterCodeReviewSource(source)

	workStore, cache := newTestWorkStore(t, registry, Options{})

	result := workStore.GetCodeReviews(ctx, SubsectionAssigned, true)
	assert.True(t, result.Fresh)
	assert.Empty(t, result.Data)
	assert.Empty(t, result.FailedSources)

	_, ok := cache.Info(ctx, CacheKey(DataTypeCodeReviews, "gitlab", SubsectionAssigned))
	assert.False(t, ok)
	assert.Empty(t, workStore.Health().FailedSources())
}

// TestWorkStore_UnavailableSourceSkipped tests that unavailable or
// unauthenticated sources are omitted quietly
func TestWorkStore_UnavailableSourceSkipped(t *testing.T) {
	ctx := context.Background()

	unavailable := newStubReviewSource("gitlab")
	unavailable.available = false
	unauthed := newStubReviewSource("github")
	unauthed.authed = false
	healthy := newStubReviewSource("gitea")
	healthy.setAssigned([]models.CodeReview{review("g-1", "gitea")})

	registry := sources.NewRegistry()
	registry.RegisterCodeReviewSource(unavailable)
	registry.RegisterCodeReviewSource(unauthed)
	registry.RegisterCodeReviewSource(healthy)

	workStore, _ := newTestWorkStore(t, registry, Options{})

	result := workStore.GetCodeReviews(ctx, SubsectionAssigned, true)
	require.Len(t, result.Data, 1)
	assert.Empty(t, result.FailedSources)
	assert.Empty(t, result.Errors)
	assert.Zero(t, unavailable.calls())
	assert.Zero(t, unauthed.calls())
}

// TestWorkStore_UnknownSubsection tests the programming-error path
func TestWorkStore_UnknownSubsection(t *testing.T) {
	registry := sources.NewRegistry()
	workStore, _ := newTestWorkStore(t, registry, Options{})

	result := workStore.GetCodeReviews(context.Background(), "bogus", false)
	assert.Empty(t, result.Data)
	assert.Empty(t, result.FailedSources)
}

// TestWorkStore_WorkItems tests the work item path end to end including
// cache round-trip of the tagged variants
func TestWorkStore_WorkItems(t *testing.T) {
	ctx := context.Background()

	item := models.JiraIssue{
		Adapter: models.Adapter{Type: models.AdapterJira, Icon: "🔴"},
		Key:     "PROJ-1",
		Summary: "Investigate",
		State:   "In Progress",
		Link:    "u",
	}
	source := &stubItemSource{sourceType: "jira", items: []models.WorkItem{item}}
	registry := sources.NewRegistry()
	registry.RegisterWorkItemSource(source)

	workStore, cache := newTestWorkStore(t, registry, Options{})

	result := workStore.GetWorkItems(ctx, true)
	assert.True(t, result.Fresh)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "PROJ-1", result.Data[0].ID())

	assert.True(t, workStore.IsFresh(ctx, DataTypeWorkItems, "jira"))

	// Second read serves from cache with the variant reconstructed
	cached := workStore.GetWorkItems(ctx, false)
	assert.False(t, cached.Fresh)
	require.Len(t, cached.Data, 1)
	assert.Equal(t, item, cached.Data[0])

	_, ok := cache.Info(ctx, CacheKey(DataTypeWorkItems, "jira", ""))
	assert.True(t, ok)
}

// TestWorkStore_CachedErrorsMarkSourcesFailed tests that a cached payload
// with a recorded error reports the source as failed while serving data
func TestWorkStore_CachedErrorsMarkSourcesFailed(t *testing.T) {
	ctx := context.Background()

	source := newStubReviewSource("gitlab")
	registry := sources.NewRegistry()
	registry.RegisterCodeReviewSource(source)

	workStore, cache := newTestWorkStore(t, registry, Options{})

	key := CacheKey(DataTypeCodeReviews, "gitlab", SubsectionAssigned)
	payload, err := models.MarshalCodeReviews([]models.CodeReview{review("1", "gitlab")})
	require.NoError(t, err)
	cache.Set(ctx, key, payload, time.Hour, DataTypeCodeReviews, "gitlab", SubsectionAssigned)
	cache.RecordError(ctx, key, "last refresh failed")

	result := workStore.GetCodeReviews(ctx, SubsectionAssigned, false)
	assert.False(t, result.Fresh)
	require.Len(t, result.Data, 1)
	assert.Equal(t, []string{"gitlab"}, result.FailedSources)
	assert.Equal(t, "last refresh failed", result.Errors["gitlab"])
}

// TestWorkStore_Invalidate covers scenario D through the work store API
func TestWorkStore_Invalidate(t *testing.T) {
	ctx := context.Background()

	registry := sources.NewRegistry()
	workStore, cache := newTestWorkStore(t, registry, Options{})

	cache.Set(ctx, "code_reviews:gitlab:assigned", []byte(`[]`), time.Minute, DataTypeCodeReviews, "gitlab", SubsectionAssigned)
	cache.Set(ctx, "work_items:jira", []byte(`[]`), time.Minute, DataTypeWorkItems, "jira", "")

	workStore.Invalidate(ctx, DataTypeCodeReviews, "")

	_, ok := cache.Info(ctx, "code_reviews:gitlab:assigned")
	assert.False(t, ok)
	_, ok = cache.Info(ctx, "work_items:jira")
	assert.True(t, ok)
}

// TestWorkStore_BackgroundRefreshCompletes covers property 8: a stale read
// spawns a refresh that completes within the background timeout and leaves
// a fresh key behind
func TestWorkStore_BackgroundRefreshCompletes(t *testing.T) {
	ctx := context.Background()

	source := newStubReviewSource("gitlab")
	source.setAssigned([]models.CodeReview{review("fresh", "gitlab")})
	registry := sources.NewRegistry()
	registry.RegisterCodeReviewSource(source)

	workStore, cache := newTestWorkStore(t, registry, Options{BackgroundTimeout: 5 * time.Second})

	// Stale seed
	past := time.Now().Add(-time.Hour)
	cache.now = func() time.Time { return past }
	payload, err := models.MarshalCodeReviews([]models.CodeReview{review("old", "gitlab")})
	require.NoError(t, err)
	cache.Set(ctx, CacheKey(DataTypeCodeReviews, "gitlab", SubsectionAssigned), payload, time.Second, DataTypeCodeReviews, "gitlab", SubsectionAssigned)
	cache.now = time.Now

	start := time.Now()
	workStore.GetCodeReviews(ctx, SubsectionAssigned, false)
	workStore.WaitBackground()

	assert.Less(t, time.Since(start), 6*time.Second)
	assert.True(t, workStore.IsFresh(ctx, DataTypeCodeReviews, ""))
}
