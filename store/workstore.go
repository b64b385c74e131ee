package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notaproblemdotdev/monodash/common"
	"github.com/notaproblemdotdev/monodash/models"
	"github.com/notaproblemdotdev/monodash/sources"
)

// Data types and code review subsections. Together with the provider tag
// they form the cache key fingerprint "<data_type>:<provider>[:<subsection>]".
const (
	DataTypeCodeReviews = "code_reviews"
	DataTypeWorkItems   = "work_items"

	SubsectionAssigned = "assigned"
	SubsectionOpened   = "opened"
)

// Work store defaults.
const (
	DefaultCodeReviewTTL     = 300 * time.Second
	DefaultWorkItemTTL       = 600 * time.Second
	DefaultBackgroundTimeout = 30 * time.Second
)

// CacheKey builds the cache key fingerprint for a data type, provider, and
// optional subsection.
func CacheKey(dataType, provider, subsection string) string {
	if subsection == "" {
		return dataType + ":" + provider
	}
	return dataType + ":" + provider + ":" + subsection
}

// FetchResult carries fetched data plus per-source failure metadata.
// Partial failure is the standard case: non-empty Data together with
// non-empty FailedSources is fully supported.
type FetchResult[T any] struct {
	Data          []T               `json:"data"`
	Fresh         bool              `json:"fresh"`
	FailedSources []string          `json:"failed_sources"`
	Errors        map[string]string `json:"errors"`
}

// Options tunes a WorkStore. Zero values select the defaults.
type Options struct {
	CodeReviewTTL     time.Duration
	WorkItemTTL       time.Duration
	BackgroundTimeout time.Duration
}

// WorkStore is the unified data access layer with transparent caching.
//
// Reads serve from the cache when any provider's row is still fresh. A
// stale cache is served immediately while a background refresh task
// repopulates it; an empty cache falls through to a blocking fetch. Forced
// refreshes always take the fetch path. Fetches run one goroutine per
// registered source, tolerate individual source failures, and feed the
// health tracker that orders the next round.
type WorkStore struct {
	registry          *sources.Registry
	cache             *CacheBackend
	health            *SourceHealth
	codeReviewTTL     time.Duration
	workItemTTL       time.Duration
	backgroundTimeout time.Duration

	// Background refresh tasks are retained until completion so shutdown
	// can cancel and drain them.
	tasksMu sync.Mutex
	tasks   map[*refreshTask]struct{}
	taskWG  sync.WaitGroup
	closed  bool
}

type refreshTask struct {
	cancel context.CancelFunc
}

// NewWorkStore composes the registry, cache, and health tracker into a work
// store.
func NewWorkStore(registry *sources.Registry, cache *CacheBackend, health *SourceHealth, opts Options) *WorkStore {
	if opts.CodeReviewTTL <= 0 {
		opts.CodeReviewTTL = DefaultCodeReviewTTL
	}
	if opts.WorkItemTTL <= 0 {
		opts.WorkItemTTL = DefaultWorkItemTTL
	}
	if opts.BackgroundTimeout <= 0 {
		opts.BackgroundTimeout = DefaultBackgroundTimeout
	}
	return &WorkStore{
		registry:          registry,
		cache:             cache,
		health:            health,
		codeReviewTTL:     opts.CodeReviewTTL,
		workItemTTL:       opts.WorkItemTTL,
		backgroundTimeout: opts.BackgroundTimeout,
		tasks:             make(map[*refreshTask]struct{}),
	}
}

// Health exposes the source health tracker for status reporting.
func (s *WorkStore) Health() *SourceHealth { return s.health }

// Cache exposes the cache backend for metadata queries.
func (s *WorkStore) Cache() *CacheBackend { return s.cache }

// GetCodeReviews returns code reviews for a subsection ("assigned" or
// "opened") with automatic fetch, caching, and background refresh. No error
// surfaces past this API: failures land in the result's Errors map.
func (s *WorkStore) GetCodeReviews(ctx context.Context, subsection string, forceRefresh bool) FetchResult[models.CodeReview] {
	if subsection != SubsectionAssigned && subsection != SubsectionOpened {
		common.Logger.WithField("subsection", subsection).Warn("Unknown code review subsection")
		return emptyResult[models.CodeReview](false)
	}

	if forceRefresh {
		return s.fetchCodeReviews(ctx, subsection)
	}

	data, cachedErrors, found := s.cachedCodeReviews(ctx, subsection)
	if !found {
		return s.fetchCodeReviews(ctx, subsection)
	}

	if !s.anyFresh(ctx, DataTypeCodeReviews, subsection) {
		s.triggerBackgroundRefresh(DataTypeCodeReviews, subsection)
	}

	// Sources whose last recorded write carries an error are reported as
	// failed even though their cached payload is being served.
	return FetchResult[models.CodeReview]{
		Data:          data,
		Fresh:         false,
		FailedSources: sortedKeys(cachedErrors),
		Errors:        cachedErrors,
	}
}

// GetWorkItems returns work items with automatic fetch, caching, and
// background refresh.
func (s *WorkStore) GetWorkItems(ctx context.Context, forceRefresh bool) FetchResult[models.WorkItem] {
	if forceRefresh {
		return s.fetchWorkItems(ctx)
	}

	data, cachedErrors, found := s.cachedWorkItems(ctx)
	if !found {
		return s.fetchWorkItems(ctx)
	}

	if !s.anyFresh(ctx, DataTypeWorkItems, "") {
		s.triggerBackgroundRefresh(DataTypeWorkItems, "")
	}

	return FetchResult[models.WorkItem]{
		Data:          data,
		Fresh:         false,
		FailedSources: sortedKeys(cachedErrors),
		Errors:        cachedErrors,
	}
}

// Invalidate deletes cached rows with fine-grained control: empty selectors
// widen the scope (see CacheBackend.Invalidate).
func (s *WorkStore) Invalidate(ctx context.Context, dataType, provider string) {
	s.cache.Invalidate(ctx, dataType, provider)
}

// IsFresh reports cache freshness for a data type. With a provider, every
// sub-key of that provider must be fresh (both subsections for code
// reviews). Without one, it reports whether any registered provider has a
// fresh sub-key.
func (s *WorkStore) IsFresh(ctx context.Context, dataType, provider string) bool {
	if provider == "" {
		if dataType == DataTypeCodeReviews {
			return s.anyFresh(ctx, dataType, SubsectionAssigned) || s.anyFresh(ctx, dataType, SubsectionOpened)
		}
		return s.anyFresh(ctx, dataType, "")
	}

	if dataType == DataTypeCodeReviews {
		return s.cache.IsFresh(ctx, CacheKey(dataType, provider, SubsectionAssigned)) &&
			s.cache.IsFresh(ctx, CacheKey(dataType, provider, SubsectionOpened))
	}
	return s.cache.IsFresh(ctx, CacheKey(dataType, provider, ""))
}

// Close cancels inflight background refreshes and waits for them to
// finish.
func (s *WorkStore) Close() {
	s.tasksMu.Lock()
	s.closed = true
	for task := range s.tasks {
		task.cancel()
	}
	s.tasksMu.Unlock()

	s.taskWG.Wait()
}

// WaitBackground blocks until the currently inflight background refresh
// tasks complete. Primarily a test hook.
func (s *WorkStore) WaitBackground() {
	s.taskWG.Wait()
}

// cachedCodeReviews reads every registered provider's row with stale
// acceptance, concatenating payloads in registration order and collecting
// recorded fetch errors. found is false when no provider had usable data.
func (s *WorkStore) cachedCodeReviews(ctx context.Context, subsection string) ([]models.CodeReview, map[string]string, bool) {
	var data []models.CodeReview
	errors := make(map[string]string)
	found := false

	for _, source := range s.registry.CodeReviewSources() {
		sourceType := source.SourceType()
		cacheKey := CacheKey(DataTypeCodeReviews, sourceType, subsection)

		payload, ok := s.cache.Get(ctx, cacheKey, true)
		if !ok {
			continue
		}

		reviews, err := models.UnmarshalCodeReviews(payload)
		if err != nil {
			common.WithSource(sourceType).WithField("error", err.Error()).Warn("Failed to deserialize cached code reviews")
			continue
		}
		if len(reviews) > 0 {
			data = append(data, reviews...)
			found = true
		}

		if info, ok := s.cache.Info(ctx, cacheKey); ok && info.LastError != "" {
			errors[sourceType] = info.LastError
		}
	}

	return data, errors, found
}

// cachedWorkItems mirrors cachedCodeReviews for work item sources.
func (s *WorkStore) cachedWorkItems(ctx context.Context) ([]models.WorkItem, map[string]string, bool) {
	var data []models.WorkItem
	errors := make(map[string]string)
	found := false

	for _, source := range s.registry.WorkItemSources() {
		sourceType := source.SourceType()
		cacheKey := CacheKey(DataTypeWorkItems, sourceType, "")

		payload, ok := s.cache.Get(ctx, cacheKey, true)
		if !ok {
			continue
		}

		items, err := models.UnmarshalWorkItems(payload)
		if err != nil {
			common.WithSource(sourceType).WithField("error", err.Error()).Warn("Failed to deserialize cached work items")
			continue
		}
		if len(items) > 0 {
			data = append(data, items...)
			found = true
		}

		if info, ok := s.cache.Info(ctx, cacheKey); ok && info.LastError != "" {
			errors[sourceType] = info.LastError
		}
	}

	return data, errors, found
}

// anyFresh reports whether any registered provider's row for the data type
// (and subsection, for code reviews) is still within TTL.
func (s *WorkStore) anyFresh(ctx context.Context, dataType, subsection string) bool {
	switch dataType {
	case DataTypeCodeReviews:
		for _, source := range s.registry.CodeReviewSources() {
			if s.cache.IsFresh(ctx, CacheKey(dataType, source.SourceType(), subsection)) {
				return true
			}
		}
	case DataTypeWorkItems:
		for _, source := range s.registry.WorkItemSources() {
			if s.cache.IsFresh(ctx, CacheKey(dataType, source.SourceType(), "")) {
				return true
			}
		}
	default:
		common.Logger.WithField("data_type", dataType).Warn("Unknown data type for freshness check")
	}
	return false
}

// triggerBackgroundRefresh spawns a refresh task for the data type and
// subsection. Multiple concurrent spawns for the same key are tolerated:
// each writes the same cache keys atomically, so the only cost is
// redundant upstream work.
func (s *WorkStore) triggerBackgroundRefresh(dataType, subsection string) {
	s.tasksMu.Lock()
	if s.closed {
		s.tasksMu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.backgroundTimeout)
	task := &refreshTask{cancel: cancel}
	s.tasks[task] = struct{}{}
	s.taskWG.Add(1)
	s.tasksMu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.tasksMu.Lock()
			delete(s.tasks, task)
			s.tasksMu.Unlock()
			s.taskWG.Done()
		}()
		s.backgroundRefresh(ctx, dataType, subsection)
	}()
}

// backgroundRefresh performs the refresh under the task deadline. Failures
// and timeouts are logged, never raised — the caller already returned stale
// data, and the next read observes whatever the refresh managed to write.
func (s *WorkStore) backgroundRefresh(ctx context.Context, dataType, subsection string) {
	switch dataType {
	case DataTypeCodeReviews:
		s.fetchCodeReviews(ctx, subsection)
	case DataTypeWorkItems:
		s.fetchWorkItems(ctx)
	default:
		common.Logger.WithField("data_type", dataType).Warn("Unknown data type for background refresh")
		return
	}

	if ctx.Err() == context.DeadlineExceeded {
		common.Logger.WithField("data_type", dataType).WithField("subsection", subsection).Warn("Background refresh timed out")
	}
}

// fetchOutcome is one source's contribution to a full fetch.
type fetchOutcome[T any] struct {
	sourceType string
	data       []T
	err        string
	skipped    bool
}

// fetchCodeReviews is the full fetch path for a code review subsection:
// priority-ordered concurrent fan-out, per-source caching, health
// recording, and partial-failure aggregation.
func (s *WorkStore) fetchCodeReviews(ctx context.Context, subsection string) FetchResult[models.CodeReview] {
	sourceList := s.registry.CodeReviewSources()
	sourceMap := make(map[string]sources.CodeReviewSource, len(sourceList))
	tags := make([]string, 0, len(sourceList))
	for _, source := range sourceList {
		sourceMap[source.SourceType()] = source
		tags = append(tags, source.SourceType())
	}
	order := s.health.PrioritySources(tags)

	outcomes := make([]fetchOutcome[models.CodeReview], len(order))
	var wg sync.WaitGroup
	for i, tag := range order {
		source, ok := sourceMap[tag]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, tag string, source sources.CodeReviewSource) {
			defer wg.Done()
			outcomes[i] = s.fetchSingleCodeReviewSource(ctx, source, tag, subsection)
		}(i, tag, source)
	}
	wg.Wait()

	return aggregate(outcomes)
}

// fetchSingleCodeReviewSource fetches one source, records health, and
// writes the cache row (successful non-empty payloads only — empty results
// are not cached so the next cycle retries cheaply).
func (s *WorkStore) fetchSingleCodeReviewSource(ctx context.Context, source sources.CodeReviewSource, tag, subsection string) fetchOutcome[models.CodeReview] {
	if !source.IsAvailable(ctx) || !source.CheckAuth(ctx) {
		common.WithSource(tag).Debug("Source not available or not authenticated, skipping")
		return fetchOutcome[models.CodeReview]{sourceType: tag, skipped: true}
	}

	var reviews []models.CodeReview
	var err error
	switch subsection {
	case SubsectionAssigned:
		reviews, err = source.FetchAssigned(ctx)
	case SubsectionOpened:
		reviews, err = source.FetchAuthored(ctx)
	}

	cacheKey := CacheKey(DataTypeCodeReviews, tag, subsection)
	if err != nil {
		errMsg := err.Error()
		s.health.RecordFailure(tag, errMsg)
		s.cache.RecordError(ctx, cacheKey, errMsg)
		return fetchOutcome[models.CodeReview]{sourceType: tag, err: errMsg}
	}

	s.health.RecordSuccess(tag)
	if len(reviews) > 0 {
		if payload, merr := models.MarshalCodeReviews(reviews); merr == nil {
			s.cache.Set(ctx, cacheKey, payload, s.codeReviewTTL, DataTypeCodeReviews, tag, subsection)
		} else {
			common.WithSource(tag).WithField("error", merr.Error()).Warn("Failed to serialize code reviews for cache")
		}
	}
	return fetchOutcome[models.CodeReview]{sourceType: tag, data: reviews}
}

// fetchWorkItems is the full fetch path for work items.
func (s *WorkStore) fetchWorkItems(ctx context.Context) FetchResult[models.WorkItem] {
	sourceList := s.registry.WorkItemSources()
	sourceMap := make(map[string]sources.WorkItemSource, len(sourceList))
	tags := make([]string, 0, len(sourceList))
	for _, source := range sourceList {
		sourceMap[source.SourceType()] = source
		tags = append(tags, source.SourceType())
	}
	order := s.health.PrioritySources(tags)

	outcomes := make([]fetchOutcome[models.WorkItem], len(order))
	var wg sync.WaitGroup
	for i, tag := range order {
		source, ok := sourceMap[tag]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, tag string, source sources.WorkItemSource) {
			defer wg.Done()
			outcomes[i] = s.fetchSingleWorkItemSource(ctx, source, tag)
		}(i, tag, source)
	}
	wg.Wait()

	return aggregate(outcomes)
}

func (s *WorkStore) fetchSingleWorkItemSource(ctx context.Context, source sources.WorkItemSource, tag string) fetchOutcome[models.WorkItem] {
	if !source.IsAvailable(ctx) || !source.CheckAuth(ctx) {
		common.WithSource(tag).Debug("Source not available or not authenticated, skipping")
		return fetchOutcome[models.WorkItem]{sourceType: tag, skipped: true}
	}

	items, err := source.FetchItems(ctx)

	cacheKey := CacheKey(DataTypeWorkItems, tag, "")
	if err != nil {
		errMsg := err.Error()
		s.health.RecordFailure(tag, errMsg)
		s.cache.RecordError(ctx, cacheKey, errMsg)
		return fetchOutcome[models.WorkItem]{sourceType: tag, err: errMsg}
	}

	s.health.RecordSuccess(tag)
	if len(items) > 0 {
		if payload, merr := models.MarshalWorkItems(items); merr == nil {
			s.cache.Set(ctx, cacheKey, payload, s.workItemTTL, DataTypeWorkItems, tag, "")
		} else {
			common.WithSource(tag).WithField("error", merr.Error()).Warn("Failed to serialize work items for cache")
		}
	}
	return fetchOutcome[models.WorkItem]{sourceType: tag, data: items}
}

// aggregate folds per-source outcomes into a FetchResult. Accumulation
// follows the priority order the fan-out launched with, so the result is
// deterministic regardless of completion order. Skipped sources contribute
// nothing and are not marked failed.
func aggregate[T any](outcomes []fetchOutcome[T]) FetchResult[T] {
	result := FetchResult[T]{
		Data:          []T{},
		Fresh:         true,
		FailedSources: []string{},
		Errors:        make(map[string]string),
	}

	for _, outcome := range outcomes {
		if outcome.sourceType == "" || outcome.skipped {
			continue
		}
		if outcome.err != "" {
			result.FailedSources = append(result.FailedSources, outcome.sourceType)
			result.Errors[outcome.sourceType] = outcome.err
			continue
		}
		result.Data = append(result.Data, outcome.data...)
	}
	return result
}

func emptyResult[T any](fresh bool) FetchResult[T] {
	return FetchResult[T]{
		Data:          []T{},
		Fresh:         fresh,
		FailedSources: []string{},
		Errors:        map[string]string{},
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	// Deterministic order for display and tests.
	sort.Strings(keys)
	return keys
}
