package store

import (
	"sort"
	"sync"
	"time"

	"github.com/notaproblemdotdev/monodash/common"
)

// Source health defaults.
const (
	DefaultBaseRetryDelay = 30 * time.Second
	DefaultMaxRetryDelay  = 300 * time.Second
	DefaultRecordExpiry   = time.Hour

	backoffMultiplier = 2
)

// FailureRecord describes a source's active failure streak.
type FailureRecord struct {
	Source       string
	Error        string
	Timestamp    time.Time
	FailureCount int
	RetryDelay   time.Duration
}

// SourceHealth tracks source failures in memory and orders source lists so
// failing sources are probed first. Recovery is detected promptly because
// failing sources are fetched eagerly; healthy sources keep their relative
// registration order and are never starved — health only influences
// ordering, it never gates a fetch.
//
// Records expire after recordExpiry, treating a long-idle failure as
// recovered. Safe for concurrent use; the work store's fetch tasks mutate
// it from multiple goroutines.
type SourceHealth struct {
	mu             sync.Mutex
	baseRetryDelay time.Duration
	maxRetryDelay  time.Duration
	recordExpiry   time.Duration
	failures       map[string]*FailureRecord
	now            func() time.Time
}

// NewSourceHealth creates a tracker with the given backoff bounds. Zero
// values select the defaults.
func NewSourceHealth(baseRetryDelay, maxRetryDelay time.Duration) *SourceHealth {
	if baseRetryDelay <= 0 {
		baseRetryDelay = DefaultBaseRetryDelay
	}
	if maxRetryDelay <= 0 {
		maxRetryDelay = DefaultMaxRetryDelay
	}
	return &SourceHealth{
		baseRetryDelay: baseRetryDelay,
		maxRetryDelay:  maxRetryDelay,
		recordExpiry:   DefaultRecordExpiry,
		failures:       make(map[string]*FailureRecord),
		now:            time.Now,
	}
}

// RecordFailure records a failed fetch attempt, starting or extending the
// source's failure streak.
func (h *SourceHealth) RecordFailure(source, errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if record, ok := h.failures[source]; ok {
		record.FailureCount++
		record.Timestamp = now
		record.Error = errMsg
		common.WithSource(source).WithField("count", record.FailureCount).WithField("error", errMsg).Warn("Source failed again")
		return
	}

	h.failures[source] = &FailureRecord{
		Source:       source,
		Error:        errMsg,
		Timestamp:    now,
		FailureCount: 1,
	}
	common.WithSource(source).WithField("error", errMsg).Warn("Source failed")
}

// RecordSuccess clears any failure record for the source.
func (h *SourceHealth) RecordSuccess(source string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if record, ok := h.failures[source]; ok {
		delete(h.failures, source)
		common.WithSource(source).WithField("previous_failures", record.FailureCount).Info("Source recovered")
	}
}

// PrioritySources returns a reordered copy of the source list: failing
// sources first, most-failing first; healthy sources after them, in their
// original relative order.
func (h *SourceHealth) PrioritySources(sourceList []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupExpiredLocked()

	ordered := make([]string, len(sourceList))
	copy(ordered, sourceList)

	sort.SliceStable(ordered, func(i, j int) bool {
		groupI, countI := h.sortKeyLocked(ordered[i])
		groupJ, countJ := h.sortKeyLocked(ordered[j])
		if groupI != groupJ {
			return groupI < groupJ
		}
		return countI > countJ
	})
	return ordered
}

// sortKeyLocked returns (0, failureCount) for failing sources and (1, 0)
// for healthy ones.
func (h *SourceHealth) sortKeyLocked(source string) (int, int) {
	if record, ok := h.failures[source]; ok {
		return 0, record.FailureCount
	}
	return 1, 0
}

// ShouldRetry reports whether the source's backoff window has elapsed.
// Advisory: the work store does not gate fetches on it.
func (h *SourceHealth) ShouldRetry(source string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupExpiredLocked()

	record, ok := h.failures[source]
	if !ok {
		return true
	}
	elapsed := h.now().Sub(record.Timestamp)
	return elapsed >= h.retryDelayLocked(record.FailureCount)
}

// RetryDelay returns the remaining wait before the source should be
// retried, or zero when it can be retried now.
func (h *SourceHealth) RetryDelay(source string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupExpiredLocked()

	record, ok := h.failures[source]
	if !ok {
		return 0
	}
	elapsed := h.now().Sub(record.Timestamp)
	remaining := h.retryDelayLocked(record.FailureCount) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FailedSources returns the sources with active failure records.
func (h *SourceHealth) FailedSources() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupExpiredLocked()

	failed := make([]string, 0, len(h.failures))
	for source := range h.failures {
		failed = append(failed, source)
	}
	sort.Strings(failed)
	return failed
}

// FailureInfo returns a copy of the failure record for a source, or false
// when the source is healthy.
func (h *SourceHealth) FailureInfo(source string) (FailureRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupExpiredLocked()

	record, ok := h.failures[source]
	if !ok {
		return FailureRecord{}, false
	}

	info := *record
	elapsed := h.now().Sub(record.Timestamp)
	if remaining := h.retryDelayLocked(record.FailureCount) - elapsed; remaining > 0 {
		info.RetryDelay = remaining
	}
	return info, true
}

// retryDelayLocked computes the exponential backoff delay for a failure
// count, clamped to the maximum.
func (h *SourceHealth) retryDelayLocked(failureCount int) time.Duration {
	delay := h.baseRetryDelay
	for i := 1; i < failureCount; i++ {
		delay *= backoffMultiplier
		if delay >= h.maxRetryDelay {
			return h.maxRetryDelay
		}
	}
	if delay > h.maxRetryDelay {
		return h.maxRetryDelay
	}
	return delay
}

// cleanupExpiredLocked drops records older than the expiry window; a source
// that has not been seen failing for that long is assumed recovered.
func (h *SourceHealth) cleanupExpiredLocked() {
	now := h.now()
	for source, record := range h.failures {
		if now.Sub(record.Timestamp) > h.recordExpiry {
			delete(h.failures, source)
			common.WithSource(source).Debug("Expired failure record for source")
		}
	}
}
