package store

import (
	"context"
	"encoding/json"
	"time"

	humanize "github.com/dustin/go-humanize"
	"gorm.io/gorm"

	"github.com/notaproblemdotdev/monodash/common"
)

// DefaultCleanupDays is the age at which the compactor removes cache rows.
const DefaultCleanupDays = 30

// cachedData maps the cached_data table. The schema itself is created by
// InitSchema; this model only describes the columns to gorm.
type cachedData struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	CacheKey   string    `gorm:"column:cache_key"`
	DataType   string    `gorm:"column:data_type"`
	Provider   string    `gorm:"column:provider"`
	Subsection *string   `gorm:"column:subsection"`
	Payload    string    `gorm:"column:payload"`
	CachedAt   time.Time `gorm:"column:cached_at"`
	TTLSeconds int       `gorm:"column:ttl_seconds"`
	FetchCount int       `gorm:"column:fetch_count"`
	LastError  *string   `gorm:"column:last_error"`
}

func (cachedData) TableName() string { return "cached_data" }

// CacheInfo is the metadata view of a cache entry.
type CacheInfo struct {
	CacheKey   string
	DataType   string
	Provider   string
	Subsection string
	CachedAt   time.Time
	TTL        time.Duration
	ExpiresAt  time.Time
	IsValid    bool
	FetchCount int
	LastError  string
}

// Age renders how long ago the entry was cached, for display.
func (i CacheInfo) Age() string {
	return humanize.Time(i.CachedAt)
}

// CacheBackend is the durable TTL cache over the embedded store. Entries
// are keyed by the fingerprint "<data_type>:<provider>[:<subsection>]" and
// carry a serialized JSON array payload.
//
// Every operation traps backend failures at its boundary: reads surface a
// miss, writes log and swallow. A backend fault never reaches the caller —
// the work store treats the operation as a miss and proceeds.
type CacheBackend struct {
	manager     *Manager
	cleanupDays int
	now         func() time.Time
}

// NewCacheBackend creates a cache backend over the given manager.
// cleanupDays <= 0 selects the default compaction window.
func NewCacheBackend(manager *Manager, cleanupDays int) *CacheBackend {
	if cleanupDays <= 0 {
		cleanupDays = DefaultCleanupDays
	}
	return &CacheBackend{
		manager:     manager,
		cleanupDays: cleanupDays,
		now:         time.Now,
	}
}

// Get returns the cached payload for the key. An expired row is returned
// only when acceptStale is true. The second return value reports whether a
// usable payload was found.
func (c *CacheBackend) Get(ctx context.Context, cacheKey string, acceptStale bool) ([]byte, bool) {
	var row cachedData
	result := c.manager.DB().WithContext(ctx).Where("cache_key = ?", cacheKey).Limit(1).Find(&row)
	if result.Error != nil {
		common.Logger.WithField("cache_key", cacheKey).WithField("error", result.Error.Error()).Error("Failed to get cached data")
		return nil, false
	}
	if result.RowsAffected == 0 {
		common.Logger.WithField("cache_key", cacheKey).Debug("Cache miss")
		return nil, false
	}

	fresh := c.isValid(row)
	if !fresh && !acceptStale {
		common.Logger.WithField("cache_key", cacheKey).Debug("Cache expired")
		return nil, false
	}

	payload := []byte(row.Payload)
	if !isJSONArray(payload) {
		common.Logger.WithField("cache_key", cacheKey).Warn("Cached payload is not a JSON array")
		return nil, false
	}

	status := "fresh"
	if !fresh {
		status = "stale"
	}
	common.Logger.WithField("cache_key", cacheKey).WithField("status", status).Debug("Cache hit")
	return payload, true
}

// Set stores a payload under the key, replacing any existing row. The write
// is a delete-then-insert inside one transaction, so concurrent writers
// serialize to a full replacement and stale readers never observe a partial
// update. After a successful write the compactor runs opportunistically.
func (c *CacheBackend) Set(ctx context.Context, cacheKey string, payload []byte, ttl time.Duration, dataType, provider, subsection string) {
	row := cachedData{
		CacheKey:   cacheKey,
		DataType:   dataType,
		Provider:   provider,
		Payload:    string(payload),
		CachedAt:   c.now(),
		TTLSeconds: int(ttl / time.Second),
		FetchCount: 1,
	}
	if subsection != "" {
		row.Subsection = &subsection
	}

	err := c.manager.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cache_key = ?", cacheKey).Delete(&cachedData{}).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		common.Logger.WithField("cache_key", cacheKey).WithField("error", err.Error()).Error("Failed to cache data")
		return
	}

	common.Logger.WithField("cache_key", cacheKey).WithField("ttl", ttl.String()).Debug("Cached data")
	c.cleanupOldRecords(ctx)
}

// Invalidate deletes cache rows. Both selectors empty deletes everything;
// either one scopes the delete to that data type or provider; both scope it
// to the exact combination. Succeeds even when nothing matches.
func (c *CacheBackend) Invalidate(ctx context.Context, dataType, provider string) {
	db := c.manager.DB().WithContext(ctx)

	var err error
	switch {
	case dataType == "" && provider == "":
		err = db.Where("1 = 1").Delete(&cachedData{}).Error
	case dataType != "" && provider != "":
		err = db.Where("data_type = ? AND provider = ?", dataType, provider).Delete(&cachedData{}).Error
	case dataType != "":
		err = db.Where("data_type = ?", dataType).Delete(&cachedData{}).Error
	default:
		err = db.Where("provider = ?", provider).Delete(&cachedData{}).Error
	}

	if err != nil {
		common.Logger.WithField("data_type", dataType).WithField("provider", provider).WithField("error", err.Error()).Error("Failed to invalidate cache")
		return
	}
	common.Logger.WithField("data_type", dataType).WithField("provider", provider).Info("Invalidated cache")
}

// IsFresh reports whether a row exists for the key and its TTL has not
// elapsed.
func (c *CacheBackend) IsFresh(ctx context.Context, cacheKey string) bool {
	var row cachedData
	result := c.manager.DB().WithContext(ctx).
		Select("cached_at", "ttl_seconds").
		Where("cache_key = ?", cacheKey).
		Limit(1).
		Find(&row)
	if result.Error != nil {
		common.Logger.WithField("cache_key", cacheKey).WithField("error", result.Error.Error()).Error("Failed to check cache freshness")
		return false
	}
	if result.RowsAffected == 0 {
		return false
	}
	return c.isValid(row)
}

// RecordError annotates the row with a fetch error without touching the
// payload or the cached_at timestamp, so the prior payload keeps serving
// while the failure is reportable.
func (c *CacheBackend) RecordError(ctx context.Context, cacheKey, errText string) {
	err := c.manager.DB().WithContext(ctx).
		Model(&cachedData{}).
		Where("cache_key = ?", cacheKey).
		Update("last_error", errText).Error
	if err != nil {
		common.Logger.WithField("cache_key", cacheKey).WithField("error", err.Error()).Error("Failed to record cache error")
	}
}

// Info returns the metadata for a cache entry, or false when the key has no
// row (or the read failed).
func (c *CacheBackend) Info(ctx context.Context, cacheKey string) (CacheInfo, bool) {
	var row cachedData
	result := c.manager.DB().WithContext(ctx).Where("cache_key = ?", cacheKey).Limit(1).Find(&row)
	if result.Error != nil {
		common.Logger.WithField("cache_key", cacheKey).WithField("error", result.Error.Error()).Error("Failed to get cache info")
		return CacheInfo{}, false
	}
	if result.RowsAffected == 0 {
		return CacheInfo{}, false
	}

	ttl := time.Duration(row.TTLSeconds) * time.Second
	info := CacheInfo{
		CacheKey:   row.CacheKey,
		DataType:   row.DataType,
		Provider:   row.Provider,
		CachedAt:   row.CachedAt,
		TTL:        ttl,
		ExpiresAt:  row.CachedAt.Add(ttl),
		IsValid:    c.isValid(row),
		FetchCount: row.FetchCount,
	}
	if row.Subsection != nil {
		info.Subsection = *row.Subsection
	}
	if row.LastError != nil {
		info.LastError = *row.LastError
	}
	return info, true
}

// isValid checks the TTL against the injected clock.
func (c *CacheBackend) isValid(row cachedData) bool {
	expiresAt := row.CachedAt.Add(time.Duration(row.TTLSeconds) * time.Second)
	return c.now().Before(expiresAt)
}

// cleanupOldRecords removes rows older than the cleanup window. Runs after
// every successful write; no background timer is needed.
func (c *CacheBackend) cleanupOldRecords(ctx context.Context) {
	cutoff := c.now().AddDate(0, 0, -c.cleanupDays)
	result := c.manager.DB().WithContext(ctx).Where("cached_at < ?", cutoff).Delete(&cachedData{})
	if result.Error != nil {
		common.Logger.WithField("error", result.Error.Error()).Error("Failed to clean up old cache records")
		return
	}
	if result.RowsAffected > 0 {
		common.Logger.WithField("deleted", result.RowsAffected).Info("Cleaned up old cache records")
	}
}

func isJSONArray(payload []byte) bool {
	if !json.Valid(payload) {
		return false
	}
	for _, b := range payload {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
