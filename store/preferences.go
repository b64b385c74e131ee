package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/notaproblemdotdev/monodash/common"
)

// userPreference maps the user_preferences table.
type userPreference struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (userPreference) TableName() string { return "user_preferences" }

// Preferences stores user preferences and UI state in a key/value table
// alongside the cache. Values are JSON-serialized for flexibility. Like the
// cache backend, it swallows and logs store failures: a broken preferences
// table degrades to defaults, never to an error.
type Preferences struct {
	manager *Manager
}

// NewPreferences creates a preferences store over the given manager.
func NewPreferences(manager *Manager) *Preferences {
	return &Preferences{manager: manager}
}

// Get decodes the stored value for key into dest, reporting whether a value
// was found and decoded.
func (p *Preferences) Get(ctx context.Context, key string, dest any) bool {
	var row userPreference
	result := p.manager.DB().WithContext(ctx).Where("key = ?", key).Limit(1).Find(&row)
	if result.Error != nil {
		common.Logger.WithField("key", key).WithField("error", result.Error.Error()).Error("Failed to get preference")
		return false
	}
	if result.RowsAffected == 0 {
		return false
	}

	if err := json.Unmarshal([]byte(row.Value), dest); err != nil {
		common.Logger.WithField("key", key).WithField("error", err.Error()).Warn("Failed to decode preference")
		return false
	}
	return true
}

// GetString returns the stored string for key, or the default when absent.
func (p *Preferences) GetString(ctx context.Context, key, defaultValue string) string {
	var value string
	if p.Get(ctx, key, &value) {
		return value
	}
	return defaultValue
}

// Set stores a JSON-serialized value under key, replacing any existing
// value.
func (p *Preferences) Set(ctx context.Context, key string, value any) {
	serialized, err := json.Marshal(value)
	if err != nil {
		common.Logger.WithField("key", key).WithField("error", err.Error()).Error("Failed to encode preference")
		return
	}

	err = p.manager.DB().WithContext(ctx).Exec(
		`INSERT INTO user_preferences (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(serialized),
	).Error
	if err != nil {
		common.Logger.WithField("key", key).WithField("error", err.Error()).Error("Failed to set preference")
		return
	}
	common.Logger.WithField("key", key).Debug("Saved preference")
}

// Delete removes a preference, reporting whether a row was deleted.
func (p *Preferences) Delete(ctx context.Context, key string) bool {
	result := p.manager.DB().WithContext(ctx).Where("key = ?", key).Delete(&userPreference{})
	if result.Error != nil {
		common.Logger.WithField("key", key).WithField("error", result.Error.Error()).Error("Failed to delete preference")
		return false
	}
	return result.RowsAffected > 0
}
