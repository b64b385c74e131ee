package store

import (
	"fmt"

	"gorm.io/gorm"
)

// SchemaVersion is the current schema version. On open, the highest version
// recorded in schema_version is compared against it and migrations apply in
// order until they match.
const SchemaVersion = 2

// schemaDDL creates the current schema. Every statement is idempotent so
// the script is safe to run on an already-initialized database.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS cached_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cache_key TEXT NOT NULL,
		data_type TEXT NOT NULL,
		provider TEXT NOT NULL,
		subsection TEXT,
		payload TEXT NOT NULL,
		cached_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ttl_seconds INTEGER NOT NULL,
		fetch_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		UNIQUE(cache_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cached_data_key ON cached_data(cache_key)`,
	`CREATE INDEX IF NOT EXISTS idx_cached_data_type ON cached_data(data_type)`,
	`CREATE INDEX IF NOT EXISTS idx_cached_data_provider ON cached_data(provider)`,
	`CREATE INDEX IF NOT EXISTS idx_cached_data_cached_at ON cached_data(cached_at)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
}

// InitSchema creates all tables if they do not exist and records the schema
// version. Safe to call multiple times.
func InitSchema(db *gorm.DB) error {
	for _, stmt := range schemaDDL {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	var version int
	row := db.Raw("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1")
	if err := row.Scan(&version).Error; err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	switch {
	case version == 0:
		if err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion).Error; err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	case version < SchemaVersion:
		if err := migrateSchema(db, version); err != nil {
			return fmt.Errorf("failed to migrate schema from v%d: %w", version, err)
		}
	}
	return nil
}

// migrateSchema applies migrations from the given version up to
// SchemaVersion, then records the new version.
func migrateSchema(db *gorm.DB, fromVersion int) error {
	if fromVersion < 2 {
		// v1 -> v2: the per-type cache tables were unified into cached_data.
		drops := []string{
			"DROP TABLE IF EXISTS cache_metadata",
			"DROP TABLE IF EXISTS merge_requests",
			"DROP TABLE IF EXISTS work_items",
		}
		for _, stmt := range drops {
			if err := db.Exec(stmt).Error; err != nil {
				return err
			}
		}
	}

	return db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", SchemaVersion).Error
}
