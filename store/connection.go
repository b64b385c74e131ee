// Package store implements the unified work-item aggregation core: the
// durable TTL cache over embedded SQLite (CacheBackend), the in-memory
// source failure tracker (SourceHealth), the preferences table, and the
// orchestrating WorkStore that composes them into a stale-while-revalidate
// read path over the registered sources.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	sqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/notaproblemdotdev/monodash/common"
)

// dbPathEnv overrides the database location when set.
const dbPathEnv = "MONODASH_DB_PATH"

// Manager owns the process-wide SQLite handle. All cache, preferences, and
// schema operations go through one Manager; SQLite serializes the
// statements behind it.
type Manager struct {
	db   *gorm.DB
	path string
}

var (
	managerMu      sync.Mutex
	defaultManager *Manager
)

// Open creates a Manager for the database at path, creating parent
// directories as needed, applying the connection pragmas (WAL journal,
// normal synchronous, 10 s busy timeout, foreign keys), and initializing
// the schema. An empty path resolves to the MONODASH_DB_PATH environment
// variable or the default config location.
func Open(path string) (*Manager, error) {
	resolved, err := resolveDBPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := resolved + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=10000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", resolved, err)
	}

	// Single connection per process; statements serialize in the store.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	manager := &Manager{db: db, path: resolved}
	if err := InitSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	common.Logger.WithField("path", resolved).Debug("Opened work store database")
	return manager, nil
}

// DefaultManager returns the lazily-initialized process-wide Manager,
// opening it at the default location on first use.
func DefaultManager() (*Manager, error) {
	managerMu.Lock()
	defer managerMu.Unlock()

	if defaultManager != nil {
		return defaultManager, nil
	}
	manager, err := Open("")
	if err != nil {
		return nil, err
	}
	defaultManager = manager
	return defaultManager, nil
}

// ResetManager closes and discards the process-wide Manager. Mainly for
// tests.
func ResetManager() {
	managerMu.Lock()
	defer managerMu.Unlock()

	if defaultManager != nil {
		_ = defaultManager.Close()
		defaultManager = nil
	}
}

// DB returns the underlying gorm handle.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Path returns the resolved database file path.
func (m *Manager) Path() string {
	return m.path
}

// Close closes the underlying database connection.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database pool: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// resolveDBPath picks the explicit path, then the environment override,
// then the default config location.
func resolveDBPath(path string) (string, error) {
	if path != "" {
		return expand(path)
	}
	if envPath := os.Getenv(dbPathEnv); envPath != "" {
		return expand(envPath)
	}

	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "monodash", "monodash.db"), nil
}

func expand(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %s: %w", path, err)
	}
	return filepath.Abs(expanded)
}
