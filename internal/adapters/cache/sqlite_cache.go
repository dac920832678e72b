package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteCache is a SQLite implementation of the CacheRepository interface.
// It survives restarts of a single node.
type SQLiteCache struct {
	*sqlStore
}

// NewSQLiteCache creates a new SQLite cache
func NewSQLiteCache(dbPath string, ttl time.Duration, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	// Create table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS provider_cache (
			provider TEXT NOT NULL,
			url_hash TEXT NOT NULL,
			url TEXT NOT NULL,
			result TEXT NOT NULL,
			stored_at INTEGER NOT NULL,
			PRIMARY KEY (provider, url_hash)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Create index on stored_at for faster cleanup
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_provider_cache_stored_at ON provider_cache(stored_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	store := newSQLStore(db, "sqlite", `
		INSERT OR REPLACE INTO provider_cache (provider, url_hash, url, result, stored_at)
		VALUES (?, ?, ?, ?, ?)
	`, ttl, logger, cleanupFreq)

	return &SQLiteCache{sqlStore: store}, nil
}
