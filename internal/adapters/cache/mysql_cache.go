package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLCache is a MySQL implementation of the CacheRepository interface,
// shared by every engine instance pointing at the same database
type MySQLCache struct {
	*sqlStore
}

// NewMySQLCache creates a new MySQL cache
func NewMySQLCache(dsn string, ttl time.Duration, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	// Create table if it doesn't exist
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS provider_cache (
			provider VARCHAR(64) NOT NULL,
			url_hash CHAR(64) NOT NULL,
			url TEXT NOT NULL,
			result MEDIUMTEXT NOT NULL,
			stored_at BIGINT NOT NULL,
			PRIMARY KEY (provider, url_hash),
			INDEX idx_provider_cache_stored_at (stored_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	store := newSQLStore(db, "mysql", `
		INSERT INTO provider_cache (provider, url_hash, url, result, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE url = VALUES(url), result = VALUES(result), stored_at = VALUES(stored_at)
	`, ttl, logger, cleanupFreq)

	return &MySQLCache{sqlStore: store}, nil
}
