package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/core"
)

// sqlStore holds the provider_cache logic shared by the SQL backends
type sqlStore struct {
	db       *sql.DB
	backend  string
	upsert   string
	ttl      time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func newSQLStore(db *sql.DB, backend, upsert string, ttl time.Duration, logger *zap.Logger, cleanupFreq time.Duration) *sqlStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &sqlStore{
		db:      db,
		backend: backend,
		upsert:  upsert,
		ttl:     ttl,
		logger:  logger.With(zap.String("cache", backend)),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	if cleanupFreq > 0 {
		go runCleanup(s, cleanupFreq, s.stopCh, s.logger)
	}

	return s
}

// hashURL keeps the primary key short for URLs of any length
func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (s *sqlStore) load(ctx context.Context, provider, url string) (core.ProviderResult, time.Time, error) {
	var result core.ProviderResult
	var payload string
	var storedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT result, stored_at
		FROM provider_cache
		WHERE provider = ? AND url_hash = ?
	`, provider, hashURL(url)).Scan(&payload, &storedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, time.Time{}, ErrNotFound
		}
		return result, time.Time{}, fmt.Errorf("failed to query cache: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return result, time.Time{}, fmt.Errorf("failed to decode cached result: %w", err)
	}

	return result, time.Unix(0, storedAt), nil
}

// Get returns a fresh cached result; expired rows are deleted
func (s *sqlStore) Get(ctx context.Context, provider, url string) (*core.ProviderResult, bool) {
	result, storedAt, err := s.load(ctx, provider, url)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("Failed to read cache entry", zap.Error(err), zap.String("provider", provider))
		}
		return nil, false
	}

	if s.now().Sub(storedAt) >= s.ttl {
		if err := s.Delete(ctx, provider, url); err != nil {
			s.logger.Warn("Failed to evict expired cache entry", zap.Error(err))
		}
		return nil, false
	}

	result.Cached = false
	return &result, true
}

// Set stores a result
func (s *sqlStore) Set(ctx context.Context, provider, url string, result core.ProviderResult) {
	stored := result.Clone()
	stored.Cached = false

	payload, err := json.Marshal(stored)
	if err != nil {
		s.logger.Error("Failed to encode cache entry", zap.Error(err))
		return
	}

	if _, err := s.db.ExecContext(ctx, s.upsert,
		provider, hashURL(url), url, string(payload), s.now().UnixNano()); err != nil {
		s.logger.Error("Failed to insert cache entry", zap.Error(err), zap.String("provider", provider))
	}
}

// Delete removes a cache entry
func (s *sqlStore) Delete(ctx context.Context, provider, url string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM provider_cache
		WHERE provider = ? AND url_hash = ?
	`, provider, hashURL(url))
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired entries
func (s *sqlStore) Cleanup(ctx context.Context) error {
	cutoff := s.now().Add(-s.ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM provider_cache
		WHERE stored_at <= ?
	`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up expired cache entries", zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (s *sqlStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	})
}
