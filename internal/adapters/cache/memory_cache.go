package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/core"
)

// DefaultTTL is how long a provider result stays fresh
const DefaultTTL = 300 * time.Second

// ErrNotFound is returned when a cache entry is not found
var ErrNotFound = errors.New("cache entry not found")

type memoryEntry struct {
	result   core.ProviderResult
	storedAt time.Time
}

// MemoryCache is an in-memory implementation of the CacheRepository interface
type MemoryCache struct {
	entries     map[string]memoryEntry
	mu          sync.RWMutex
	ttl         time.Duration
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewMemoryCache creates a new in-memory cache. A positive cleanupFreq starts
// a background task removing expired entries; expired entries are otherwise
// evicted when read.
func NewMemoryCache(ttl time.Duration, logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := &MemoryCache{
		entries:     make(map[string]memoryEntry),
		ttl:         ttl,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go runCleanup(cache, cleanupFreq, cache.stopCh, logger)
	}

	return cache
}

func memoryKey(provider, url string) string {
	return provider + "\x00" + url
}

// Get returns a copy of a fresh cached result
func (c *MemoryCache) Get(ctx context.Context, provider, url string) (*core.ProviderResult, bool) {
	key := memoryKey(provider, url)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.mu.Lock()
		// Another writer may have refreshed the entry meanwhile
		if current, ok := c.entries[key]; ok && c.now().Sub(current.storedAt) >= c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	result := entry.result.Clone()
	return &result, true
}

// Set stores a result
func (c *MemoryCache) Set(ctx context.Context, provider, url string, result core.ProviderResult) {
	stored := result.Clone()
	stored.Cached = false

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[memoryKey(provider, url)] = memoryEntry{
		result:   stored,
		storedAt: c.now(),
	}
}

// Delete removes a cache entry
func (c *MemoryCache) Delete(ctx context.Context, provider, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, memoryKey(provider, url))
	return nil
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiredCount := 0

	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expiredCount))
	return nil
}

// Len returns the number of stored entries, fresh or not
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

type cleaner interface {
	Cleanup(ctx context.Context) error
}

// runCleanup periodically removes expired entries until stopCh is closed
func runCleanup(c cleaner, freq time.Duration, stopCh <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-stopCh:
			return
		}
	}
}
