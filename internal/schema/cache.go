package schema

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/querypilot/querypilot/internal/observability"
)

const DefaultRefreshInterval = time.Hour

// Cache holds the single shared snapshot. Refresh runs introspection
// outside the lock and swaps the pointer under it, so concurrent forced
// refreshes are last-writer-wins: both may introspect, the later swap
// becomes visible, and readers never observe a partial snapshot.
type Cache struct {
	introspector Introspector
	ttl          time.Duration
	logger       *slog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewCache(introspector Introspector, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{introspector: introspector, ttl: ttl, logger: logger}
}

// Get returns the cached snapshot, refreshing first when none exists,
// forceRefresh is set, or the snapshot is older than the refresh interval.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) (*Snapshot, error) {
	if !forceRefresh {
		if cached := c.cached(); cached != nil && time.Since(cached.RefreshedAt) < c.ttl {
			return cached, nil
		}
	}
	return c.refresh(ctx)
}

func (c *Cache) cached() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	fresh, err := c.introspector.Introspect(ctx)
	if err != nil {
		observability.ObserveSchemaRefresh("failure", time.Since(start))
		c.logger.ErrorContext(ctx, "schema refresh failed", slog.Any("error", err))
		return nil, &DiscoveryError{Err: err}
	}
	fresh.RefreshedAt = time.Now().UTC()

	c.mu.Lock()
	c.snapshot = &fresh
	c.mu.Unlock()

	observability.ObserveSchemaRefresh("success", time.Since(start))
	c.logger.InfoContext(ctx, "schema refreshed",
		slog.Int("tables", len(fresh.Tables)),
		slog.String("duration", time.Since(start).String()),
	)
	return &fresh, nil
}
