// Package cache keeps the last fetched price history per canonical symbol.
//
// Entries are written through to a durable Store. The most recently used
// entry is also held in memory so the fetch-then-analyze round trip does not
// read it back from disk.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stocktrader/internal/model"
)

// DefaultTTL is how long a fetched history stays usable for analysis
const DefaultTTL = 7 * 24 * time.Hour

const keyPrefix = "stock_history_"

// Key returns the store key for a canonical symbol
func Key(symbol string) string {
	return keyPrefix + symbol
}

// IsStale reports whether entry is older than ttl at now
func IsStale(entry *model.CachedSeries, now time.Time, ttl time.Duration) bool {
	return now.Sub(entry.FetchedAt) > ttl
}

// HistoryCache stores one CachedSeries per symbol
type HistoryCache struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	last *model.CachedSeries
}

// Option configures a HistoryCache
type Option func(*HistoryCache)

// WithClock overrides the time source used to stamp entries
func WithClock(now func() time.Time) Option {
	return func(c *HistoryCache) {
		c.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *HistoryCache) {
		c.logger = logger
	}
}

// New creates a cache on top of store
func New(store Store, opts ...Option) *HistoryCache {
	c := &HistoryCache{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the entry for symbol. Missing, unreadable and
// corrupt records all report absent.
func (c *HistoryCache) Get(symbol string) (*model.CachedSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != nil && c.last.Symbol == symbol {
		return c.last.Clone(), true
	}

	raw, ok, err := c.store.Load(Key(symbol))
	if err != nil {
		c.logger.Warn("history cache read failed", "symbol", symbol, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry model.CachedSeries
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("discarding corrupt history cache record", "symbol", symbol, "error", err)
		return nil, false
	}
	if entry.Symbol != symbol || entry.FetchedAt.IsZero() {
		c.logger.Warn("discarding mismatched history cache record",
			"symbol", symbol,
			"record_symbol", entry.Symbol)
		return nil, false
	}

	c.last = &entry
	return entry.Clone(), true
}

// Put replaces the entry for symbol with series stamped at the current time
// and returns the stored entry.
func (c *HistoryCache) Put(symbol string, series []model.Bar) (*model.CachedSeries, error) {
	entry := (&model.CachedSeries{
		Symbol:    symbol,
		Series:    series,
		FetchedAt: c.now(),
	}).Clone()
	if entry.Series == nil {
		entry.Series = []model.Bar{}
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode history for %s: %w", symbol, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Save(Key(symbol), raw); err != nil {
		return nil, fmt.Errorf("store history for %s: %w", symbol, err)
	}
	c.last = entry

	c.logger.Debug("history cached", "symbol", symbol, "bars", len(entry.Series))
	return entry.Clone(), nil
}

// Close closes the underlying store
func (c *HistoryCache) Close() error {
	return c.store.Close()
}
