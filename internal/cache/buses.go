package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluele/gcache"

	"github.com/eshotmap/eshot_core/internal/models"
)

const (
	DefaultBusCacheSize = 2048
	DefaultBusCacheTTL  = 5 * time.Second
)

// BusSource fetches live approaching-bus records for one stop
type BusSource interface {
	FetchApproachingBuses(ctx context.Context, stopID string) []models.ApproachingBus
}

// BusCache is a short-lived LRU in front of the live feed so that many HTTP
// clients polling the same stop cost one upstream request per TTL.
// Empty lists are not cached: they may stand for a failed fetch.
type BusCache struct {
	src    BusSource
	lru    gcache.Cache
	logger *slog.Logger
}

// NewBusCache wraps src with an LRU of size entries expiring after ttl
func NewBusCache(src BusSource, size int, ttl time.Duration, logger *slog.Logger) *BusCache {
	return newBusCache(src, size, ttl, gcache.NewRealClock(), logger)
}

func newBusCache(src BusSource, size int, ttl time.Duration, clock gcache.Clock, logger *slog.Logger) *BusCache {
	if size <= 0 {
		size = DefaultBusCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultBusCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BusCache{
		src: src,
		lru: gcache.New(size).
			LRU().
			Expiration(ttl).
			Clock(clock).
			Build(),
		logger: logger,
	}
}

// FetchApproachingBuses serves a cached list when one is fresh
func (c *BusCache) FetchApproachingBuses(ctx context.Context, stopID string) []models.ApproachingBus {
	if cached, err := c.lru.Get(stopID); err == nil {
		if buses, ok := cached.([]models.ApproachingBus); ok {
			c.logger.Debug("bus cache hit", slog.String("stop_id", stopID))
			return buses
		}
	}

	buses := c.src.FetchApproachingBuses(ctx, stopID)
	if len(buses) > 0 {
		if err := c.lru.Set(stopID, buses); err != nil {
			c.logger.Warn("bus cache set failed", slog.String("stop_id", stopID), slog.String("error", err.Error()))
		}
	}
	return buses
}

// Invalidate drops the cached list for stopID
func (c *BusCache) Invalidate(stopID string) {
	c.lru.Remove(stopID)
}
