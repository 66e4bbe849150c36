package cache

import (
	"context"
	"sync"
	"time"

	"github.com/alim08/partner_events/pkg/metrics"
	"github.com/alim08/partner_events/pkg/models"
)

const backendMemory = "memory"

type record struct {
	id       string
	title    string
	start    time.Time
	end      time.Time
	minPrice float64
	maxPrice float64
}

// MemoryCache keeps records in a map guarded by a single RWMutex. Records are
// stored by value and replaced whole under the write lock.
type MemoryCache struct {
	mu      sync.RWMutex
	records map[models.EventKey]record
	order   []models.EventKey // first-sighting order
	newID   IDGenerator
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithIDGenerator replaces the UUID surrogate id source.
func WithIDGenerator(gen IDGenerator) MemoryOption {
	return func(c *MemoryCache) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		records: make(map[models.EventKey]record),
		newID:   newUUID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert implements EventCache.
func (c *MemoryCache) Upsert(_ context.Context, event models.PartnerEvent) error {
	start := time.Now()
	key := event.Key()

	c.mu.Lock()
	rec, ok := c.records[key]
	if !ok {
		rec.id = c.newID()
		c.order = append(c.order, key)
	}
	rec.title = event.Title
	rec.start = event.Start
	rec.end = event.End
	rec.minPrice = event.MinPrice
	rec.maxPrice = event.MaxPrice
	c.records[key] = rec
	size := len(c.order)
	c.mu.Unlock()

	metrics.CacheRecords.WithLabelValues(backendMemory).Set(float64(size))
	metrics.CacheOperationDuration.WithLabelValues(backendMemory, "upsert", "success").Observe(time.Since(start).Seconds())
	return nil
}

// Query implements EventCache. Results follow first-sighting order.
func (c *MemoryCache) Query(_ context.Context, from, to time.Time) ([]models.EventSummary, error) {
	start := time.Now()
	out := []models.EventSummary{}

	c.mu.RLock()
	for _, key := range c.order {
		rec := c.records[key]
		if rec.start.Before(from) || rec.end.After(to) {
			continue
		}
		out = append(out, models.NewEventSummary(rec.id, rec.title, rec.start, rec.end, rec.minPrice, rec.maxPrice))
	}
	c.mu.RUnlock()

	metrics.CacheOperationDuration.WithLabelValues(backendMemory, "query", "success").Observe(time.Since(start).Seconds())
	return out, nil
}

// Len returns the number of records held.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
