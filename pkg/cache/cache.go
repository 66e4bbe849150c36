package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/partner_events/pkg/config"
	"github.com/alim08/partner_events/pkg/models"
	"github.com/alim08/partner_events/pkg/redisclient"
	"github.com/google/uuid"
)

var ErrUnknownBackend = errors.New("unknown cache backend")

// EventCache is an upsert-only store of the latest known record per event key.
// Records are never removed.
type EventCache interface {
	// Upsert creates the record for a new key, assigning it a surrogate id,
	// or replaces every mutable field of the existing one. Concurrent readers
	// observe either the old or the new record, never a mix.
	Upsert(ctx context.Context, event models.PartnerEvent) error
	// Query returns every record with start >= from and end <= to, in an
	// order that is deterministic for a given sequence of upserts.
	Query(ctx context.Context, from, to time.Time) ([]models.EventSummary, error)
}

// IDGenerator produces surrogate identifiers.
type IDGenerator func() string

func newUUID() string { return uuid.NewString() }

// NewFromConfig builds the configured backend. The returned close function
// releases any connection the backend holds.
func NewFromConfig(ctx context.Context, cfg *config.Config) (EventCache, func() error, error) {
	switch cfg.CacheBackend {
	case config.BackendMemory, "":
		return NewMemoryCache(), func() error { return nil }, nil
	case config.BackendRedis:
		rdb, err := redisclient.New(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := rdb.Ping(ctx); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisCache(rdb, cfg.RedisKeyPrefix), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.CacheBackend)
	}
}
