package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alim08/partner_events/pkg/logger"
	"github.com/alim08/partner_events/pkg/metrics"
	"github.com/alim08/partner_events/pkg/models"
	"github.com/alim08/partner_events/pkg/redisclient"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const backendRedis = "redis"

// Hash fields of a stored record.
const (
	fieldID       = "id"
	fieldTitle    = "title"
	fieldStart    = "start"
	fieldEnd      = "end"
	fieldMinPrice = "min_price"
	fieldMaxPrice = "max_price"
)

// RedisCache stores each record as one hash and indexes keys in a sorted set
// scored by start time (unix seconds).
//
// The surrogate id is written once with HSETNX; every mutable field is written
// by a single HSET, which Redis applies atomically. A hash seen without its
// mutable fields belongs to a first upsert still in flight and is skipped.
type RedisCache struct {
	rdb    *redisclient.Client
	prefix string
	newID  IDGenerator
}

// NewRedisCache builds a cache under the given key prefix.
func NewRedisCache(rdb *redisclient.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "events"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, newID: newUUID}
}

func (c *RedisCache) indexKey() string { return c.prefix + ":index" }

func (c *RedisCache) recordKey(member string) string { return c.prefix + ":event:" + member }

// Upsert implements EventCache.
func (c *RedisCache) Upsert(ctx context.Context, event models.PartnerEvent) (err error) {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues(backendRedis, "upsert", metrics.Status(err)).Observe(time.Since(start).Seconds())
	}()

	member := event.Key().String()
	key := c.recordKey(member)

	if _, err := c.rdb.HSetNX(ctx, key, fieldID, c.newID()); err != nil {
		return fmt.Errorf("assign id %s: %w", member, err)
	}
	if err := c.rdb.HSet(ctx, key,
		fieldTitle, event.Title,
		fieldStart, event.Start.UTC().Format(time.RFC3339Nano),
		fieldEnd, event.End.UTC().Format(time.RFC3339Nano),
		fieldMinPrice, strconv.FormatFloat(event.MinPrice, 'f', -1, 64),
		fieldMaxPrice, strconv.FormatFloat(event.MaxPrice, 'f', -1, 64),
	); err != nil {
		return fmt.Errorf("write record %s: %w", member, err)
	}
	if err := c.rdb.ZAdd(ctx, c.indexKey(), &redis.Z{Score: float64(event.Start.Unix()), Member: member}); err != nil {
		return fmt.Errorf("index record %s: %w", member, err)
	}
	return nil
}

// Query implements EventCache. Results are ordered by start second, then key.
func (c *RedisCache) Query(ctx context.Context, from, to time.Time) (out []models.EventSummary, err error) {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues(backendRedis, "query", metrics.Status(err)).Observe(time.Since(start).Seconds())
	}()

	// end >= start, so every match has start within [from, to]
	members, err := c.rdb.ZRangeByScore(ctx, c.indexKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.Unix(), 10),
		Max: strconv.FormatInt(to.Unix(), 10),
	})
	if err != nil {
		return nil, fmt.Errorf("range index: %w", err)
	}

	out = make([]models.EventSummary, 0, len(members))
	for _, member := range members {
		fields, err := c.rdb.HGetAll(ctx, c.recordKey(member))
		if err != nil {
			return nil, fmt.Errorf("read record %s: %w", member, err)
		}
		rec, ok := decodeRecord(fields)
		if !ok {
			logger.Log.Debug("skipping incomplete cache record", zap.String("key", member))
			continue
		}
		if rec.start.Before(from) || rec.end.After(to) {
			continue
		}
		out = append(out, models.NewEventSummary(rec.id, rec.title, rec.start, rec.end, rec.minPrice, rec.maxPrice))
	}
	return out, nil
}

// Len returns the number of indexed records.
func (c *RedisCache) Len(ctx context.Context) (int64, error) {
	n, err := c.rdb.ZCard(ctx, c.indexKey())
	if err == nil {
		metrics.CacheRecords.WithLabelValues(backendRedis).Set(float64(n))
	}
	return n, err
}

// Ping checks the backing connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx)
}

func decodeRecord(fields map[string]string) (record, bool) {
	var rec record
	var err error

	title, ok := fields[fieldTitle]
	if !ok || fields[fieldID] == "" {
		return rec, false
	}
	rec.id = fields[fieldID]
	rec.title = title
	if rec.start, err = time.Parse(time.RFC3339Nano, fields[fieldStart]); err != nil {
		return rec, false
	}
	if rec.end, err = time.Parse(time.RFC3339Nano, fields[fieldEnd]); err != nil {
		return rec, false
	}
	if rec.minPrice, err = strconv.ParseFloat(fields[fieldMinPrice], 64); err != nil {
		return rec, false
	}
	if rec.maxPrice, err = strconv.ParseFloat(fields[fieldMaxPrice], 64); err != nil {
		return rec, false
	}
	return rec, true
}
