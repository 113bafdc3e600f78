// Package cache holds the read-through cache in front of pool trip search.
// Search results may be briefly stale; seat claims never read from here.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/observability"
)

// SearchCache stores search results keyed by filter.
type SearchCache interface {
	Get(ctx context.Context, filter domain.TripSearch) ([]domain.PublishedTrip, bool)
	Set(ctx context.Context, filter domain.TripSearch, trips []domain.PublishedTrip)
	// Invalidate drops every cached result. Called after any write that can
	// change what a search returns.
	Invalidate(ctx context.Context)
}

// redisClient is the part of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

const generationKey = "trips:search:gen"

// RedisSearchCache namespaces entries by a generation counter. Invalidate
// bumps the counter, orphaning old entries until their TTL expires.
type RedisSearchCache struct {
	client redisClient
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisSearchCache constructs a cache over client with the given entry TTL.
func NewRedisSearchCache(client redisClient, ttl time.Duration, log *slog.Logger) *RedisSearchCache {
	return &RedisSearchCache{client: client, ttl: ttl, log: log}
}

// NewRedisClient opens a client for addr. The connection is established lazily.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password})
}

func (c *RedisSearchCache) Get(ctx context.Context, filter domain.TripSearch) ([]domain.PublishedTrip, bool) {
	key, err := c.key(ctx, filter)
	if err != nil {
		c.miss(ctx, err)
		return nil, false
	}
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.miss(ctx, err)
		return nil, false
	}
	var trips []domain.PublishedTrip
	if err := json.Unmarshal(b, &trips); err != nil {
		c.miss(ctx, err)
		return nil, false
	}
	observability.SearchCacheTotal.WithLabelValues("hit").Inc()
	return trips, true
}

func (c *RedisSearchCache) Set(ctx context.Context, filter domain.TripSearch, trips []domain.PublishedTrip) {
	key, err := c.key(ctx, filter)
	if err != nil {
		c.log.WarnContext(ctx, "search cache set failed", "error", err)
		return
	}
	b, err := json.Marshal(trips)
	if err != nil {
		c.log.WarnContext(ctx, "search cache set failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "search cache set failed", "error", err)
	}
}

func (c *RedisSearchCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		c.log.WarnContext(ctx, "search cache invalidate failed", "error", err)
	}
}

func (c *RedisSearchCache) miss(ctx context.Context, err error) {
	observability.SearchCacheTotal.WithLabelValues("miss").Inc()
	if !errors.Is(err, redis.Nil) {
		c.log.DebugContext(ctx, "search cache miss", "error", err)
	}
}

// key reads the current generation and renders the filter. Coordinates are
// rounded to roughly 100 m and the clock to the minute so nearby searches
// share an entry.
func (c *RedisSearchCache) key(ctx context.Context, filter domain.TripSearch) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read generation: %w", err)
	}
	return fmt.Sprintf("trips:search:%d:%s", gen, FilterKey(filter)), nil
}

// FilterKey renders filter as a stable cache-key fragment.
func FilterKey(filter domain.TripSearch) string {
	var b strings.Builder
	if filter.Kind != nil {
		b.WriteString(string(*filter.Kind))
	}
	b.WriteByte('|')
	if filter.From != nil {
		fmt.Fprintf(&b, "%.3f,%.3f", filter.From.Lat, filter.From.Lng)
	}
	b.WriteByte('|')
	if filter.To != nil {
		fmt.Fprintf(&b, "%.3f,%.3f", filter.To.Lat, filter.To.Lng)
	}
	b.WriteByte('|')
	b.WriteString(filter.Now.UTC().Truncate(time.Minute).Format(time.RFC3339))
	return b.String()
}

// NoopSearchCache never stores anything.
type NoopSearchCache struct{}

func (NoopSearchCache) Get(context.Context, domain.TripSearch) ([]domain.PublishedTrip, bool) {
	return nil, false
}
func (NoopSearchCache) Set(context.Context, domain.TripSearch, []domain.PublishedTrip) {}
func (NoopSearchCache) Invalidate(context.Context)                                    {}
