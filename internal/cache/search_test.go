package cache

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridepool/backend/internal/domain"
)

// fakeRedis is an in-memory stand-in for the three commands the cache uses.
type fakeRedis struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func newTestCache(r *fakeRedis) *RedisSearchCache {
	return NewRedisSearchCache(r, 30*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRedisSearchCache_MissThenHit(t *testing.T) {
	r := newFakeRedis()
	c := newTestCache(r)
	ctx := context.Background()
	filter := domain.TripSearch{Now: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}

	_, ok := c.Get(ctx, filter)
	assert.False(t, ok)

	trips := []domain.PublishedTrip{{ID: uuid.New(), AvailableSeats: 3, TotalSeats: 4}}
	c.Set(ctx, filter, trips)

	got, ok := c.Get(ctx, filter)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, trips[0].ID, got[0].ID)
	assert.Equal(t, 3, got[0].AvailableSeats)
}

func TestRedisSearchCache_InvalidateOrphansEntries(t *testing.T) {
	r := newFakeRedis()
	c := newTestCache(r)
	ctx := context.Background()
	filter := domain.TripSearch{Now: time.Now()}

	c.Set(ctx, filter, []domain.PublishedTrip{{ID: uuid.New()}})
	c.Invalidate(ctx)

	_, ok := c.Get(ctx, filter)
	assert.False(t, ok)
}

func TestFilterKey_RoundsNearbySearches(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 10, 0, time.UTC)
	a := domain.Coords{Lat: 12.97161, Lng: 77.59462}
	b := domain.Coords{Lat: 12.97155, Lng: 77.59458}

	assert.Equal(t,
		FilterKey(domain.TripSearch{From: &a, Now: now}),
		FilterKey(domain.TripSearch{From: &b, Now: now.Add(20 * time.Second)}))
}
