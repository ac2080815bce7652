package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a resolved address stays cached.
const DefaultCacheTTL = 30 * 24 * time.Hour

const cacheKeyPrefix = "geocode:"

// Cache stores resolved coordinates by normalized address.
type Cache interface {
	Get(ctx context.Context, address string) (Coordinate, bool, error)
	Set(ctx context.Context, address string, c Coordinate) error
	Ping(ctx context.Context) error
}

// RedisCache is a Cache backed by Redis string keys with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache wraps client. A zero ttl uses DefaultCacheTTL.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisClientFromEnv builds a client from REDIS_ADDR, REDIS_PASSWORD and REDIS_DB.
// It returns nil when REDIS_ADDR is unset.
func NewRedisClientFromEnv() (*redis.Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", db, err)
		}
		opts.DB = n
	}
	return redis.NewClient(opts), nil
}

// Key returns the Redis key for address.
func Key(address string) string {
	return cacheKeyPrefix + strings.ToLower(Normalize(address))
}

func (c *RedisCache) Get(ctx context.Context, address string) (Coordinate, bool, error) {
	raw, err := c.client.Get(ctx, Key(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Coordinate{}, false, nil
	}
	if err != nil {
		return Coordinate{}, false, fmt.Errorf("get geocode cache: %w", err)
	}

	var coord Coordinate
	if err := json.Unmarshal(raw, &coord); err != nil {
		return Coordinate{}, false, fmt.Errorf("decode geocode cache entry: %w", err)
	}
	return coord, true, nil
}

func (c *RedisCache) Set(ctx context.Context, address string, coord Coordinate) error {
	raw, err := json.Marshal(coord)
	if err != nil {
		return fmt.Errorf("encode geocode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, Key(address), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set geocode cache: %w", err)
	}
	return nil
}

// Ping checks connectivity for the status endpoint.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var _ Cache = (*RedisCache)(nil)
