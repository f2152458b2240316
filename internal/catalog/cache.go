package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/cases"
)

const cacheVersionKey = "catalog:version"

// Cache stores read-mostly storefront pages in Redis. Every catalog write
// bumps a global version so stale entries are never read again and simply
// expire.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	return ver, err
}

// Key composes a versioned cache key. Parts are case folded so lookups that
// differ only in case share an entry.
func (c *Cache) Key(ctx context.Context, parts ...string) (string, error) {
	folded := make([]string, 0, len(parts)+2)
	folded = append(folded, "catalog")
	caser := cases.Fold()
	for _, part := range parts {
		folded = append(folded, caser.String(strings.TrimSpace(part)))
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	folded = append(folded, "v"+strconv.FormatInt(ver, 10))
	return strings.Join(folded, ":"), nil
}

// Fetch loads a cached value into dest or populates it using load.
func (c *Cache) Fetch(ctx context.Context, key string, dest any, load func(context.Context) (any, error)) error {
	if load == nil {
		return errors.New("catalog cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached entry.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
