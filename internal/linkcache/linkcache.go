// Package linkcache keeps share links resolved by the link tool in Redis so
// repeated searches skip the extra tool call.
package linkcache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const keyPrefix = "olexi:link:"

// Key derives the cache key for a search. Database order does not matter.
func Key(query string, databases []string, method string) string {
	dbs := append([]string(nil), databases...)
	sort.Strings(dbs)
	h, _ := blake2b.New256(nil)
	h.Write([]byte(strings.TrimSpace(query)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(dbs, ",")))
	h.Write([]byte{0})
	h.Write([]byte(method))
	return keyPrefix + hex.EncodeToString(h.Sum(nil)[:16])
}

// Cache is a Redis backed link cache.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache storing entries for ttl. A non-positive ttl means a day.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, ttl), nil
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Cache) Set(ctx context.Context, key, url string) error {
	return c.rdb.Set(ctx, key, url, c.ttl).Err()
}

// Close releases the underlying client.
// Redis exposes the underlying client for callers sharing the connection.
func (c *Cache) Redis() *redis.Client { return c.rdb }

func (c *Cache) Close() error { return c.rdb.Close() }
