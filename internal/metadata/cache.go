package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"MovieTrackr/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix       = "movietrackr:movie:"
	searchKeyPrefix = "movietrackr:search:"

	// upstreamTimeout bounds a shared upstream call, which runs detached from
	// any single caller's context.
	upstreamTimeout = 15 * time.Second
)

// KV is the subset of the Redis client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache fronts a Client with a Redis cache. Unknown ids are cached too, so a
// bad id does not hit the upstream on every request. Concurrent lookups of
// the same id share one upstream call.
type Cache struct {
	Next        Client
	Redis       KV
	TTL         time.Duration
	NegativeTTL time.Duration
	SearchTTL   time.Duration
	Logger      *slog.Logger

	group singleflight.Group
}

func NewCache(next Client, rdb KV, ttl time.Duration, logger *slog.Logger) *Cache {
	negative := ttl / 4
	if negative <= 0 {
		negative = time.Hour
	}
	return &Cache{Next: next, Redis: rdb, TTL: ttl, NegativeTTL: negative, SearchTTL: negative, Logger: logger}
}

type cachedMovie struct {
	Missing bool         `json:"missing,omitempty"`
	Movie   domain.Movie `json:"movie"`
}

func (c *Cache) Lookup(ctx context.Context, movieID string) (domain.Movie, error) {
	key := keyPrefix + movieID

	var entry cachedMovie
	if c.get(ctx, key, &entry) {
		if entry.Missing {
			return domain.Movie{}, domain.ErrNotFound
		}
		return entry.Movie, nil
	}

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		movie, err := c.Next.Lookup(ctx, movieID)
		switch {
		case err == nil:
			c.set(ctx, key, cachedMovie{Movie: movie}, c.TTL)
		case errors.Is(err, domain.ErrNotFound):
			c.set(ctx, key, cachedMovie{Missing: true}, c.NegativeTTL)
		}
		return movie, err
	})
	if err != nil {
		return domain.Movie{}, err
	}
	return v.(domain.Movie), nil
}

// Search caches result pages per lowercased query and page for SearchTTL.
func (c *Cache) Search(ctx context.Context, query string, page int) (domain.MovieSearchPage, error) {
	query = strings.TrimSpace(query)
	if page < 1 {
		page = 1
	}
	key := searchKeyPrefix + strconv.Itoa(page) + ":" + strings.ToLower(query)

	var cached domain.MovieSearchPage
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		res, err := c.Next.Search(ctx, query, page)
		if err == nil {
			c.set(ctx, key, res, c.SearchTTL)
		}
		return res, err
	})
	if err != nil {
		return domain.MovieSearchPage{}, err
	}
	return v.(domain.MovieSearchPage), nil
}

// shared runs fn once per key among concurrent callers. fn gets a context
// that outlives any one caller, so a cancelled request does not fail the
// others waiting on the same key; the cancelled caller returns early.
func (c *Cache) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), upstreamTimeout)
		defer cancel()
		return fn(flightCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	if c.Redis == nil {
		return false
	}
	raw, err := c.Redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger().Warn("metadata cache read failed", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger().Warn("metadata cache entry corrupt", "key", key, "err", err)
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any, ttl time.Duration) {
	if c.Redis == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.Redis.Set(ctx, key, b, ttl).Err(); err != nil {
		c.logger().Warn("metadata cache write failed", "key", key, "err", err)
	}
}

func (c *Cache) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// NewRedisClient opens a Redis client and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
