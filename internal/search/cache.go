package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mangaverse/pkg/models"
)

const suggestTTL = 60 * time.Second

// SuggestCache memoizes suggest results per normalized query.
type SuggestCache interface {
	Get(ctx context.Context, q string) ([]models.Suggestion, bool)
	Set(ctx context.Context, q string, results []models.Suggestion)
	// Invalidate drops every cached query, called when the catalog changes.
	Invalidate(ctx context.Context)
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ttl: suggestTTL}
}

// NewRedisCacheFromURL parses a redis:// URL and pings the server.
func NewRedisCacheFromURL(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisCache(client), nil
}

func cacheKey(q string) string {
	return "suggest:" + strings.ToLower(strings.TrimSpace(q))
}

// Get treats every redis failure as a miss.
func (c *RedisCache) Get(ctx context.Context, q string) ([]models.Suggestion, bool) {
	raw, err := c.client.Get(ctx, cacheKey(q)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("suggest cache get failed", "error", err)
		}
		return nil, false
	}
	var out []models.Suggestion
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func (c *RedisCache) Set(ctx context.Context, q string, results []models.Suggestion) {
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(q), raw, c.ttl).Err(); err != nil {
		slog.Warn("suggest cache set failed", "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	var keys []string
	iter := c.client.Scan(ctx, 0, "suggest:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("suggest cache scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("suggest cache invalidate failed", "error", err, "keys", len(keys))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
