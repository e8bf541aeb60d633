// Package redis caches detail-page deadlines in Redis so repeated runs skip
// pages whose deadline is already known.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/hash/sha256"
)

// Config controls the Redis connection and key layout.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// DeadlineCache implements campaign.DeadlineCache.
type DeadlineCache struct {
	client kv
	ttl    time.Duration
	prefix string
}

// New connects to Redis and verifies it with PING.
func New(ctx context.Context, cfg Config) (*DeadlineCache, *goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil, fmt.Errorf("redis.addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(client, cfg), client, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client kv, cfg Config) *DeadlineCache {
	return &DeadlineCache{client: client, ttl: cfg.TTL, prefix: cfg.Prefix}
}

// Key is the Redis key for a detail URL.
func (c *DeadlineCache) Key(detailURL string) string {
	return c.prefix + sha256.Key(32, detailURL)
}

// Get returns the cached resolution for detailURL; a miss is not an error.
func (c *DeadlineCache) Get(ctx context.Context, detailURL string) (campaign.DeadlineResolution, bool, error) {
	raw, err := c.client.Get(ctx, c.Key(detailURL)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return campaign.DeadlineResolution{}, false, nil
	}
	if err != nil {
		return campaign.DeadlineResolution{}, false, fmt.Errorf("get cached deadline: %w", err)
	}
	var res campaign.DeadlineResolution
	if err := json.Unmarshal(raw, &res); err != nil {
		return campaign.DeadlineResolution{}, false, fmt.Errorf("decode cached deadline: %w", err)
	}
	return res, true, nil
}

// Set stores res for the configured TTL.
func (c *DeadlineCache) Set(ctx context.Context, detailURL string, res campaign.DeadlineResolution) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode deadline: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(detailURL), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached deadline: %w", err)
	}
	return nil
}
