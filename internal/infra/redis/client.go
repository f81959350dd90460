package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the pipeline: the generation
// resource lock and the failed-jobs queue.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration. An empty URL disables
// Redis-backed features entirely.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings Redis.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func lockKey(resource string) string {
	return fmt.Sprintf("mograph:lock:%s", resource)
}

// AcquireLock attempts to acquire the named resource lock (e.g. the GPU
// of the generation host). Jobs hold it around backend calls so only one
// run drives the generation backend at a time across hosts.
func (c *Client) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(resource), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// WaitLock blocks until the lock is acquired, the timeout elapses, or
// the context is cancelled.
func (c *Client) WaitLock(ctx context.Context, resource string, ttl, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := c.AcquireLock(ctx, resource, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for lock %q", resource)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// ReleaseLock releases the named resource lock.
func (c *Client) ReleaseLock(ctx context.Context, resource string) error {
	return c.rdb.Del(ctx, lockKey(resource)).Err()
}

// RefreshLock extends the TTL of a held lock.
func (c *Client) RefreshLock(ctx context.Context, resource string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, lockKey(resource), ttl).Err()
}
