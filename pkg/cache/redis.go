package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ngoyal88/auditrelay/pkg/config"
)

const redisDialTimeout = 2 * time.Second

// Client is a connected Redis handle shared by the log store and the
// distributed rate limiter.
type Client struct {
	rdb *redis.Client
}

// NewRedis connects to the server described by cfg and fails fast when it
// does not answer a ping.
func NewRedis(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisDialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	return &Client{rdb: rdb}, nil
}

// Redis exposes the underlying client for commands the wrapper does not cover.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Get returns the raw value at key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
