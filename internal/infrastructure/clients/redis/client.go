package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zatekoja/medlogistics/backend/pkg/config"
)

const connectTimeout = 5 * time.Second

// Client owns the Redis connection shared by the lock manager and the event
// bus. It is a UniversalClient so a sentinel or cluster deployment only needs
// a different address list.
type Client struct {
	client redis.UniversalClient
	addrs  []string
}

// NewClient connects to Redis and verifies the connection
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	addrs := []string{cfg.RedisAddr()}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  connectTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %v: %w", addrs, err)
	}

	return &Client{client: client, addrs: addrs}, nil
}

// Client returns the underlying Redis client
func (c *Client) Client() redis.UniversalClient {
	return c.client
}

// Addrs returns the addresses the client was built with
func (c *Client) Addrs() []string {
	return c.addrs
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
