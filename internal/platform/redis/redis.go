// Package redis opens the backend's single redis connection. Raffle state,
// organizer profiles, permit nonces, credentials, beacon seeds, and the
// ledger all share this client.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client embeds the go-redis client so the stores can use it directly.
type Client struct {
	*redis.Client
}

// Open connects to redis at addr and verifies the connection with a ping.
// The raffle stores assume a reachable instance at startup; failing here is
// better than failing on the first request.
func Open(ctx context.Context, addr, password string, db int) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Client{Client: c}, nil
}
