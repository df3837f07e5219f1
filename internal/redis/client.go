// Package redis provides the shared redis client used by the dedup
// tracker.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	connectionTimeout = 2 * time.Second
)

// NewClient creates a new Redis client and verifies the connection.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", pingErr)
	}

	return client, nil
}

// CheckConnection tests if Redis is reachable
func CheckConnection(client *redis.Client) (bool, error) {
	if client == nil {
		return false, errors.New("redis client is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return false, err
	}

	return true, nil
}
