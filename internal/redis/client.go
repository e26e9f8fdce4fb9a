// Package redisclient builds the shared redis connection used for booking
// locks, calendar event fan-out and reminder delivery channels.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Lock and publish round trips are short; a slow redis should surface
	// as an error quickly rather than hold a booking request open.
	commandTimeout = 2 * time.Second
	connectTimeout = 5 * time.Second
)

// NewRedisClient connects, verifies the connection with a ping and returns
// a pooled client. A client that cannot be pinged is closed and an error
// returned so callers fail at startup instead of on the first booking.
func NewRedisClient(addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		ReadTimeout:  commandTimeout,
		WriteTimeout: commandTimeout,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
