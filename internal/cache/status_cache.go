package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Terminal outcomes are immutable, so they can be served from cache without
// ever going back to the processor. The expiry bounds the cache: entries
// outlive the processor's own ~24h reconciliation window and then drop out.
const TerminalExpiry = 24 * time.Hour

// StatusStore caches resolved payment statuses keyed by checkoutRequestID.
type StatusStore interface {
	GetStatus(ctx context.Context, checkoutRequestID string) (string, bool, error)
	SetTerminal(ctx context.Context, checkoutRequestID, status string) error
}

// RedisStore implements StatusStore on Redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb}
}

func (r *RedisStore) key(checkoutRequestID string) string {
	return fmt.Sprintf("stk:%s", checkoutRequestID)
}

// GetStatus returns the cached terminal status, if any. A miss is not an
// error.
func (r *RedisStore) GetStatus(ctx context.Context, checkoutRequestID string) (string, bool, error) {
	status, err := r.client.Get(ctx, r.key(checkoutRequestID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET: %w", err)
	}
	return status, true, nil
}

// SetTerminal records a terminal status. Pending outcomes are never cached:
// they can still change, and the processor is the only authority on when.
func (r *RedisStore) SetTerminal(ctx context.Context, checkoutRequestID, status string) error {
	return r.client.Set(ctx, r.key(checkoutRequestID), status, TerminalExpiry).Err()
}

// Ping verifies the connection at startup.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
