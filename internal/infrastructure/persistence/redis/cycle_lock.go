package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CYCLE LOCK
// ══════════════════════════════════════════════════════════════════════════════

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CycleLock is a single-holder lease on a Redis key.
// It implements command.CycleLock across worker processes.
type CycleLock struct {
	client *Client
	key    string
	ttl    time.Duration
}

// NewCycleLock creates a lock on key. The lease expires after ttl even if
// the holder dies without releasing it.
func NewCycleLock(client *Client, key string, ttl time.Duration) *CycleLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CycleLock{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Key returns the Redis key guarded by the lock.
func (l *CycleLock) Key() string {
	return l.key
}

// TTL returns how long a lease lasts without being released.
func (l *CycleLock) TTL() time.Duration {
	return l.ttl
}

// Acquire takes the lease. Returns shared.ErrCycleInProgress while another
// holder owns it.
func (l *CycleLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, shared.ErrCycleInProgress
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release cycle lock %s: %w", l.key, err)
		}
		return nil
	}

	return release, nil
}
