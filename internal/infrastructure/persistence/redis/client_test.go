package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-match/internal/domain/shared"
)

func TestConfig_Options(t *testing.T) {
	t.Run("host and port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Host = "cache"
		cfg.Port = 6380
		cfg.DB = 2

		opts, err := cfg.Options()
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 10, opts.PoolSize)
	})

	t.Run("url wins", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.URL = "redis://:secret@queue:6390/3"

		opts, err := cfg.Options()
		require.NoError(t, err)
		assert.Equal(t, "queue:6390", opts.Addr)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 3, opts.DB)
	})

	t.Run("bad url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.URL = "http://nope"

		_, err := cfg.Options()
		assert.Error(t, err)
	})
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "lock:matching:cycle", LockKey("matching:cycle"))
}

// unreachableClient points at a closed port so every command fails fast.
func unreachableClient(t *testing.T) *Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFrom(rdb)
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.DialTimeout = 200 * time.Millisecond

	_, err := NewClient(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestCycleLock_BackendFailureIsNotContention(t *testing.T) {
	lock := NewCycleLock(unreachableClient(t), "lock:matching:cycle", time.Minute)
	assert.Equal(t, "lock:matching:cycle", lock.Key())
	assert.Equal(t, time.Minute, lock.TTL())
	assert.Equal(t, 30*time.Minute, NewCycleLock(nil, "k", 0).TTL())

	release, err := lock.Acquire(context.Background())
	require.Error(t, err)
	assert.Nil(t, release)
	assert.NotErrorIs(t, err, shared.ErrCycleInProgress)
}

func TestCycleStatusStore_IgnoresOtherEvents(t *testing.T) {
	store := NewCycleStatusStore(unreachableClient(t))

	err := store.Record(shared.NewPairingCreatedEvent("p-1", "a", "b", 80))
	assert.NoError(t, err)
}
