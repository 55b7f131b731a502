package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/study-match/internal/domain/shared"
)

// CycleLock is a single-process cycle lock. It only serializes runs inside
// one worker; multi-instance deployments use the Redis lock.
type CycleLock struct {
	mu sync.Mutex
}

// NewCycleLock creates an unlocked lock.
func NewCycleLock() *CycleLock {
	return &CycleLock{}
}

// Acquire takes the lock without waiting.
func (l *CycleLock) Acquire(_ context.Context) (func(context.Context) error, error) {
	if !l.mu.TryLock() {
		return nil, shared.ErrCycleInProgress
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}

// CycleStatusStore keeps the last cycle summary in process memory.
type CycleStatusStore struct {
	mu   sync.RWMutex
	last *shared.CycleCompletedEvent
}

// NewCycleStatusStore creates an empty store.
func NewCycleStatusStore() *CycleStatusStore {
	return &CycleStatusStore{}
}

// Record is an event handler for cycle.completed.
func (s *CycleStatusStore) Record(event shared.Event) error {
	completed, ok := event.(shared.CycleCompletedEvent)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.last = &completed
	s.mu.Unlock()
	return nil
}

// Last returns the most recent cycle summary, or nil if none completed yet.
func (s *CycleStatusStore) Last(_ context.Context) (*shared.CycleCompletedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil, nil
	}
	c := *s.last
	return &c, nil
}
