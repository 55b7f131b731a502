package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/study-match/internal/domain/shared"
)

// LastCycleKey holds the summary of the most recent completed cycle.
const LastCycleKey = PrefixMatching + "last_cycle"

// CycleStatusStore keeps the last cycle summary in Redis so every worker
// and the ops API see the same value.
type CycleStatusStore struct {
	client *Client
}

// NewCycleStatusStore creates a new CycleStatusStore.
func NewCycleStatusStore(client *Client) *CycleStatusStore {
	return &CycleStatusStore{client: client}
}

// Record is an event handler for cycle.completed.
func (s *CycleStatusStore) Record(event shared.Event) error {
	completed, ok := event.(shared.CycleCompletedEvent)
	if !ok {
		return nil
	}
	if err := s.client.SetJSON(context.Background(), LastCycleKey, completed, 0); err != nil {
		return fmt.Errorf("failed to store cycle status: %w", err)
	}
	return nil
}

// Last returns the most recent cycle summary, or nil if no cycle completed yet.
func (s *CycleStatusStore) Last(ctx context.Context) (*shared.CycleCompletedEvent, error) {
	var completed shared.CycleCompletedEvent
	if err := s.client.GetJSON(ctx, LastCycleKey, &completed); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &completed, nil
}
