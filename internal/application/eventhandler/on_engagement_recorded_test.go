package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

type stubRecomputer struct {
	mu    sync.Mutex
	users []string
	fail  map[string]bool
}

func (s *stubRecomputer) Recompute(_ context.Context, userID string) (profile.MatchStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, userID)
	if s.fail[userID] {
		return profile.MatchStats{}, errors.New("store down")
	}
	return profile.MatchStats{TotalMatches: 1}, nil
}

func TestOnEngagementRecorded_RecomputesBothUsers(t *testing.T) {
	stats := &stubRecomputer{}
	h := NewOnEngagementRecordedHandler(stats, nil, DefaultEngagementRecordedConfig())

	err := h.Handle(shared.NewEngagementRecordedEvent("p1", "messages", "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stats.users)
}

func TestOnEngagementRecorded_ContinuesAfterFailure(t *testing.T) {
	stats := &stubRecomputer{fail: map[string]bool{"a": true}}
	h := NewOnEngagementRecordedHandler(stats, nil, DefaultEngagementRecordedConfig())

	err := h.Handle(shared.NewEngagementRecordedEvent("p1", "unmatched", "a", "b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recompute a")
	assert.Equal(t, []string{"a", "b"}, stats.users)
}

func TestOnEngagementRecorded_IgnoresOtherEventsAndDisabledFlag(t *testing.T) {
	stats := &stubRecomputer{}

	h := NewOnEngagementRecordedHandler(stats, nil, DefaultEngagementRecordedConfig())
	require.NoError(t, h.Handle(shared.NewStatsRecomputedEvent("a", 1, 0, 0)))

	disabled := NewOnEngagementRecordedHandler(stats, nil, EngagementRecordedConfig{Enabled: func() bool { return false }})
	require.NoError(t, disabled.Handle(shared.NewEngagementRecordedEvent("p1", "messages", "a", "b")))

	assert.Empty(t, stats.users)
}
