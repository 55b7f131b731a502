package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

func TestIsEligible_CooldownBoundary(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	tests := []struct {
		name string
		user *profile.UserRecord
		want bool
	}{
		{"never matched", &profile.UserRecord{ID: "a", ProfileComplete: true}, true},
		{"23 hours ago", &profile.UserRecord{ID: "b", ProfileComplete: true, LastMatchCycleAt: at(23 * time.Hour)}, false},
		{"exactly 24 hours ago", &profile.UserRecord{ID: "c", ProfileComplete: true, LastMatchCycleAt: at(24 * time.Hour)}, true},
		{"three days ago", &profile.UserRecord{ID: "d", ProfileComplete: true, LastMatchCycleAt: at(72 * time.Hour)}, true},
		{"incomplete profile", &profile.UserRecord{ID: "e"}, false},
		{"nil record", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEligible(tt.user, now, DefaultCycleCooldown))
		})
	}
}

type stubProfileStore struct {
	users []*profile.UserRecord
	err   error

	lastFilter profile.CandidateFilter
	stamped    map[string]time.Time
	stampErr   map[string]error
}

func (s *stubProfileStore) GetEligibleCandidates(_ context.Context, filter profile.CandidateFilter) ([]*profile.UserRecord, error) {
	s.lastFilter = filter
	return s.users, s.err
}

func (s *stubProfileStore) GetByID(_ context.Context, id string) (*profile.UserRecord, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrProfileNotFound
}

func (s *stubProfileStore) UpdateLastCycle(_ context.Context, id string, at time.Time) error {
	if err := s.stampErr[id]; err != nil {
		return err
	}
	if s.stamped == nil {
		s.stamped = make(map[string]time.Time)
	}
	s.stamped[id] = at
	return nil
}

func (s *stubProfileStore) UpdateMatchStats(context.Context, string, profile.MatchStats) error {
	return nil
}

func TestEligibilityFilter_SelectEligible(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-23 * time.Hour)
	old := now.Add(-24 * time.Hour)

	store := &stubProfileStore{users: []*profile.UserRecord{
		{ID: "recent", ProfileComplete: true, LastMatchCycleAt: &recent},
		{ID: "old", ProfileComplete: true, LastMatchCycleAt: &old},
		{ID: "new", ProfileComplete: true},
		{ID: "draft"},
	}}

	pool, err := NewEligibilityFilter(store, DefaultCycleCooldown, 0).SelectEligible(context.Background(), now)
	require.NoError(t, err)

	ids := make([]string, 0, len(pool))
	for _, u := range pool {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{"old", "new"}, ids)
	assert.Equal(t, now, store.lastFilter.Now)
	assert.Equal(t, DefaultCycleCooldown, store.lastFilter.Cooldown)
}

func TestEligibilityFilter_PoolLimit(t *testing.T) {
	store := &stubProfileStore{users: []*profile.UserRecord{
		{ID: "1", ProfileComplete: true},
		{ID: "2", ProfileComplete: true},
		{ID: "3", ProfileComplete: true},
	}}

	pool, err := NewEligibilityFilter(store, 0, 2).SelectEligible(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, pool, 2)
	assert.Equal(t, 2, store.lastFilter.Limit)
}

func TestEligibilityFilter_EmptyIsNotAnError(t *testing.T) {
	pool, err := NewEligibilityFilter(&stubProfileStore{}, 0, 0).SelectEligible(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, pool)
}

func TestEligibilityFilter_StoreFailure(t *testing.T) {
	store := &stubProfileStore{err: errors.New("connection refused")}

	pool, err := NewEligibilityFilter(store, 0, 0).SelectEligible(context.Background(), time.Now())
	assert.Nil(t, pool)
	assert.ErrorIs(t, err, shared.ErrPoolUnavailable)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}
