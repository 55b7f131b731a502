package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-match/internal/domain/engagement"
	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
	"github.com/alem-hub/study-match/internal/infrastructure/persistence/memory"
)

type failingFeed struct{}

func (failingFeed) SignalsFor(context.Context, []string) (map[string]engagement.Signal, error) {
	return nil, errors.New("feed timeout")
}

type statsFixture struct {
	profiles   *memory.ProfileStore
	ledger     *memory.Ledger
	signals    *memory.EngagementStore
	publisher  *recordingPublisher
	tracker    *StatsTracker
	pairingIDs map[matching.PairKey]string
}

func newStatsFixture(t *testing.T, feed engagement.Feed) *statsFixture {
	t.Helper()

	f := &statsFixture{
		profiles: memory.NewProfileStore(
			student("a", "KBTU", 1), student("b", "KBTU", 2), student("c", "KBTU", 3),
		),
		ledger:     memory.NewLedger(),
		signals:    memory.NewEngagementStore(),
		publisher:  &recordingPublisher{},
		pairingIDs: map[matching.PairKey]string{},
	}
	if feed == nil {
		feed = f.signals
	}

	ctx := context.Background()
	for _, pair := range [][2]string{{"a", "b"}, {"c", "a"}, {"b", "ghost"}} {
		p, err := matching.NewCyclePairing(pair[0], pair[1], matching.ScoreBreakdown{Adjusted: 70}, cycleNow)
		require.NoError(t, err)
		id, err := f.ledger.Create(ctx, p)
		require.NoError(t, err)
		f.pairingIDs[p.Key()] = id
	}

	f.tracker = NewStatsTracker(f.ledger, f.profiles, feed, f.publisher, nil, nil, 4).
		WithClock(func() time.Time { return cycleNow.Add(14 * 24 * time.Hour) })
	return f
}

func (f *statsFixture) apply(t *testing.T, a, b string, update engagement.Update) {
	t.Helper()
	update.PairingID = f.pairingIDs[matching.NewPairKey(a, b)]
	update.At = cycleNow.Add(time.Hour)
	_, err := f.signals.Apply(context.Background(), update)
	require.NoError(t, err)
}

func TestStatsTracker_Recompute(t *testing.T) {
	f := newStatsFixture(t, nil)
	f.apply(t, "a", "b", engagement.Update{Kind: engagement.KindMessages, MessageDelta: 12})
	f.apply(t, "a", "b", engagement.Update{Kind: engagement.KindSessionScheduled})
	f.apply(t, "a", "c", engagement.Update{Kind: engagement.KindMessages, MessageDelta: 2})
	f.apply(t, "a", "c", engagement.Update{Kind: engagement.KindUnmatched})

	stats, err := f.tracker.Recompute(context.Background(), "a")
	require.NoError(t, err)

	// a-b: 24+30+30 = 84 (successful); a-c: 4 + 0 - 40 -> 0.
	assert.Equal(t, 2, stats.TotalMatches)
	assert.Equal(t, 1, stats.SuccessfulMatches)
	assert.InDelta(t, 7.0, stats.AvgMessagesPerMatch, 1e-9)

	stored, err := f.profiles.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, stats, stored.Stats())

	events := f.publisher.ofType(shared.EventStatsRecomputed)
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].AggregateID())
}

func TestStatsTracker_FeedFailure(t *testing.T) {
	f := newStatsFixture(t, failingFeed{})

	_, err := f.tracker.Recompute(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed timeout")

	stored, _ := f.profiles.GetByID(context.Background(), "a")
	assert.Zero(t, stored.TotalMatches)
}

func TestStatsTracker_RecomputeAll(t *testing.T) {
	f := newStatsFixture(t, nil)

	result, err := f.tracker.Handle(context.Background(), RecomputeStatsCommand{})
	require.NoError(t, err)

	// "ghost" has pairings but no profile and is skipped.
	assert.Equal(t, 4, result.Users)
	assert.Equal(t, 3, result.Updated)
	assert.Empty(t, result.Failures)

	for id, want := range map[string]int{"a": 2, "b": 2, "c": 1} {
		u, err := f.profiles.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, u.TotalMatches, id)
		assert.Zero(t, u.SuccessfulMatches, id)
	}
}

func TestStatsTracker_RecomputeAllCollectsFailures(t *testing.T) {
	f := newStatsFixture(t, failingFeed{})

	result, err := f.tracker.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Updated)
	assert.Len(t, result.Failures, 4)
}

func TestStatsTracker_HandleSingleUser(t *testing.T) {
	f := newStatsFixture(t, nil)

	result, err := f.tracker.Handle(context.Background(), RecomputeStatsCommand{UserID: "c"})
	require.NoError(t, err)
	require.NotNil(t, result.Stats)
	assert.Equal(t, profile.MatchStats{TotalMatches: 1}, *result.Stats)

	_, err = f.tracker.Handle(context.Background(), RecomputeStatsCommand{UserID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}
