package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/study-match/internal/domain/engagement"
	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE STATS COMMAND
// Rebuilds total/successful/avg-messages counters from the pairing history
// and the engagement feed. Runs outside the matching pass.
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeStatsCommand contains the data needed to recompute stats.
type RecomputeStatsCommand struct {
	// UserID limits the recompute to one user. Empty means every user
	// with at least one pairing.
	UserID string
}

// Validate validates the command.
func (c RecomputeStatsCommand) Validate() error {
	if c.UserID != "" && !shared.UserID(c.UserID).IsValid() {
		return shared.ErrInvalidUserID
	}
	return nil
}

// RecomputeStatsResult contains the outcome of a recompute run.
type RecomputeStatsResult struct {
	// Users is the number of users processed.
	Users int

	// Updated is the number of users whose stats were written.
	Updated int

	// Failures are per-user errors; they do not stop the run.
	Failures []string

	// Stats holds the new counters when a single user was recomputed.
	Stats *profile.MatchStats

	Duration time.Duration
}

// StatsMetrics records stats recompute telemetry.
type StatsMetrics interface {
	ObserveStatsRecompute(users, failed int, duration time.Duration)
}

type noopStatsMetrics struct{}

func (noopStatsMetrics) ObserveStatsRecompute(int, int, time.Duration) {}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// StatsTracker handles the RecomputeStatsCommand.
type StatsTracker struct {
	ledger    matching.Ledger
	profiles  profile.Store
	feed      engagement.Feed
	publisher shared.EventPublisher
	metrics   StatsMetrics
	logger    *slog.Logger
	clock     func() time.Time

	// Parallelism of RecomputeAll
	workers int
}

// NewStatsTracker creates a new StatsTracker. publisher and metrics may be nil.
func NewStatsTracker(
	ledger matching.Ledger,
	profiles profile.Store,
	feed engagement.Feed,
	publisher shared.EventPublisher,
	metrics StatsMetrics,
	logger *slog.Logger,
	workers int,
) *StatsTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopStatsMetrics{}
	}
	if workers < 1 {
		workers = 1
	}

	return &StatsTracker{
		ledger:    ledger,
		profiles:  profiles,
		feed:      feed,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With("component", "stats_tracker"),
		clock:     time.Now,
		workers:   workers,
	}
}

// WithClock overrides the clock used for match duration.
func (t *StatsTracker) WithClock(clock func() time.Time) *StatsTracker {
	t.clock = clock
	return t
}

// Handle executes the recompute stats command.
func (t *StatsTracker) Handle(ctx context.Context, cmd RecomputeStatsCommand) (*RecomputeStatsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("recompute_stats: validation failed: %w", err)
	}

	if cmd.UserID == "" {
		return t.RecomputeAll(ctx)
	}

	started := time.Now()
	stats, err := t.Recompute(ctx, cmd.UserID)
	result := &RecomputeStatsResult{Users: 1, Duration: time.Since(started)}
	t.metrics.ObserveStatsRecompute(1, boolToInt(err != nil), result.Duration)
	if err != nil {
		return nil, err
	}
	result.Updated = 1
	result.Stats = &stats
	return result, nil
}

// Recompute rebuilds and stores the counters of one user.
func (t *StatsTracker) Recompute(ctx context.Context, userID string) (profile.MatchStats, error) {
	ctx, span := tracer.Start(ctx, "stats.recompute")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	pairings, err := t.ledger.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return profile.MatchStats{}, fmt.Errorf("recompute_stats: list pairings of %s: %w", userID, err)
	}

	var signals map[string]engagement.Signal
	if ids := engagement.CyclePairingIDs(pairings); len(ids) > 0 {
		signals, err = t.feed.SignalsFor(ctx, ids)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "engagement feed unavailable")
			return profile.MatchStats{}, fmt.Errorf("recompute_stats: signals of %s: %w", userID, err)
		}
	}

	stats := engagement.ComputeStats(userID, pairings, signals, t.clock())
	if err := stats.Validate(); err != nil {
		return profile.MatchStats{}, fmt.Errorf("recompute_stats: %s: %w", userID, err)
	}

	if err := t.profiles.UpdateMatchStats(ctx, userID, stats); err != nil {
		span.RecordError(err)
		return profile.MatchStats{}, fmt.Errorf("recompute_stats: store stats of %s: %w", userID, err)
	}

	if t.publisher != nil {
		event := shared.NewStatsRecomputedEvent(userID, stats.TotalMatches, stats.SuccessfulMatches, stats.AvgMessagesPerMatch)
		if err := t.publisher.Publish(event); err != nil {
			t.logger.Warn("failed to publish stats event", "user_id", userID, "error", err)
		}
	}

	t.logger.Debug("stats recomputed",
		"user_id", userID,
		"total", stats.TotalMatches,
		"successful", stats.SuccessfulMatches,
		"avg_messages", stats.AvgMessagesPerMatch,
	)

	return stats, nil
}

// RecomputeAll recomputes every user that appears in the ledger.
// A missing profile is skipped; other per-user errors are collected.
func (t *StatsTracker) RecomputeAll(ctx context.Context) (*RecomputeStatsResult, error) {
	ctx, span := tracer.Start(ctx, "stats.recompute_all")
	defer span.End()

	started := time.Now()

	users, err := t.ledger.ListParticipants(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("recompute_stats: list participants: %w", err)
	}

	result := &RecomputeStatsResult{Users: len(users)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			_, err := t.Recompute(gctx, userID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Updated++
			case errors.Is(err, shared.ErrNotFound):
				t.logger.Debug("skipping user without profile", "user_id", userID)
			default:
				result.Failures = append(result.Failures, err.Error())
			}
			return nil
		})
	}

	// Only context cancellation surfaces here.
	waitErr := g.Wait()

	result.Duration = time.Since(started)
	t.metrics.ObserveStatsRecompute(result.Users, len(result.Failures), result.Duration)
	span.SetAttributes(
		attribute.Int("stats.users", result.Users),
		attribute.Int("stats.failures", len(result.Failures)),
	)

	t.logger.Info("stats recompute completed",
		"users", result.Users,
		"updated", result.Updated,
		"failures", len(result.Failures),
		"duration", result.Duration.String(),
	)

	if waitErr != nil {
		return result, fmt.Errorf("recompute_stats: interrupted: %w", waitErr)
	}
	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
