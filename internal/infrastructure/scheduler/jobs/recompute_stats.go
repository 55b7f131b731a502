package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/study-match/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE STATS JOB
// ══════════════════════════════════════════════════════════════════════════════

// StatsRunner recomputes match stats (implemented by command.StatsTracker).
type StatsRunner interface {
	Handle(ctx context.Context, cmd command.RecomputeStatsCommand) (*command.RecomputeStatsResult, error)
}

// RecomputeStatsJob refreshes the stats of every user who has pairings.
// It catches engagement updates the message-driven path missed.
type RecomputeStatsJob struct {
	runner  StatsRunner
	enabled func() bool
	logger  *slog.Logger
}

// NewRecomputeStatsJob creates a new stats recompute job.
// enabled gates every run; nil means always on.
func NewRecomputeStatsJob(runner StatsRunner, enabled func() bool, logger *slog.Logger) *RecomputeStatsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecomputeStatsJob{
		runner:  runner,
		enabled: enabled,
		logger:  logger.With("job", "recompute_stats"),
	}
}

// Name returns the job name.
func (j *RecomputeStatsJob) Name() string {
	return "recompute_stats"
}

// Description returns a human-readable description.
func (j *RecomputeStatsJob) Description() string {
	return "Recomputes match statistics for every user with pairings"
}

// Run executes the full recompute. Per-user failures are logged and do not
// fail the job.
func (j *RecomputeStatsJob) Run(ctx context.Context) error {
	if j.enabled != nil && !j.enabled() {
		j.logger.Debug("scheduled stats recompute disabled, skipping")
		return nil
	}

	result, err := j.runner.Handle(ctx, command.RecomputeStatsCommand{})
	if err != nil {
		return fmt.Errorf("recompute stats: %w", err)
	}

	if len(result.Failures) > 0 {
		j.logger.Warn("some users failed to recompute",
			"failed", len(result.Failures),
			"users", result.Users,
		)
	}

	j.logger.Info("stats recomputed",
		"users", result.Users,
		"updated", result.Updated,
		"duration", result.Duration.String(),
	)
	return nil
}
