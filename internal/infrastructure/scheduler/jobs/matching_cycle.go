// Package jobs contains the scheduled jobs of the matching worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/alem-hub/study-match/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING CYCLE JOB
// ══════════════════════════════════════════════════════════════════════════════

// CycleRunner runs one matching cycle (implemented by command.CycleOrchestrator).
type CycleRunner interface {
	Handle(ctx context.Context, cmd command.RunCycleCommand) (*command.CycleResult, error)
}

// MatchingCycleJob triggers the matching cycle on schedule.
type MatchingCycleJob struct {
	runner  CycleRunner
	enabled func() bool
	logger  *slog.Logger

	lastResult atomic.Pointer[command.CycleResult]
}

// NewMatchingCycleJob creates a new matching cycle job.
// enabled gates every run; nil means always on.
func NewMatchingCycleJob(runner CycleRunner, enabled func() bool, logger *slog.Logger) *MatchingCycleJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchingCycleJob{
		runner:  runner,
		enabled: enabled,
		logger:  logger.With("job", "matching_cycle"),
	}
}

// Name returns the job name.
func (j *MatchingCycleJob) Name() string {
	return "matching_cycle"
}

// Description returns a human-readable description.
func (j *MatchingCycleJob) Description() string {
	return "Pairs eligible users by compatibility and opens their conversations"
}

// Run executes one cycle. A cycle skipped because another run holds the
// lock is not a failure.
func (j *MatchingCycleJob) Run(ctx context.Context) error {
	if j.enabled != nil && !j.enabled() {
		j.logger.Info("automatic matching disabled, skipping")
		return nil
	}

	result, err := j.runner.Handle(ctx, command.RunCycleCommand{
		Trigger:       "scheduler",
		CorrelationID: uuid.NewString(),
	})
	if result != nil {
		j.lastResult.Store(result)
	}
	if err != nil {
		return fmt.Errorf("matching cycle: %w", err)
	}

	if result.Skipped {
		j.logger.Info("cycle skipped, another run holds the lock")
		return nil
	}

	j.logger.Info("cycle finished",
		"run_id", result.RunID,
		"outcome", result.Outcome(),
		"pool_size", result.PoolSize,
		"matches_created", result.MatchesCreated,
		"errors", len(result.Errors),
	)
	return nil
}

// LastResult returns the result of the most recent run, or nil.
func (j *MatchingCycleJob) LastResult() *command.CycleResult {
	return j.lastResult.Load()
}
