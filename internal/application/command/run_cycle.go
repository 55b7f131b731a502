// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

var tracer = otel.Tracer("github.com/alem-hub/study-match/internal/application/command")

// Cycle outcomes reported to metrics.
const (
	CycleOutcomeCompleted = "completed"
	CycleOutcomeSkipped   = "skipped"
	CycleOutcomeAborted   = "aborted"
	CycleOutcomeTooSmall  = "pool_too_small"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN CYCLE COMMAND
// Runs one auto-matching cycle: pool selection, greedy pass, conversation
// callouts. The orchestrator does no scoring itself.
// ══════════════════════════════════════════════════════════════════════════════

// RunCycleCommand contains the data needed to run a cycle.
type RunCycleCommand struct {
	// Now is the cycle timestamp. Zero means the handler clock.
	Now time.Time

	// Trigger is who started the cycle (scheduler, manual, cli).
	Trigger string

	// CorrelationID for tracing across services.
	CorrelationID string
}

// Validate validates the command.
func (c RunCycleCommand) Validate() error {
	if !c.Now.IsZero() && c.Now.Year() < 2000 {
		return errors.New("run_cycle: now is not a plausible timestamp")
	}
	return nil
}

// CycleResult contains the outcome of one cycle.
type CycleResult struct {
	RunID string

	// MatchesCreated is the number of pairings written to the ledger.
	MatchesCreated int

	// Pairings created in this cycle.
	Pairings []*matching.PairingRecord

	// ConversationsOpened counts successful conversation callouts.
	ConversationsOpened int

	// Errors are soft failures; the cycle still counts as completed.
	Errors []string

	// PoolSize is the number of eligible users considered.
	PoolSize int

	// Skipped is set when another cycle holds the lock.
	Skipped bool

	// Aborted is set when the pool could not be read.
	Aborted bool

	StartedAt time.Time
	Duration  time.Duration
}

// Outcome returns the metrics label of the result.
func (r *CycleResult) Outcome() string {
	switch {
	case r.Skipped:
		return CycleOutcomeSkipped
	case r.Aborted:
		return CycleOutcomeAborted
	case r.PoolSize < 2:
		return CycleOutcomeTooSmall
	default:
		return CycleOutcomeCompleted
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// CycleLock serializes cycle runs across processes.
type CycleLock interface {
	// Acquire takes the lock and returns its release function.
	// Returns shared.ErrCycleInProgress when the lock is held elsewhere.
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// LeasedLock is a CycleLock whose hold expires on its own after TTL.
// A run under such a lock stops writing before the lease runs out.
type LeasedLock interface {
	CycleLock
	TTL() time.Duration
}

// CycleMetrics records cycle telemetry.
type CycleMetrics interface {
	ObserveCycle(outcome string, poolSize, matches, errs int, duration time.Duration)
	ObservePairing(breakdown matching.ScoreBreakdown)
	ObserveConversationCallout(success bool)
}

type noopCycleMetrics struct{}

func (noopCycleMetrics) ObserveCycle(string, int, int, int, time.Duration) {}
func (noopCycleMetrics) ObservePairing(matching.ScoreBreakdown)             {}
func (noopCycleMetrics) ObserveConversationCallout(bool)                    {}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CycleOrchestratorConfig contains configuration for the orchestrator.
type CycleOrchestratorConfig struct {
	// CalloutTimeout bounds each conversation callout.
	CalloutTimeout time.Duration

	// ConversationsEnabled switches the callout off at runtime. Nil means on.
	ConversationsEnabled func() bool

	// UniversityGate limits the pool to universities in rollout. Nil means all.
	UniversityGate func(university string) bool

	// LeaseMargin is kept free before a LeasedLock expires.
	LeaseMargin time.Duration
}

// DefaultCycleOrchestratorConfig returns default configuration.
func DefaultCycleOrchestratorConfig() CycleOrchestratorConfig {
	return CycleOrchestratorConfig{
		CalloutTimeout: 10 * time.Second,
		LeaseMargin:    time.Minute,
	}
}

// CycleOrchestrator handles the RunCycleCommand.
type CycleOrchestrator struct {
	filter        *matching.EligibilityFilter
	matcher       *matching.GreedyMatcher
	conversations matching.ConversationService
	lock          CycleLock
	publisher     shared.EventPublisher
	metrics       CycleMetrics
	logger        *slog.Logger
	clock         func() time.Time

	config CycleOrchestratorConfig
}

// NewCycleOrchestrator creates a new CycleOrchestrator.
// conversations, lock, publisher and metrics may be nil.
func NewCycleOrchestrator(
	filter *matching.EligibilityFilter,
	matcher *matching.GreedyMatcher,
	conversations matching.ConversationService,
	lock CycleLock,
	publisher shared.EventPublisher,
	metrics CycleMetrics,
	logger *slog.Logger,
	config CycleOrchestratorConfig,
) *CycleOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopCycleMetrics{}
	}
	if config.CalloutTimeout <= 0 {
		config.CalloutTimeout = DefaultCycleOrchestratorConfig().CalloutTimeout
	}
	if config.LeaseMargin <= 0 {
		config.LeaseMargin = DefaultCycleOrchestratorConfig().LeaseMargin
	}

	return &CycleOrchestrator{
		filter:        filter,
		matcher:       matcher,
		conversations: conversations,
		lock:          lock,
		publisher:     publisher,
		metrics:       metrics,
		logger:        logger.With("component", "cycle_orchestrator"),
		clock:         time.Now,
		config:        config,
	}
}

// WithClock overrides the clock used when the command carries no timestamp.
func (o *CycleOrchestrator) WithClock(clock func() time.Time) *CycleOrchestrator {
	o.clock = clock
	return o
}

// Run executes a cycle at the given time.
func (o *CycleOrchestrator) Run(ctx context.Context, now time.Time) (*CycleResult, error) {
	return o.Handle(ctx, RunCycleCommand{Now: now, Trigger: "direct"})
}

// Handle executes the run cycle command.
// The error is non-nil only when the cycle could not run at all:
// the pool was unreadable or the lock backend failed.
func (o *CycleOrchestrator) Handle(ctx context.Context, cmd RunCycleCommand) (*CycleResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("matching", "RunCycle", shared.ErrInvalidInput, "invalid command", err)
	}

	now := cmd.Now
	if now.IsZero() {
		now = o.clock()
	}
	now = now.UTC()

	result := &CycleResult{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
	started := time.Now()

	ctx, span := tracer.Start(ctx, "matching.cycle",
		trace.WithAttributes(
			attribute.String("cycle.run_id", result.RunID),
			attribute.String("cycle.trigger", cmd.Trigger),
		),
	)
	defer span.End()

	log := o.logger.With("run_id", result.RunID, "trigger", cmd.Trigger)
	if cmd.CorrelationID != "" {
		log = log.With("correlation_id", cmd.CorrelationID)
	}

	defer func() {
		result.Duration = time.Since(started)
		o.metrics.ObserveCycle(result.Outcome(), result.PoolSize, result.MatchesCreated, len(result.Errors), result.Duration)
	}()

	// 1. Serialize with other cycles
	if o.lock != nil {
		release, err := o.lock.Acquire(ctx)
		if err != nil {
			if errors.Is(err, shared.ErrCycleInProgress) {
				log.Info("cycle skipped, another run holds the lock")
				result.Skipped = true
				result.Errors = append(result.Errors, shared.ErrCycleInProgress.Error())
				span.SetAttributes(attribute.Bool("cycle.skipped", true))
				return result, nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "lock unavailable")
			return result, fmt.Errorf("run_cycle: acquire lock: %w", err)
		}

		if leased, ok := o.lock.(LeasedLock); ok {
			if bound := o.leaseBound(leased.TTL()); bound > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, bound)
				defer cancel()
				span.SetAttributes(attribute.String("cycle.lease_bound", bound.String()))
			}
		}

		defer func() {
			// The run context may already be cancelled.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				log.Warn("failed to release cycle lock", "error", err)
			}
		}()
	}

	// 2. Select the pool
	pool, err := o.selectPool(ctx, now)
	if err != nil {
		log.Error("cycle aborted, pool unavailable", "error", err)
		result.Aborted = true
		result.Errors = append(result.Errors, err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "pool unavailable")
		return result, err
	}
	result.PoolSize = len(pool)
	span.SetAttributes(attribute.Int("cycle.pool_size", result.PoolSize))

	if len(pool) < 2 {
		log.Info("cycle completed, pool too small", "pool_size", len(pool))
		return result, nil
	}

	// 3. Greedy pass
	pairings, passErrs := o.runPass(ctx, pool, now)
	result.Pairings = pairings
	result.MatchesCreated = len(pairings)
	for _, e := range passErrs {
		result.Errors = append(result.Errors, e.Error())
	}

	// 4. Conversations and events
	calloutsStopped := false
	for _, p := range pairings {
		o.metrics.ObservePairing(p.Breakdown)
		event := shared.NewPairingCreatedEvent(p.ID, p.UserAID, p.UserBID, p.Breakdown.Adjusted)
		event.CorrelationID = cmd.CorrelationID
		o.publish(log, event)

		if calloutsStopped {
			continue
		}
		if err := ctx.Err(); err != nil {
			// Lease bound or caller deadline reached: the pairings stay, callouts stop.
			calloutsStopped = true
			result.Errors = append(result.Errors, fmt.Sprintf("conversation callouts stopped: %v", err))
			continue
		}

		opened, err := o.openConversation(ctx, log, p)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if opened {
			result.ConversationsOpened++
		}
	}

	completed := shared.NewCycleCompletedEvent(result.RunID, result.PoolSize, result.MatchesCreated,
		len(result.Errors), time.Since(started))
	completed.CorrelationID = cmd.CorrelationID
	o.publish(log, completed)

	span.SetAttributes(
		attribute.Int("cycle.matches", result.MatchesCreated),
		attribute.Int("cycle.errors", len(result.Errors)),
	)

	log.Info("cycle completed",
		"pool_size", result.PoolSize,
		"matches", result.MatchesCreated,
		"conversations", result.ConversationsOpened,
		"errors", len(result.Errors),
		"duration", time.Since(started).String(),
	)

	return result, nil
}

func (o *CycleOrchestrator) selectPool(ctx context.Context, now time.Time) ([]*profile.UserRecord, error) {
	ctx, span := tracer.Start(ctx, "matching.select_eligible")
	defer span.End()

	pool, err := o.filter.SelectEligible(ctx, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if o.config.UniversityGate == nil {
		return pool, nil
	}

	gated := pool[:0:0]
	for _, u := range pool {
		if o.config.UniversityGate(u.University) {
			gated = append(gated, u)
		}
	}
	span.SetAttributes(attribute.Int("pool.gated_out", len(pool)-len(gated)))
	return gated, nil
}

func (o *CycleOrchestrator) runPass(ctx context.Context, pool []*profile.UserRecord, now time.Time) ([]*matching.PairingRecord, []error) {
	ctx, span := tracer.Start(ctx, "matching.greedy_pass",
		trace.WithAttributes(attribute.Int("matcher.threshold", o.matcher.Threshold())))
	defer span.End()

	return o.matcher.RunPass(ctx, pool, now)
}

// leaseBound is how long a run may work under a lease of ttl.
func (o *CycleOrchestrator) leaseBound(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if bound := ttl - o.config.LeaseMargin; bound > 0 {
		return bound
	}
	return ttl / 2
}

func (o *CycleOrchestrator) conversationsOn() bool {
	if o.conversations == nil {
		return false
	}
	return o.config.ConversationsEnabled == nil || o.config.ConversationsEnabled()
}

// openConversation calls the chat service once per pairing. Failure is soft.
// opened is false when the service returned no conversation.
func (o *CycleOrchestrator) openConversation(ctx context.Context, log *slog.Logger, p *matching.PairingRecord) (opened bool, err error) {
	if !o.conversationsOn() {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.CalloutTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "matching.conversation_callout",
		trace.WithAttributes(attribute.String("pairing.id", p.ID)))
	defer span.End()

	conversationID, err := o.conversations.CreateForPairing(ctx, p)
	o.metrics.ObserveConversationCallout(err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "callout failed")
		log.Warn("conversation callout failed", "pairing_id", p.ID, "error", err)
		return false, fmt.Errorf("conversation for pairing %s: %w", p.ID, err)
	}
	if conversationID == "" {
		return false, nil
	}

	log.Debug("conversation opened", "pairing_id", p.ID, "conversation_id", conversationID)
	return true, nil
}

func (o *CycleOrchestrator) publish(log *slog.Logger, event shared.Event) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(event); err != nil {
		log.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
