package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Matching events
	EventPairingCreated EventType = "matching.pairing_created"
	EventCycleCompleted EventType = "matching.cycle_completed"

	// Engagement events
	EventEngagementRecorded EventType = "engagement.recorded"
	EventStatsRecomputed    EventType = "engagement.stats_recomputed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Matching Events
// ═══════════════════════════════════════════════════════════════════════════

// PairingCreatedEvent is emitted after a cycle pairing has been written to the ledger.
type PairingCreatedEvent struct {
	BaseEvent
	UserAID       string `json:"user_a_id"`
	UserBID       string `json:"user_b_id"`
	AdjustedScore int    `json:"adjusted_score"`
}

// Payload implements Event interface.
func (e PairingCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_a_id":      e.UserAID,
		"user_b_id":      e.UserBID,
		"adjusted_score": e.AdjustedScore,
	}
}

// NewPairingCreatedEvent creates a new PairingCreatedEvent.
func NewPairingCreatedEvent(pairingID, userAID, userBID string, adjustedScore int) PairingCreatedEvent {
	return PairingCreatedEvent{
		BaseEvent:     NewBaseEvent(EventPairingCreated, pairingID),
		UserAID:       userAID,
		UserBID:       userBID,
		AdjustedScore: adjustedScore,
	}
}

// CycleCompletedEvent is emitted at the end of every cycle run that was not skipped.
type CycleCompletedEvent struct {
	BaseEvent
	PoolSize       int           `json:"pool_size"`
	MatchesCreated int           `json:"matches_created"`
	ErrorCount     int           `json:"error_count"`
	Duration       time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e CycleCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"pool_size":       e.PoolSize,
		"matches_created": e.MatchesCreated,
		"error_count":     e.ErrorCount,
		"duration_ms":     e.Duration.Milliseconds(),
	}
}

// NewCycleCompletedEvent creates a new CycleCompletedEvent.
func NewCycleCompletedEvent(runID string, poolSize, matches, errCount int, duration time.Duration) CycleCompletedEvent {
	return CycleCompletedEvent{
		BaseEvent:      NewBaseEvent(EventCycleCompleted, runID),
		PoolSize:       poolSize,
		MatchesCreated: matches,
		ErrorCount:     errCount,
		Duration:       duration,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Engagement Events
// ═══════════════════════════════════════════════════════════════════════════

// EngagementRecordedEvent is emitted when the chat subsystem reports new
// engagement on a pairing (messages, a scheduled session, an unmatch).
type EngagementRecordedEvent struct {
	BaseEvent
	UserIDs []string `json:"user_ids"`
	Kind    string   `json:"kind"`
}

// Payload implements Event interface.
func (e EngagementRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_ids": e.UserIDs,
		"kind":     e.Kind,
	}
}

// NewEngagementRecordedEvent creates a new EngagementRecordedEvent.
func NewEngagementRecordedEvent(pairingID, kind string, userIDs ...string) EngagementRecordedEvent {
	return EngagementRecordedEvent{
		BaseEvent: NewBaseEvent(EventEngagementRecorded, pairingID),
		UserIDs:   userIDs,
		Kind:      kind,
	}
}

// StatsRecomputedEvent is emitted after a user's match statistics were rewritten.
type StatsRecomputedEvent struct {
	BaseEvent
	TotalMatches      int     `json:"total_matches"`
	SuccessfulMatches int     `json:"successful_matches"`
	AvgMessages       float64 `json:"avg_messages_per_match"`
}

// Payload implements Event interface.
func (e StatsRecomputedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"total_matches":          e.TotalMatches,
		"successful_matches":     e.SuccessfulMatches,
		"avg_messages_per_match": e.AvgMessages,
	}
}

// NewStatsRecomputedEvent creates a new StatsRecomputedEvent.
func NewStatsRecomputedEvent(userID string, total, successful int, avgMessages float64) StatsRecomputedEvent {
	return StatsRecomputedEvent{
		BaseEvent:         NewBaseEvent(EventStatsRecomputed, userID),
		TotalMatches:      total,
		SuccessfulMatches: successful,
		AvgMessages:       avgMessages,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
