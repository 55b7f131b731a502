package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/study-match/internal/domain/engagement"
	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ENGAGEMENT COMMAND
// Stores an engagement update pushed by the chat service and announces it,
// so stats can be recomputed asynchronously.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEngagementCommand wraps one update from the chat service.
type RecordEngagementCommand struct {
	Update engagement.Update

	// CorrelationID for tracing across services.
	CorrelationID string
}

// Validate validates the command.
func (c RecordEngagementCommand) Validate() error {
	return c.Update.Validate()
}

// RecordEngagementResult contains the stored signal.
type RecordEngagementResult struct {
	Signal  engagement.Signal
	UserIDs []string
}

// RecordEngagementHandler handles the RecordEngagementCommand.
type RecordEngagementHandler struct {
	ledger    matching.Ledger
	store     engagement.Store
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewRecordEngagementHandler creates a new RecordEngagementHandler.
func NewRecordEngagementHandler(
	ledger matching.Ledger,
	store engagement.Store,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *RecordEngagementHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordEngagementHandler{
		ledger:    ledger,
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "record_engagement"),
	}
}

// Handle executes the record engagement command.
func (h *RecordEngagementHandler) Handle(ctx context.Context, cmd RecordEngagementCommand) (*RecordEngagementResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_engagement: validation failed: %w", err)
	}

	pairing, err := h.ledger.GetByID(ctx, cmd.Update.PairingID)
	if err != nil {
		return nil, fmt.Errorf("record_engagement: find pairing: %w", err)
	}

	signal, err := h.store.Apply(ctx, cmd.Update)
	if err != nil {
		return nil, fmt.Errorf("record_engagement: apply update: %w", err)
	}

	result := &RecordEngagementResult{
		Signal:  signal,
		UserIDs: []string{pairing.UserAID, pairing.UserBID},
	}

	if h.publisher != nil {
		event := shared.NewEngagementRecordedEvent(pairing.ID, string(cmd.Update.Kind), result.UserIDs...)
		event.CorrelationID = cmd.CorrelationID
		if err := h.publisher.Publish(event); err != nil {
			h.logger.Warn("failed to publish engagement event", "pairing_id", pairing.ID, "error", err)
		}
	}

	h.logger.Debug("engagement recorded",
		"pairing_id", pairing.ID,
		"kind", cmd.Update.Kind,
		"message_count", signal.MessageCount,
	)

	return result, nil
}
