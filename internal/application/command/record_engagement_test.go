package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-match/internal/domain/engagement"
	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/shared"
	"github.com/alem-hub/study-match/internal/infrastructure/persistence/memory"
)

func TestRecordEngagementHandler(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	signals := memory.NewEngagementStore()
	publisher := &recordingPublisher{}
	handler := NewRecordEngagementHandler(ledger, signals, publisher, nil)

	p, err := matching.NewCyclePairing("a", "b", matching.ScoreBreakdown{}, cycleNow)
	require.NoError(t, err)
	id, err := ledger.Create(ctx, p)
	require.NoError(t, err)

	result, err := handler.Handle(ctx, RecordEngagementCommand{
		Update:        engagement.Update{PairingID: id, Kind: engagement.KindMessages, MessageDelta: 5, At: cycleNow.Add(time.Hour)},
		CorrelationID: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Signal.MessageCount)
	assert.ElementsMatch(t, []string{"a", "b"}, result.UserIDs)

	events := publisher.ofType(shared.EventEngagementRecorded)
	require.Len(t, events, 1)
	recorded, ok := events[0].(shared.EngagementRecordedEvent)
	require.True(t, ok)
	assert.Equal(t, id, recorded.AggregateID())
	assert.Equal(t, "req-1", recorded.CorrelationID)
	assert.Equal(t, "messages", recorded.Kind)
}

func TestRecordEngagementHandler_Errors(t *testing.T) {
	ctx := context.Background()
	handler := NewRecordEngagementHandler(memory.NewLedger(), memory.NewEngagementStore(), nil, nil)

	_, err := handler.Handle(ctx, RecordEngagementCommand{Update: engagement.Update{PairingID: "p", Kind: "bogus", At: cycleNow}})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.Handle(ctx, RecordEngagementCommand{Update: engagement.Update{PairingID: "missing", Kind: engagement.KindSessionScheduled, At: cycleNow}})
	assert.ErrorIs(t, err, shared.ErrPairingNotFound)
}
