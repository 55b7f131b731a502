package handlers

import (
	"encoding/json"
	"io"
	"time"

	"github.com/alem-hub/study-match/internal/domain/engagement"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGAGEMENT WEBHOOK PAYLOAD
// The chat service pushes one payload per engagement change of a pairing.
// ══════════════════════════════════════════════════════════════════════════════

// EngagementPayload is the body of POST /api/v1/webhooks/engagement.
type EngagementPayload struct {
	PairingID    string `json:"pairing_id" validate:"required,max=64"`
	Kind         string `json:"kind" validate:"required,oneof=messages session_scheduled unmatched"`
	MessageDelta int    `json:"message_delta" validate:"gte=0,required_if=Kind messages"`

	// OccurredAt defaults to the receive time.
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// ToUpdate converts the payload into a domain update.
func (p EngagementPayload) ToUpdate(receivedAt time.Time) engagement.Update {
	at := receivedAt
	if p.OccurredAt != nil && !p.OccurredAt.IsZero() {
		at = *p.OccurredAt
	}
	return engagement.Update{
		PairingID:    p.PairingID,
		Kind:         engagement.UpdateKind(p.Kind),
		MessageDelta: p.MessageDelta,
		At:           at.UTC(),
	}
}

// DecodeEngagement reads and validates a webhook body.
func (v *Validator) DecodeEngagement(body io.Reader) (EngagementPayload, error) {
	var p EngagementPayload

	if err := json.NewDecoder(body).Decode(&p); err != nil {
		return p, shared.WrapError("http", "DecodeEngagement", shared.ErrInvalidInput, "malformed JSON body", err)
	}

	if err := v.Struct("DecodeEngagement", p); err != nil {
		return p, err
	}
	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY PARAMETERS
// ══════════════════════════════════════════════════════════════════════════════

// CompatibilityParams are the query parameters of GET /api/v1/compatibility.
type CompatibilityParams struct {
	UserA string `query:"user_a" validate:"required,max=64"`
	UserB string `query:"user_b" validate:"required,max=64,nefield=UserA"`
}

// RunCycleRequest is the optional body of POST /api/v1/cycles/run.
type RunCycleRequest struct {
	// Now overrides the cycle timestamp.
	Now *time.Time `json:"now,omitempty"`
}
