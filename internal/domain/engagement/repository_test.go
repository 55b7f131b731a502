package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/study-match/internal/domain/shared"
)

func TestUpdate_Validate(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		update  Update
		wantErr error
	}{
		{"messages", Update{PairingID: "p", Kind: KindMessages, MessageDelta: 3, At: at}, nil},
		{"session", Update{PairingID: "p", Kind: KindSessionScheduled, At: at}, nil},
		{"missing pairing", Update{Kind: KindUnmatched, At: at}, shared.ErrInvalidInput},
		{"unknown kind", Update{PairingID: "p", Kind: "likes", At: at}, shared.ErrInvalidInput},
		{"zero delta", Update{PairingID: "p", Kind: KindMessages, At: at}, shared.ErrValueOutOfRange},
		{"missing time", Update{PairingID: "p", Kind: KindUnmatched}, shared.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestUpdate_ApplyTo(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	s := Update{PairingID: "p", Kind: KindMessages, MessageDelta: 4, At: t0}.ApplyTo(Signal{})
	s = Update{PairingID: "p", Kind: KindMessages, MessageDelta: 2, At: t1}.ApplyTo(s)
	s = Update{PairingID: "p", Kind: KindSessionScheduled, At: t0}.ApplyTo(s)
	s = Update{PairingID: "p", Kind: KindUnmatched, At: t0}.ApplyTo(s)
	s = Update{PairingID: "p", Kind: KindUnmatched, At: t1}.ApplyTo(s)

	assert.Equal(t, "p", s.PairingID)
	assert.Equal(t, 6, s.MessageCount)
	assert.True(t, s.SessionScheduled)
	if assert.NotNil(t, s.UnmatchedAt) {
		assert.Equal(t, t0, *s.UnmatchedAt)
	}
	assert.Equal(t, t1, s.UpdatedAt)
}
