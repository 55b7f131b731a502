package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/study-match/internal/domain/shared"
)

// UpdateKind - тип события вовлечённости от подсистемы чата.
type UpdateKind string

const (
	KindMessages         UpdateKind = "messages"
	KindSessionScheduled UpdateKind = "session_scheduled"
	KindUnmatched        UpdateKind = "unmatched"
)

// IsValid проверяет тип события.
func (k UpdateKind) IsValid() bool {
	switch k {
	case KindMessages, KindSessionScheduled, KindUnmatched:
		return true
	}
	return false
}

// Update - одно входящее изменение сигнала пары.
type Update struct {
	PairingID string
	Kind      UpdateKind

	// MessageDelta - прирост числа сообщений (только для KindMessages).
	MessageDelta int

	// At - момент события на стороне чата.
	At time.Time
}

// Validate проверяет событие.
func (u Update) Validate() error {
	if u.PairingID == "" {
		return shared.NewDomainError("engagement", "Validate", shared.ErrInvalidInput, "pairing_id is required")
	}
	if !u.Kind.IsValid() {
		return shared.NewDomainError("engagement", "Validate", shared.ErrInvalidInput,
			fmt.Sprintf("unknown kind %q", u.Kind))
	}
	if u.Kind == KindMessages && u.MessageDelta <= 0 {
		return shared.NewDomainError("engagement", "Validate", shared.ErrValueOutOfRange,
			"message_delta must be positive")
	}
	if u.At.IsZero() {
		return shared.NewDomainError("engagement", "Validate", shared.ErrInvalidInput, "at is required")
	}
	return nil
}

// ApplyTo применяет событие к сигналу. Повторный разрыв не сдвигает
// время первого разрыва.
func (u Update) ApplyTo(s Signal) Signal {
	s.PairingID = u.PairingID
	switch u.Kind {
	case KindMessages:
		s.MessageCount += u.MessageDelta
	case KindSessionScheduled:
		s.SessionScheduled = true
	case KindUnmatched:
		if s.UnmatchedAt == nil {
			at := u.At
			s.UnmatchedAt = &at
		}
	}
	if u.At.After(s.UpdatedAt) {
		s.UpdatedAt = u.At
	}
	return s
}

// Store - хранилище сигналов. Реализация в infrastructure/persistence/postgres.
type Store interface {
	Feed

	// Apply применяет событие и возвращает новый сигнал пары.
	Apply(ctx context.Context, update Update) (Signal, error)
}
