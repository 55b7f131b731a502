package matching

import (
	"context"

	"github.com/alem-hub/study-match/internal/domain/profile"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence и infrastructure/external.
// ══════════════════════════════════════════════════════════════════════════════

// Ledger - журнал созданных пар. Ядро владеет контрактом записи.
type Ledger interface {
	// HasPair проверяет, была ли пара (a, b) создана когда-либо, в любом порядке.
	HasPair(ctx context.Context, userAID, userBID string) (bool, error)

	// Create сохраняет новую пару и возвращает её ID.
	// Возвращает ErrPairingExists, если пара уже есть в журнале.
	Create(ctx context.Context, pairing *PairingRecord) (string, error)

	// GetByID возвращает пару.
	// Возвращает ErrPairingNotFound, если пара не найдена.
	GetByID(ctx context.Context, id string) (*PairingRecord, error)

	// ListByUser возвращает всю историю пар пользователя.
	ListByUser(ctx context.Context, userID string) ([]*PairingRecord, error)

	// ListParticipants возвращает ID всех пользователей, у которых есть хотя бы одна пара.
	ListParticipants(ctx context.Context) ([]string, error)
}

// ConversationService - внешний сервис, открывающий чат для новой пары.
type ConversationService interface {
	// CreateForPairing создаёт беседу и возвращает её ID.
	CreateForPairing(ctx context.Context, pairing *PairingRecord) (string, error)
}

// Scorer - оценщик совместимости (реализуется CompatibilityScorer).
type Scorer interface {
	Score(a, b *profile.UserRecord) ScoreBreakdown
}
