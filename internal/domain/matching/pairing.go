package matching

import (
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAIRING RECORD
// ══════════════════════════════════════════════════════════════════════════════

// PairingType - откуда взялась пара.
type PairingType string

const (
	// PairingTypeCycle - пара создана автоматическим циклом.
	PairingTypeCycle PairingType = "cycle"
	// PairingTypeUserInitiated - пара создана пользователями вручную (вне ядра).
	PairingTypeUserInitiated PairingType = "user_initiated"
)

// IsValid проверяет тип пары.
func (t PairingType) IsValid() bool {
	return t == PairingTypeCycle || t == PairingTypeUserInitiated
}

// PairingStatus - статус пары. Переходы принадлежат подсистеме чата.
type PairingStatus string

const (
	PairingStatusActive PairingStatus = "active"
	PairingStatusEnded  PairingStatus = "ended"
)

// IsValid проверяет статус пары.
func (s PairingStatus) IsValid() bool {
	return s == PairingStatusActive || s == PairingStatusEnded
}

// PairingRecord - созданная пара. После создания ядро её не изменяет.
type PairingRecord struct {
	// ID - уникальный идентификатор пары (UUID).
	ID string

	// UserAID, UserBID - участники. Порядок не важен.
	UserAID string
	UserBID string

	Type   PairingType
	Status PairingStatus

	// Breakdown - раскладка оценки на момент создания.
	Breakdown ScoreBreakdown

	CreatedAt time.Time

	// EndedAt заполняется подсистемой чата при завершении пары.
	EndedAt *time.Time
}

// NewCyclePairing создаёт пару цикла с новым ID.
func NewCyclePairing(userAID, userBID string, breakdown ScoreBreakdown, now time.Time) (*PairingRecord, error) {
	p := &PairingRecord{
		ID:        uuid.New().String(),
		UserAID:   userAID,
		UserBID:   userBID,
		Type:      PairingTypeCycle,
		Status:    PairingStatusActive,
		Breakdown: breakdown,
		CreatedAt: now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate проверяет инварианты пары.
func (p *PairingRecord) Validate() error {
	if p.UserAID == "" || p.UserBID == "" {
		return shared.ErrInvalidUserID
	}
	if p.UserAID == p.UserBID {
		return shared.ErrSelfPairing
	}
	if !p.Type.IsValid() || !p.Status.IsValid() {
		return shared.NewDomainError("matching", "ValidatePairing", shared.ErrInvalidInput, "invalid pairing type or status")
	}
	return nil
}

// Key возвращает неупорядоченный ключ пары.
func (p *PairingRecord) Key() PairKey {
	return NewPairKey(p.UserAID, p.UserBID)
}

// Involves проверяет, участвует ли пользователь в паре.
func (p *PairingRecord) Involves(userID string) bool {
	return p.UserAID == userID || p.UserBID == userID
}

// Partner возвращает второго участника пары.
func (p *PairingRecord) Partner(userID string) string {
	if p.UserAID == userID {
		return p.UserBID
	}
	return p.UserAID
}

// ══════════════════════════════════════════════════════════════════════════════
// PAIR KEY
// ══════════════════════════════════════════════════════════════════════════════

// PairKey - неупорядоченная пара идентификаторов в каноническом порядке.
type PairKey struct {
	Low  string
	High string
}

// NewPairKey строит ключ, не зависящий от порядка аргументов.
func NewPairKey(a, b string) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}
