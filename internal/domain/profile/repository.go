package profile

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализация находится в infrastructure/persistence/postgres.
// ══════════════════════════════════════════════════════════════════════════════

// CandidateFilter - параметры выборки пула кандидатов на цикл.
type CandidateFilter struct {
	// Now - момент запуска цикла.
	Now time.Time

	// Cooldown - минимальный интервал с последнего цикла пользователя.
	Cooldown time.Duration

	// Limit - ограничение размера пула (0 = без ограничения).
	Limit int
}

// Store - хранилище профилей в части, нужной подбору.
type Store interface {
	// GetEligibleCandidates возвращает пул кандидатов в стабильном порядке.
	GetEligibleCandidates(ctx context.Context, filter CandidateFilter) ([]*UserRecord, error)

	// GetByID возвращает профиль.
	// Возвращает ErrProfileNotFound, если профиль не найден.
	GetByID(ctx context.Context, id string) (*UserRecord, error)

	// UpdateLastCycle отмечает время последнего цикла пользователя.
	UpdateLastCycle(ctx context.Context, id string, at time.Time) error

	// UpdateMatchStats перезаписывает статистику пар пользователя.
	UpdateMatchStats(ctx context.Context, id string, stats MatchStats) error
}
