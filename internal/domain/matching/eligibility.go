package matching

import (
	"context"
	"time"

	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// DefaultCycleCooldown - минимальный интервал между циклами одного пользователя.
const DefaultCycleCooldown = 24 * time.Hour

// IsEligible: профиль заполнен и пользователь либо ещё не участвовал в цикле,
// либо с последнего цикла прошло не меньше cooldown.
func IsEligible(u *profile.UserRecord, now time.Time, cooldown time.Duration) bool {
	if u == nil || !u.ProfileComplete {
		return false
	}
	if u.LastMatchCycleAt == nil {
		return true
	}
	return now.Sub(*u.LastMatchCycleAt) >= cooldown
}

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY FILTER
// ══════════════════════════════════════════════════════════════════════════════

// EligibilityFilter выбирает пул кандидатов на цикл.
type EligibilityFilter struct {
	store     profile.Store
	cooldown  time.Duration
	poolLimit int
}

// NewEligibilityFilter создаёт фильтр. poolLimit = 0 означает без ограничения.
func NewEligibilityFilter(store profile.Store, cooldown time.Duration, poolLimit int) *EligibilityFilter {
	if cooldown <= 0 {
		cooldown = DefaultCycleCooldown
	}
	if poolLimit < 0 {
		poolLimit = 0
	}
	return &EligibilityFilter{
		store:     store,
		cooldown:  cooldown,
		poolLimit: poolLimit,
	}
}

// SelectEligible возвращает пул в порядке хранилища.
// Пустой пул не является ошибкой. Ошибка чтения оборачивается в ErrPoolUnavailable.
func (f *EligibilityFilter) SelectEligible(ctx context.Context, now time.Time) ([]*profile.UserRecord, error) {
	candidates, err := f.store.GetEligibleCandidates(ctx, profile.CandidateFilter{
		Now:      now,
		Cooldown: f.cooldown,
		Limit:    f.poolLimit,
	})
	if err != nil {
		return nil, shared.WrapError("matching", "SelectEligible", shared.ErrPoolUnavailable,
			"candidate pool could not be read", err)
	}

	// Хранилище уже фильтрует, но предикат остаётся источником истины.
	pool := make([]*profile.UserRecord, 0, len(candidates))
	for _, u := range candidates {
		if IsEligible(u, now, f.cooldown) {
			pool = append(pool, u)
		}
	}

	if f.poolLimit > 0 && len(pool) > f.poolLimit {
		pool = pool[:f.poolLimit]
	}

	return pool, nil
}
