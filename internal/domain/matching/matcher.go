package matching

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// DefaultMatchThreshold - минимальный итоговый балл, при котором создаётся пара.
const DefaultMatchThreshold = 40

// parallelScoringMin - меньше этого числа кандидатов параллелить не имеет смысла.
const parallelScoringMin = 32

// ══════════════════════════════════════════════════════════════════════════════
// GREEDY MATCHER
//
// Один проход по пулу в порядке хранилища. Для каждого ещё свободного
// пользователя выбирается лучший свободный кандидат из того же университета,
// с которым у него не было пары. При равенстве баллов побеждает тот,
// кто раньше в пуле. Это не оптимальное назначение, а сознательное упрощение.
// ══════════════════════════════════════════════════════════════════════════════

// MatcherConfig - параметры прохода.
type MatcherConfig struct {
	// Threshold - минимальный Adjusted для создания пары.
	Threshold int

	// ScoringWorkers - число горутин для оценки кандидатов одного пользователя.
	// 0 или 1 - последовательно.
	ScoringWorkers int
}

// DefaultMatcherConfig возвращает конфигурацию по умолчанию.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		Threshold:      DefaultMatchThreshold,
		ScoringWorkers: 1,
	}
}

// GreedyMatcher выполняет проход подбора.
type GreedyMatcher struct {
	scorer   Scorer
	guard    *HistoryGuard
	ledger   Ledger
	profiles profile.Store
	config   MatcherConfig
}

// NewGreedyMatcher создаёт матчер.
func NewGreedyMatcher(scorer Scorer, ledger Ledger, profiles profile.Store, config MatcherConfig) *GreedyMatcher {
	if config.ScoringWorkers < 1 {
		config.ScoringWorkers = 1
	}
	return &GreedyMatcher{
		scorer:   scorer,
		guard:    NewHistoryGuard(ledger),
		ledger:   ledger,
		profiles: profiles,
		config:   config,
	}
}

// Threshold возвращает порог создания пары.
func (m *GreedyMatcher) Threshold() int {
	return m.config.Threshold
}

// RunPass проходит по пулу и создаёт пары.
// Ошибки отдельных пар собираются и не прерывают проход.
// Отмена контекста останавливает проход: уже записанные пары остаются.
func (m *GreedyMatcher) RunPass(ctx context.Context, pool []*profile.UserRecord, now time.Time) ([]*PairingRecord, []error) {
	var (
		pairings []*PairingRecord
		errs     []error
	)

	used := make(map[string]struct{}, len(pool))
	isUsed := func(id string) bool {
		_, ok := used[id]
		return ok
	}

	for _, user := range pool {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("pass interrupted: %w", err))
			break
		}
		if user == nil || isUsed(user.ID) {
			continue
		}

		candidates, guardErrs := m.candidatesFor(ctx, user, pool, isUsed)
		errs = append(errs, guardErrs...)
		if len(candidates) == 0 {
			continue
		}

		best, breakdown := m.pickBest(user, candidates)
		if breakdown.Adjusted < m.config.Threshold {
			continue
		}

		pairing, err := m.createPairing(ctx, user, best, breakdown, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		// Пара записана: оба участника заняты до конца прохода.
		used[user.ID] = struct{}{}
		used[best.ID] = struct{}{}
		pairings = append(pairings, pairing)

		for _, id := range []string{user.ID, best.ID} {
			if err := m.profiles.UpdateLastCycle(ctx, id, now); err != nil {
				errs = append(errs, fmt.Errorf("update last cycle for %s: %w", id, err))
			}
		}
	}

	return pairings, errs
}

// candidatesFor собирает кандидатов: не сам пользователь, свободен,
// тот же университет, без прошлой пары.
func (m *GreedyMatcher) candidatesFor(
	ctx context.Context,
	user *profile.UserRecord,
	pool []*profile.UserRecord,
	isUsed func(string) bool,
) ([]*profile.UserRecord, []error) {
	var (
		candidates []*profile.UserRecord
		errs       []error
	)

	for _, c := range pool {
		if c == nil || c.ID == user.ID || isUsed(c.ID) {
			continue
		}
		if !shared.EqualFold(user.University, c.University) {
			continue
		}

		prior, err := m.guard.HasPriorPairing(ctx, user.ID, c.ID)
		if err != nil {
			// Без ответа журнала кандидата не рассматриваем.
			errs = append(errs, err)
			continue
		}
		if prior {
			continue
		}

		candidates = append(candidates, c)
	}

	return candidates, errs
}

// pickBest возвращает кандидата с максимальным Adjusted; при равенстве - первого.
func (m *GreedyMatcher) pickBest(
	user *profile.UserRecord,
	candidates []*profile.UserRecord,
) (*profile.UserRecord, ScoreBreakdown) {
	scores := make([]ScoreBreakdown, len(candidates))

	if m.config.ScoringWorkers > 1 && len(candidates) >= parallelScoringMin {
		var g errgroup.Group
		g.SetLimit(m.config.ScoringWorkers)
		for i, c := range candidates {
			i, c := i, c
			g.Go(func() error {
				scores[i] = m.scorer.Score(user, c)
				return nil
			})
		}
		// Score cannot fail, so Wait only joins the workers.
		_ = g.Wait()
	} else {
		for i, c := range candidates {
			scores[i] = m.scorer.Score(user, c)
		}
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].Adjusted > scores[best].Adjusted {
			best = i
		}
	}

	return candidates[best], scores[best]
}

func (m *GreedyMatcher) createPairing(
	ctx context.Context,
	user, partner *profile.UserRecord,
	breakdown ScoreBreakdown,
	now time.Time,
) (*PairingRecord, error) {
	pairing, err := NewCyclePairing(user.ID, partner.ID, breakdown, now)
	if err != nil {
		return nil, fmt.Errorf("build pairing %s/%s: %w", user.ID, partner.ID, err)
	}

	id, err := m.ledger.Create(ctx, pairing)
	if err != nil {
		return nil, fmt.Errorf("create pairing %s/%s: %w", user.ID, partner.ID, err)
	}
	if id != "" {
		pairing.ID = id
	}

	return pairing, nil
}
