// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE PAIR QUERY
// Считает совместимость двух пользователей по запросу, без создания пары.
// Та же функция оценки, что и в цикле; нужна для ручного подбора
// и для разбора, почему пара не сложилась.
// ══════════════════════════════════════════════════════════════════════════════

// ScorePairQuery содержит параметры запроса.
type ScorePairQuery struct {
	UserAID string
	UserBID string
}

// Validate проверяет корректность параметров.
func (q ScorePairQuery) Validate() error {
	a, b := strings.TrimSpace(q.UserAID), strings.TrimSpace(q.UserBID)
	if a == "" || b == "" {
		return errors.New("both user ids must be provided")
	}
	if a == b {
		return shared.ErrSelfPairing
	}
	return nil
}

// ScorePairResult - DTO с разбором оценки.
type ScorePairResult struct {
	UserAID   string                  `json:"user_a_id"`
	UserBID   string                  `json:"user_b_id"`
	Breakdown matching.ScoreBreakdown `json:"breakdown"`
	Quality   matching.Quality        `json:"quality"`

	// Threshold - текущий порог цикла.
	Threshold int `json:"threshold"`

	// PreviouslyPaired - пара уже была в журнале; цикл её не создаст.
	PreviouslyPaired bool `json:"previously_paired"`

	// SameUniversity - цикл рассматривает только пары одного университета.
	SameUniversity bool `json:"same_university"`

	// WouldMatch - пара прошла бы все фильтры цикла при свободных участниках.
	WouldMatch bool `json:"would_match"`
}

// ScorePairHandler обрабатывает запрос оценки пары.
type ScorePairHandler struct {
	profiles  profile.Store
	scorer    matching.Scorer
	guard     *matching.HistoryGuard
	threshold int
}

// NewScorePairHandler создаёт обработчик.
func NewScorePairHandler(profiles profile.Store, ledger matching.Ledger, scorer matching.Scorer, threshold int) *ScorePairHandler {
	if scorer == nil {
		scorer = matching.NewCompatibilityScorer()
	}
	return &ScorePairHandler{
		profiles:  profiles,
		scorer:    scorer,
		guard:     matching.NewHistoryGuard(ledger),
		threshold: threshold,
	}
}

// Handle выполняет запрос.
func (h *ScorePairHandler) Handle(ctx context.Context, q ScorePairQuery) (*ScorePairResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("score_pair: invalid query: %w", err)
	}

	a, err := h.profiles.GetByID(ctx, strings.TrimSpace(q.UserAID))
	if err != nil {
		return nil, fmt.Errorf("score_pair: get user a: %w", err)
	}
	b, err := h.profiles.GetByID(ctx, strings.TrimSpace(q.UserBID))
	if err != nil {
		return nil, fmt.Errorf("score_pair: get user b: %w", err)
	}

	prior, err := h.guard.HasPriorPairing(ctx, a.ID, b.ID)
	if err != nil {
		return nil, fmt.Errorf("score_pair: %w", err)
	}

	breakdown := h.scorer.Score(a, b)
	sameUniversity := shared.EqualFold(a.University, b.University)

	return &ScorePairResult{
		UserAID:          a.ID,
		UserBID:          b.ID,
		Breakdown:        breakdown,
		Quality:          breakdown.Quality(),
		Threshold:        h.threshold,
		PreviouslyPaired: prior,
		SameUniversity:   sameUniversity,
		WouldMatch:       sameUniversity && !prior && breakdown.Adjusted >= h.threshold,
	}, nil
}
