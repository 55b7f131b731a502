// Package engagement содержит расчёт статистики прошлых пар пользователя
// по сигналам вовлечённости, которые присылает подсистема чата.
//
// Сами сигналы (сообщения, назначенные занятия, разрывы пары) считаются
// вне ядра. Здесь живут только формула "успешности" пары и порог.
package engagement

import (
	"context"
	"math"
	"time"

	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SIGNALS
// ══════════════════════════════════════════════════════════════════════════════

// Signal - агрегированная вовлечённость по одной паре.
type Signal struct {
	PairingID        string
	MessageCount     int
	SessionScheduled bool
	UnmatchedAt      *time.Time
	UpdatedAt        time.Time
}

// Feed - источник сигналов вовлечённости.
type Feed interface {
	// SignalsFor возвращает сигналы для указанных пар.
	// Пары без сигналов в результат не попадают.
	SignalsFor(ctx context.Context, pairingIDs []string) (map[string]Signal, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUCCESS SCORE
//
// Балл пары (0..100):
//   сообщения    - 2 за сообщение, максимум 40
//   занятие      - 30, если назначено хотя бы одно
//   длительность - до 30, линейно за первые 14 дней жизни пары
//   разрыв       - минус 40 в первые 3 дня, минус 20 позже
// Пара успешна при балле >= SuccessThreshold.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// SuccessThreshold - минимальный балл успешной пары.
	SuccessThreshold = 50

	messagePoints    = 2
	maxMessageScore  = 40
	sessionScore     = 30
	maxDurationScore = 30
	durationHorizon  = 14 * 24 * time.Hour

	earlyUnmatchWindow  = 3 * 24 * time.Hour
	earlyUnmatchPenalty = 40
	lateUnmatchPenalty  = 20
)

// SuccessScore считает балл пары на момент now.
func SuccessScore(p *matching.PairingRecord, s Signal, now time.Time) int {
	score := min(max(s.MessageCount, 0)*messagePoints, maxMessageScore)

	if s.SessionScheduled {
		score += sessionScore
	}

	window := shared.TimeRange{From: p.CreatedAt, To: activeUntil(p, s, now)}
	if window.IsValid() {
		ratio := math.Min(1, float64(window.Duration())/float64(durationHorizon))
		score += int(math.Round(maxDurationScore * ratio))
	}

	if s.UnmatchedAt != nil {
		if s.UnmatchedAt.Sub(p.CreatedAt) < earlyUnmatchWindow {
			score -= earlyUnmatchPenalty
		} else {
			score -= lateUnmatchPenalty
		}
	}

	return max(0, min(100, score))
}

// IsSuccessful проверяет, достигла ли пара порога успешности.
func IsSuccessful(p *matching.PairingRecord, s Signal, now time.Time) bool {
	return SuccessScore(p, s, now) >= SuccessThreshold
}

// activeUntil - конец "жизни" пары: разрыв, завершение или текущий момент.
func activeUntil(p *matching.PairingRecord, s Signal, now time.Time) time.Time {
	end := now
	if p.EndedAt != nil && p.EndedAt.Before(end) {
		end = *p.EndedAt
	}
	if s.UnmatchedAt != nil && s.UnmatchedAt.Before(end) {
		end = *s.UnmatchedAt
	}
	return end
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION
// ══════════════════════════════════════════════════════════════════════════════

// ComputeStats агрегирует историю пар пользователя.
// Учитываются только пары, созданные циклом.
func ComputeStats(userID string, pairings []*matching.PairingRecord, signals map[string]Signal, now time.Time) profile.MatchStats {
	var (
		total      int
		successful int
		messages   int
	)

	for _, p := range pairings {
		if p == nil || p.Type != matching.PairingTypeCycle || !p.Involves(userID) {
			continue
		}
		total++

		s := signals[p.ID]
		messages += max(s.MessageCount, 0)
		if IsSuccessful(p, s, now) {
			successful++
		}
	}

	stats := profile.MatchStats{
		TotalMatches:      total,
		SuccessfulMatches: successful,
	}
	if total > 0 {
		stats.AvgMessagesPerMatch = float64(messages) / float64(total)
	}
	return stats
}

// CyclePairingIDs возвращает ID пар цикла, для которых нужны сигналы.
func CyclePairingIDs(pairings []*matching.PairingRecord) []string {
	ids := make([]string, 0, len(pairings))
	for _, p := range pairings {
		if p != nil && p.Type == matching.PairingTypeCycle {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
