package matching

import (
	"math"

	"github.com/alem-hub/study-match/internal/domain/profile"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADJUSTMENTS
//
// Корректировки применяются поверх базовой оценки и хранятся отдельно:
// бонус свежести поднимает тех, у кого мало прошлых пар, штраф успешности
// опускает тех, кто стабильно не вовлекается в общение.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxFreshnessBonus - бонус пользователя без прошлых пар.
	MaxFreshnessBonus = 15

	// freshnessDecay - скорость затухания бонуса по числу пар.
	freshnessDecay = 0.3

	// MinSuccessPenalty - нижняя граница штрафа пользователя.
	MinSuccessPenalty = -15

	// lowEngagementPenalty - доп. штраф при среднем < 3 сообщений на пару.
	lowEngagementPenalty  = -5
	lowEngagementMessages = 3.0
	lowEngagementMinPairs = 2

	// MaxAdjustedScore - верхняя граница итоговой оценки.
	MaxAdjustedScore = MaxBaseScore + MaxFreshnessBonus
)

// FreshnessBonus возвращает бонус пользователя: 15 без пар,
// иначе round(15 * exp(-0.3 * total)).
func FreshnessBonus(stats profile.MatchStats) int {
	if stats.TotalMatches <= 0 {
		return MaxFreshnessBonus
	}
	return roundInt(MaxFreshnessBonus * math.Exp(-freshnessDecay*float64(stats.TotalMatches)))
}

// SuccessPenalty возвращает штраф пользователя по доле успешных пар
// и среднему числу сообщений. Результат в [-15, 0].
func SuccessPenalty(stats profile.MatchStats) int {
	if stats.TotalMatches <= 0 {
		return 0
	}

	var penalty int
	switch rate := stats.SuccessRate(); {
	case rate >= 0.8:
		penalty = 0
	case rate >= 0.5:
		penalty = -3
	case rate >= 0.2:
		penalty = -6
	default:
		penalty = -10
	}

	if stats.AvgMessagesPerMatch < lowEngagementMessages && stats.TotalMatches >= lowEngagementMinPairs {
		penalty += lowEngagementPenalty
	}

	return max(penalty, MinSuccessPenalty)
}

// PairFreshnessBonus - округлённое среднее бонусов двух пользователей.
func PairFreshnessBonus(a, b profile.MatchStats) int {
	return roundInt(float64(FreshnessBonus(a)+FreshnessBonus(b)) / 2)
}

// PairSuccessPenalty - округлённое среднее штрафов двух пользователей.
func PairSuccessPenalty(a, b profile.MatchStats) int {
	return roundInt(float64(SuccessPenalty(a)+SuccessPenalty(b)) / 2)
}

// AdjustedTotal = max(0, base + bonus + penalty).
func AdjustedTotal(base, bonus, penalty int) int {
	return max(0, base+bonus+penalty)
}
