package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/study-match/internal/domain/profile"
)

func TestFreshnessBonus(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{0, 15},
		{1, 11},
		{2, 8},
		{5, 3},
		{20, 0},
	}

	for _, tt := range tests {
		got := FreshnessBonus(profile.MatchStats{TotalMatches: tt.total})
		assert.Equal(t, tt.want, got, "total_matches=%d", tt.total)
	}
}

func TestSuccessPenalty(t *testing.T) {
	tests := []struct {
		name  string
		stats profile.MatchStats
		want  int
	}{
		{"no history", profile.MatchStats{}, 0},
		{"high success", profile.MatchStats{TotalMatches: 10, SuccessfulMatches: 8, AvgMessagesPerMatch: 12}, 0},
		{"medium success", profile.MatchStats{TotalMatches: 2, SuccessfulMatches: 1, AvgMessagesPerMatch: 5}, -3},
		{"low success", profile.MatchStats{TotalMatches: 5, SuccessfulMatches: 1, AvgMessagesPerMatch: 4}, -6},
		{"low success and quiet", profile.MatchStats{TotalMatches: 3, SuccessfulMatches: 1, AvgMessagesPerMatch: 2}, -11},
		{"single failed match has no engagement extra", profile.MatchStats{TotalMatches: 1, AvgMessagesPerMatch: 0}, -10},
		{"floor", profile.MatchStats{TotalMatches: 5, SuccessfulMatches: 0, AvgMessagesPerMatch: 1}, -15},
		{"high success but quiet", profile.MatchStats{TotalMatches: 4, SuccessfulMatches: 4, AvgMessagesPerMatch: 1}, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuccessPenalty(tt.stats))
		})
	}
}

func TestAdjustment_RepeatedlyFailingUser(t *testing.T) {
	stats := profile.MatchStats{TotalMatches: 5, SuccessfulMatches: 0, AvgMessagesPerMatch: 1}

	assert.Equal(t, -15, SuccessPenalty(stats))
	assert.Equal(t, 3, FreshnessBonus(stats))
}

func TestPairAdjustments_RoundMean(t *testing.T) {
	fresh := profile.MatchStats{}
	failing := profile.MatchStats{TotalMatches: 5, SuccessfulMatches: 0, AvgMessagesPerMatch: 1}

	// (15 + 3) / 2 = 9
	assert.Equal(t, 9, PairFreshnessBonus(fresh, failing))
	// (0 + -15) / 2 = -7.5, rounded away from zero
	assert.Equal(t, -8, PairSuccessPenalty(fresh, failing))
	assert.Equal(t, PairSuccessPenalty(failing, fresh), PairSuccessPenalty(fresh, failing))
}

func TestPairAdjustments_HalvesRoundAwayFromZero(t *testing.T) {
	fresh := profile.MatchStats{}
	medium := profile.MatchStats{TotalMatches: 2, SuccessfulMatches: 1, AvgMessagesPerMatch: 5}
	twice := profile.MatchStats{TotalMatches: 2}

	// (0 + -3) / 2 = -1.5
	assert.Equal(t, -2, PairSuccessPenalty(fresh, medium))
	assert.Equal(t, -2, PairSuccessPenalty(medium, fresh))
	// (15 + 8) / 2 = 11.5
	assert.Equal(t, 12, PairFreshnessBonus(fresh, twice))
}

func TestAdjustedTotal_FloorsAtZero(t *testing.T) {
	assert.Equal(t, 0, AdjustedTotal(5, 0, -15))
	assert.Equal(t, 92, AdjustedTotal(77, 15, 0))
	assert.Equal(t, MaxAdjustedScore, AdjustedTotal(MaxBaseScore, MaxFreshnessBonus, 0))
}
