package matching

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/study-match/internal/domain/profile"
)

func TestScore_SameUniversityNoOptionalFields(t *testing.T) {
	a := &profile.UserRecord{
		ID:                "a",
		University:        "KBTU",
		PreferredSubjects: []string{"Math", "Physics"},
		AcademicYear:      profile.YearJunior,
		ProfileComplete:   true,
	}
	b := &profile.UserRecord{
		ID:                "b",
		University:        "kbtu",
		PreferredSubjects: []string{"math", "physics ", "Chemistry"},
		AcademicYear:      profile.YearJunior,
		ProfileComplete:   true,
	}

	bd := NewCompatibilityScorer().Score(a, b)

	assert.Equal(t, 20, bd.University)
	assert.Equal(t, 30, bd.Subjects)
	assert.Equal(t, 10, bd.Availability)
	assert.Equal(t, 7, bd.StudyStyle)
	assert.Equal(t, 5, bd.StudyGoals)
	assert.Equal(t, 5, bd.AcademicYear)
	assert.Equal(t, 77, bd.Base)
	assert.Equal(t, 15, bd.FreshnessBonus)
	assert.Equal(t, 0, bd.SuccessPenalty)
	assert.Equal(t, 92, bd.Adjusted)
	assert.GreaterOrEqual(t, bd.Adjusted, DefaultMatchThreshold)
}

func TestScore_DifferentUniversitiesExcludeUniversityPoints(t *testing.T) {
	availability := profile.Availability{time.Monday: profile.SlotEvening}
	a := &profile.UserRecord{
		ID:                "a",
		University:        "KBTU",
		PreferredSubjects: []string{"algorithms"},
		Availability:      availability,
		StudyStyle:        profile.StyleQuiet,
		StudyGoal:         profile.GoalAceExams,
		AcademicYear:      profile.YearSenior,
	}
	b := &profile.UserRecord{
		ID:                "b",
		University:        "NU",
		PreferredSubjects: []string{"Algorithms"},
		Availability:      availability,
		StudyStyle:        profile.StyleQuiet,
		StudyGoal:         profile.GoalAceExams,
		AcademicYear:      profile.YearSenior,
	}

	bd := NewCompatibilityScorer().Score(a, b)

	assert.Equal(t, 0, bd.University)
	assert.Equal(t, MaxBaseScore-MaxUniversityScore, bd.Base)
}

func TestUniversityScore(t *testing.T) {
	assert.Equal(t, 20, UniversityScore("Astana IT University", "  astana it university"))
	assert.Equal(t, 0, UniversityScore("", ""))
	assert.Equal(t, 0, UniversityScore("AITU", ""))
	assert.Equal(t, 0, UniversityScore("AITU", "SDU"))
}

func TestSubjectScore(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want int
	}{
		{"either empty", nil, []string{"math"}, 0},
		{"no overlap", []string{"math"}, []string{"art"}, 0},
		{"full overlap of smaller set", []string{"math"}, []string{"MATH", "art", "law"}, 30},
		{"one of three", []string{"a", "b", "c"}, []string{"a", "x", "y"}, 10},
		{"two of three", []string{"a", "b", "c"}, []string{"a", "b", "y"}, 20},
		{"duplicates collapse", []string{"Math", "math", "art"}, []string{"math", "law"}, 15},
		{"blank entries ignored", []string{" ", ""}, []string{"math"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubjectScore(tt.a, tt.b))
		})
	}
}

func TestAvailabilityScore(t *testing.T) {
	tests := []struct {
		name string
		a, b profile.Availability
		want int
	}{
		{"either unset", nil, profile.Availability{time.Monday: profile.SlotMorning}, 10},
		{"only unset entries", profile.Availability{time.Monday: profile.SlotUnset}, profile.Availability{time.Monday: profile.SlotMorning}, 10},
		{
			"identical",
			profile.Availability{time.Monday: profile.SlotMorning, time.Wednesday: profile.SlotEvening, time.Friday: profile.SlotAfternoon},
			profile.Availability{time.Monday: profile.SlotMorning, time.Wednesday: profile.SlotEvening, time.Friday: profile.SlotAfternoon},
			20,
		},
		{
			"same day different slot is not overlap",
			profile.Availability{time.Monday: profile.SlotMorning, time.Tuesday: profile.SlotEvening},
			profile.Availability{time.Monday: profile.SlotMorning, time.Tuesday: profile.SlotMorning},
			10,
		},
		{
			"no overlap",
			profile.Availability{time.Monday: profile.SlotMorning},
			profile.Availability{time.Tuesday: profile.SlotMorning},
			0,
		},
		{
			"only none entries",
			profile.Availability{time.Monday: profile.SlotNone},
			profile.Availability{time.Monday: profile.SlotNone},
			10,
		},
		{
			"none never overlaps",
			profile.Availability{time.Monday: profile.SlotNone, time.Sunday: profile.SlotEvening},
			profile.Availability{time.Monday: profile.SlotNone, time.Sunday: profile.SlotEvening},
			20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvailabilityScore(tt.a, tt.b))
			assert.Equal(t, tt.want, AvailabilityScore(tt.b, tt.a))
		})
	}
}

func TestStyleScore(t *testing.T) {
	assert.Equal(t, 7, StyleScore(profile.StyleUnset, profile.StyleQuiet))
	assert.Equal(t, 15, StyleScore(profile.StyleQuiet, profile.StyleQuiet))
	assert.Equal(t, 10, StyleScore(profile.StyleWithMusic, profile.StyleQuiet))
	assert.Equal(t, 10, StyleScore(profile.StyleGroupDiscussion, profile.StyleTeachEachOther))
	assert.Equal(t, 5, StyleScore(profile.StyleQuiet, profile.StyleGroupDiscussion))
	assert.Equal(t, 5, StyleScore(profile.StyleQuiet, "pomodoro"))
}

func TestGoalScore(t *testing.T) {
	assert.Equal(t, 5, GoalScore(profile.GoalUnset, profile.GoalJustPass))
	assert.Equal(t, 10, GoalScore(profile.GoalJustPass, profile.GoalJustPass))
	assert.Equal(t, 8, GoalScore(profile.GoalUnderstandConcepts, profile.GoalAceExams))
	assert.Equal(t, 2, GoalScore(profile.GoalJustPass, profile.GoalAceExams))
	assert.Equal(t, 5, GoalScore(profile.GoalUnderstandConcepts, profile.GoalJustPass))
}

func TestYearScore(t *testing.T) {
	assert.Equal(t, 5, YearScore(profile.YearFreshman, profile.YearFreshman))
	assert.Equal(t, 4, YearScore(profile.YearFreshman, profile.YearSophomore))
	assert.Equal(t, 2, YearScore(profile.YearSenior, profile.YearSophomore))
	assert.Equal(t, 1, YearScore(profile.YearFreshman, profile.YearSenior))
	assert.Equal(t, 2, YearScore(profile.YearUnset, profile.YearSenior))
	assert.Equal(t, 2, YearScore("postdoc", profile.YearSenior))
}

func TestScore_BoundsAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	scorer := NewCompatibilityScorer()

	for i := 0; i < 500; i++ {
		a := randomUser(rng, "a")
		b := randomUser(rng, "b")

		first := scorer.Score(a, b)
		second := scorer.Score(a, b)

		assert.Equal(t, first, second)
		assert.GreaterOrEqual(t, first.Base, 0)
		assert.LessOrEqual(t, first.Base, MaxBaseScore)
		assert.GreaterOrEqual(t, first.Adjusted, 0)
		assert.LessOrEqual(t, first.Adjusted, MaxAdjustedScore)
		assert.Equal(t, AdjustedTotal(first.Base, first.FreshnessBonus, first.SuccessPenalty), first.Adjusted)
	}
}

func randomUser(rng *rand.Rand, id string) *profile.UserRecord {
	universities := []string{"", "KBTU", "kbtu", "NU", "AITU"}
	subjects := []string{"math", "Physics", "law", "art", "history", "CS"}
	slots := []profile.TimeSlot{profile.SlotUnset, profile.SlotMorning, profile.SlotAfternoon, profile.SlotEvening, profile.SlotNone}
	styles := []profile.StudyStyle{profile.StyleUnset, profile.StyleQuiet, profile.StyleWithMusic, profile.StyleGroupDiscussion, profile.StyleTeachEachOther}
	goals := []profile.StudyGoal{profile.GoalUnset, profile.GoalAceExams, profile.GoalUnderstandConcepts, profile.GoalJustPass}
	years := []profile.AcademicYear{profile.YearUnset, profile.YearFreshman, profile.YearSophomore, profile.YearJunior, profile.YearSenior, "unknown"}

	u := &profile.UserRecord{
		ID:           id,
		University:   universities[rng.Intn(len(universities))],
		StudyStyle:   styles[rng.Intn(len(styles))],
		StudyGoal:    goals[rng.Intn(len(goals))],
		AcademicYear: years[rng.Intn(len(years))],
	}

	for _, s := range subjects {
		if rng.Intn(2) == 0 {
			u.PreferredSubjects = append(u.PreferredSubjects, s)
		}
	}

	if rng.Intn(3) > 0 {
		u.Availability = profile.Availability{}
		for day := time.Sunday; day <= time.Saturday; day++ {
			u.Availability[day] = slots[rng.Intn(len(slots))]
		}
	}

	u.TotalMatches = rng.Intn(12)
	if u.TotalMatches > 0 {
		u.SuccessfulMatches = rng.Intn(u.TotalMatches + 1)
	}
	u.AvgMessagesPerMatch = rng.Float64() * 20

	return u
}
