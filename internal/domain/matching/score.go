// Package matching содержит ядро автоматического подбора пар:
// оценку совместимости, отбор пула, защиту от повторных пар
// и жадный проход, создающий пары на цикл.
//
// Пакет не знает о хранилищах: все внешние зависимости описаны
// интерфейсами в repository.go.
package matching

import (
	"math"
	"time"

	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE WEIGHTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// Максимумы компонент базовой оценки. Сумма = 100.
	MaxUniversityScore   = 20
	MaxSubjectScore      = 30
	MaxAvailabilityScore = 20
	MaxStyleScore        = 15
	MaxGoalScore         = 10
	MaxYearScore         = 5

	// MaxBaseScore - максимум базовой оценки.
	MaxBaseScore = MaxUniversityScore + MaxSubjectScore + MaxAvailabilityScore +
		MaxStyleScore + MaxGoalScore + MaxYearScore

	// Нейтральные значения для неуказанных полей.
	NeutralAvailabilityScore = 10
	NeutralStyleScore        = 7
	NeutralGoalScore         = 5
	NeutralYearScore         = 2
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE BREAKDOWN
// ══════════════════════════════════════════════════════════════════════════════

// ScoreBreakdown - полная раскладка оценки пары. Сохраняется вместе с парой,
// поэтому корректировки хранятся отдельно от базовой суммы.
type ScoreBreakdown struct {
	University   int `json:"university"`
	Subjects     int `json:"subjects"`
	Availability int `json:"availability"`
	StudyStyle   int `json:"study_style"`
	StudyGoals   int `json:"study_goals"`
	AcademicYear int `json:"academic_year"`

	// Base - сумма шести компонент (0..100).
	Base int `json:"base"`

	// FreshnessBonus - бонус пары за малое число прошлых пар (0..15).
	FreshnessBonus int `json:"freshness_bonus"`

	// SuccessPenalty - штраф пары за низкую вовлечённость (-15..0).
	SuccessPenalty int `json:"success_penalty"`

	// Adjusted - итог: max(0, Base + FreshnessBonus + SuccessPenalty).
	Adjusted int `json:"adjusted"`
}

// Quality возвращает качественную оценку итогового балла.
func (b ScoreBreakdown) Quality() Quality {
	switch {
	case b.Adjusted >= 80:
		return QualityExcellent
	case b.Adjusted >= 60:
		return QualityGood
	case b.Adjusted >= DefaultMatchThreshold:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Quality определяет качество совместимости.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPATIBILITY SCORER
// ══════════════════════════════════════════════════════════════════════════════

// CompatibilityScorer - чистая функция оценки совместимости двух профилей.
// Не хранит состояния и безопасен для параллельного использования.
type CompatibilityScorer struct{}

// NewCompatibilityScorer создаёт оценщик.
func NewCompatibilityScorer() *CompatibilityScorer {
	return &CompatibilityScorer{}
}

// Score считает базовые компоненты и корректировки для пары.
func (s *CompatibilityScorer) Score(a, b *profile.UserRecord) ScoreBreakdown {
	bd := ScoreBreakdown{
		University:   UniversityScore(a.University, b.University),
		Subjects:     SubjectScore(a.PreferredSubjects, b.PreferredSubjects),
		Availability: AvailabilityScore(a.Availability, b.Availability),
		StudyStyle:   StyleScore(a.StudyStyle, b.StudyStyle),
		StudyGoals:   GoalScore(a.StudyGoal, b.StudyGoal),
		AcademicYear: YearScore(a.AcademicYear, b.AcademicYear),
	}
	bd.Base = bd.University + bd.Subjects + bd.Availability + bd.StudyStyle + bd.StudyGoals + bd.AcademicYear

	bd.FreshnessBonus = PairFreshnessBonus(a.Stats(), b.Stats())
	bd.SuccessPenalty = PairSuccessPenalty(a.Stats(), b.Stats())
	bd.Adjusted = AdjustedTotal(bd.Base, bd.FreshnessBonus, bd.SuccessPenalty)

	return bd
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPONENTS
// ══════════════════════════════════════════════════════════════════════════════

// UniversityScore: 20 при совпадении без учёта регистра, иначе 0.
func UniversityScore(a, b string) int {
	if shared.EqualFold(a, b) {
		return MaxUniversityScore
	}
	return 0
}

// SubjectScore: round(30 * shared / min(|A|, |B|)) по нормализованным множествам.
func SubjectScore(a, b []string) int {
	setA := subjectSet(a)
	setB := subjectSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for subject := range setA {
		if _, ok := setB[subject]; ok {
			common++
		}
	}

	smaller := min(len(setA), len(setB))
	return roundInt(float64(MaxSubjectScore) * float64(common) / float64(smaller))
}

func subjectSet(subjects []string) map[string]struct{} {
	set := make(map[string]struct{}, len(subjects))
	for _, s := range subjects {
		if key := shared.NormalizeKey(s); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

// AvailabilityScore сравнивает недельные расписания.
// День считается пересечением, только если у обоих один и тот же активный слот.
func AvailabilityScore(a, b profile.Availability) int {
	if a.IsUnset() || b.IsUnset() {
		return NeutralAvailabilityScore
	}

	overlapping := 0
	for day := time.Sunday; day <= time.Saturday; day++ {
		slotA := a.Slot(day)
		if slotA.IsActive() && slotA == b.Slot(day) {
			overlapping++
		}
	}

	total := a.ActiveDays() + b.ActiveDays()
	if total == 0 {
		return NeutralAvailabilityScore
	}

	ratio := float64(overlapping) / (float64(total) / 2)
	ratio = math.Max(0, math.Min(1, ratio))
	return roundInt(float64(MaxAvailabilityScore) * ratio)
}

// compatibleStyles - пары стилей, которые хорошо сочетаются.
var compatibleStyles = [][2]profile.StudyStyle{
	{profile.StyleQuiet, profile.StyleWithMusic},
	{profile.StyleGroupDiscussion, profile.StyleTeachEachOther},
}

// StyleScore: 7 если не указан, 15 при совпадении, 10 для совместимых, иначе 5.
func StyleScore(a, b profile.StudyStyle) int {
	if !a.IsSet() || !b.IsSet() {
		return NeutralStyleScore
	}
	na := profile.StudyStyle(shared.NormalizeKey(string(a)))
	nb := profile.StudyStyle(shared.NormalizeKey(string(b)))
	if na == nb {
		return MaxStyleScore
	}
	for _, pair := range compatibleStyles {
		if unorderedEqual(pair[0], pair[1], na, nb) {
			return 10
		}
	}
	return 5
}

// GoalScore: 5 если не указана, 10 при совпадении, 8 для ace_exams/understand_concepts,
// 2 для ace_exams/just_pass, иначе 5.
func GoalScore(a, b profile.StudyGoal) int {
	if !a.IsSet() || !b.IsSet() {
		return NeutralGoalScore
	}
	na := profile.StudyGoal(shared.NormalizeKey(string(a)))
	nb := profile.StudyGoal(shared.NormalizeKey(string(b)))
	switch {
	case na == nb:
		return MaxGoalScore
	case unorderedEqual(profile.GoalAceExams, profile.GoalUnderstandConcepts, na, nb):
		return 8
	case unorderedEqual(profile.GoalAceExams, profile.GoalJustPass, na, nb):
		return 2
	default:
		return NeutralGoalScore
	}
}

// YearScore: ступенчато по расстоянию между курсами: 0→5, 1→4, 2→2, ≥3→1.
func YearScore(a, b profile.AcademicYear) int {
	oa, okA := a.Ordinal()
	ob, okB := b.Ordinal()
	if !okA || !okB {
		return NeutralYearScore
	}

	distance := oa - ob
	if distance < 0 {
		distance = -distance
	}

	switch distance {
	case 0:
		return MaxYearScore
	case 1:
		return 4
	case 2:
		return 2
	default:
		return 1
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func unorderedEqual[T comparable](x, y, a, b T) bool {
	return (a == x && b == y) || (a == y && b == x)
}

// roundInt округляет половины от нуля, как math.Round.
func roundInt(v float64) int {
	return int(math.Round(v))
}
