// Package profile содержит доменную модель профиля пользователя в части,
// нужной подбору пар: университет, предметы, расписание, стиль и цели учёбы,
// курс и накопленная статистика прошлых пар.
//
// Профилем владеет внешняя подсистема. Ядро подбора пишет только
// LastMatchCycleAt и три счётчика статистики.
package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AVAILABILITY
// ══════════════════════════════════════════════════════════════════════════════

// TimeSlot - предпочтительное время занятий в конкретный день недели.
type TimeSlot string

const (
	// SlotUnset - пользователь ничего не указал для этого дня.
	SlotUnset TimeSlot = ""
	// SlotMorning - утро.
	SlotMorning TimeSlot = "morning"
	// SlotAfternoon - день.
	SlotAfternoon TimeSlot = "afternoon"
	// SlotEvening - вечер.
	SlotEvening TimeSlot = "evening"
	// SlotNone - явно "не занимаюсь в этот день".
	SlotNone TimeSlot = "none"
)

// IsValid проверяет, что слот известен.
func (s TimeSlot) IsValid() bool {
	switch s {
	case SlotUnset, SlotMorning, SlotAfternoon, SlotEvening, SlotNone:
		return true
	default:
		return false
	}
}

// IsActive возвращает true для слотов, в которые пользователь готов заниматься.
func (s TimeSlot) IsActive() bool {
	return s == SlotMorning || s == SlotAfternoon || s == SlotEvening
}

// Availability - недельное расписание: день недели -> слот.
// Отсутствующий ключ эквивалентен SlotUnset.
type Availability map[time.Weekday]TimeSlot

// IsUnset возвращает true, если для всех дней ничего не указано.
func (a Availability) IsUnset() bool {
	for _, slot := range a {
		if slot != SlotUnset {
			return false
		}
	}
	return true
}

// Slot возвращает слот для дня недели.
func (a Availability) Slot(day time.Weekday) TimeSlot {
	if a == nil {
		return SlotUnset
	}
	return a[day]
}

// ActiveDays возвращает количество дней с непустым (не none) слотом.
func (a Availability) ActiveDays() int {
	n := 0
	for day := time.Sunday; day <= time.Saturday; day++ {
		if a.Slot(day).IsActive() {
			n++
		}
	}
	return n
}

// MarshalJSON кодирует расписание как {"monday": "evening", ...}.
func (a Availability) MarshalJSON() ([]byte, error) {
	out := make(map[string]TimeSlot, len(a))
	for day, slot := range a {
		if slot == SlotUnset {
			continue
		}
		out[strings.ToLower(day.String())] = slot
	}
	return json.Marshal(out)
}

// UnmarshalJSON разбирает расписание из {"monday": "evening", ...}.
func (a *Availability) UnmarshalJSON(data []byte) error {
	var raw map[string]TimeSlot
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make(Availability, len(raw))
	for key, slot := range raw {
		day, err := ParseWeekday(key)
		if err != nil {
			return err
		}
		slot = TimeSlot(strings.ToLower(strings.TrimSpace(string(slot))))
		if !slot.IsValid() {
			return fmt.Errorf("availability %s: unknown slot %q", key, slot)
		}
		result[day] = slot
	}
	*a = result
	return nil
}

// ParseWeekday разбирает название дня недели ("monday", "Mon").
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for day := time.Sunday; day <= time.Saturday; day++ {
		name := strings.ToLower(day.String())
		if key == name || (len(key) == 3 && strings.HasPrefix(name, key)) {
			return day, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// StudyStyle определяет, как пользователь предпочитает заниматься.
type StudyStyle string

const (
	StyleUnset           StudyStyle = ""
	StyleQuiet           StudyStyle = "quiet"
	StyleWithMusic       StudyStyle = "with_music"
	StyleGroupDiscussion StudyStyle = "group_discussion"
	StyleTeachEachOther  StudyStyle = "teach_each_other"
)

// IsSet возвращает true, если стиль указан.
func (s StudyStyle) IsSet() bool {
	return strings.TrimSpace(string(s)) != ""
}

// StudyGoal определяет, чего пользователь хочет от учёбы.
type StudyGoal string

const (
	GoalUnset              StudyGoal = ""
	GoalAceExams           StudyGoal = "ace_exams"
	GoalUnderstandConcepts StudyGoal = "understand_concepts"
	GoalJustPass           StudyGoal = "just_pass"
)

// IsSet возвращает true, если цель указана.
func (g StudyGoal) IsSet() bool {
	return strings.TrimSpace(string(g)) != ""
}

// AcademicYear - курс обучения.
type AcademicYear string

const (
	YearUnset     AcademicYear = ""
	YearFreshman  AcademicYear = "freshman"
	YearSophomore AcademicYear = "sophomore"
	YearJunior    AcademicYear = "junior"
	YearSenior    AcademicYear = "senior"
)

// Ordinal возвращает порядковый номер курса (1..4).
// ok=false для пустого или нераспознанного значения.
func (y AcademicYear) Ordinal() (int, bool) {
	switch AcademicYear(strings.ToLower(strings.TrimSpace(string(y)))) {
	case YearFreshman:
		return 1, true
	case YearSophomore:
		return 2, true
	case YearJunior:
		return 3, true
	case YearSenior:
		return 4, true
	default:
		return 0, false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// USER RECORD
// ══════════════════════════════════════════════════════════════════════════════

// UserRecord - профиль пользователя глазами подбора.
// Опциональные поля представлены нулевыми значениями ("не указано"),
// а не отдельными флагами.
type UserRecord struct {
	// ID - непрозрачный идентификатор пользователя.
	ID string

	// University - название университета (сравнивается без учёта регистра).
	University string

	// PreferredSubjects - предметы; дубликаты и регистр игнорируются при сравнении.
	PreferredSubjects []string

	// Availability - недельное расписание (может быть пустым).
	Availability Availability

	// StudyStyle, StudyGoal, AcademicYear - опциональные предпочтения.
	StudyStyle   StudyStyle
	StudyGoal    StudyGoal
	AcademicYear AcademicYear

	// ProfileComplete - пользователь прошёл онбординг.
	ProfileComplete bool

	// LastMatchCycleAt - когда пользователь последний раз получил пару в цикле.
	LastMatchCycleAt *time.Time

	// Статистика прошлых пар, пересчитывается StatsTracker.
	TotalMatches        int
	SuccessfulMatches   int
	AvgMessagesPerMatch float64

	// CreatedAt - для стабильного порядка выборки кандидатов.
	CreatedAt time.Time
}

// Stats возвращает текущую статистику пар.
func (u *UserRecord) Stats() MatchStats {
	return MatchStats{
		TotalMatches:        u.TotalMatches,
		SuccessfulMatches:   u.SuccessfulMatches,
		AvgMessagesPerMatch: u.AvgMessagesPerMatch,
	}
}

// Validate проверяет инварианты записи.
func (u *UserRecord) Validate() error {
	if _, err := shared.NewUserID(u.ID); err != nil {
		return err
	}
	for day, slot := range u.Availability {
		if day < time.Sunday || day > time.Saturday || !slot.IsValid() {
			return shared.NewDomainError("profile", "Validate", shared.ErrInvalidInput,
				fmt.Sprintf("invalid availability entry %d=%q", day, slot))
		}
	}
	return u.Stats().Validate()
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH STATS
// ══════════════════════════════════════════════════════════════════════════════

// MatchStats - агрегированная история пар пользователя.
type MatchStats struct {
	TotalMatches        int     `json:"total_matches"`
	SuccessfulMatches   int     `json:"successful_matches"`
	AvgMessagesPerMatch float64 `json:"avg_messages_per_match"`
}

// SuccessRate возвращает долю успешных пар (0 при отсутствии пар).
func (s MatchStats) SuccessRate() float64 {
	if s.TotalMatches <= 0 {
		return 0
	}
	return float64(s.SuccessfulMatches) / float64(s.TotalMatches)
}

// Validate проверяет 0 <= successful <= total и неотрицательное среднее.
func (s MatchStats) Validate() error {
	if s.TotalMatches < 0 || s.SuccessfulMatches < 0 || s.SuccessfulMatches > s.TotalMatches {
		return shared.NewDomainError("profile", "ValidateStats", shared.ErrValueOutOfRange,
			fmt.Sprintf("invalid match counters: %d successful of %d", s.SuccessfulMatches, s.TotalMatches))
	}
	if s.AvgMessagesPerMatch < 0 {
		return shared.NewDomainError("profile", "ValidateStats", shared.ErrValueOutOfRange,
			"average messages per match cannot be negative")
	}
	return nil
}
