package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job at a fixed interval, optionally aligned to a
// wall-clock offset inside the interval (e.g. every 24h at 03:00).
type IntervalSchedule struct {
	Interval time.Duration

	// Offset aligns runs to multiples of Interval since midnight plus Offset.
	// Zero means "Interval after the previous run".
	Offset time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{
		Interval: interval,
	}
}

// NewAlignedSchedule creates a schedule aligned to offset within each interval.
func NewAlignedSchedule(interval, offset time.Duration) *IntervalSchedule {
	return &IntervalSchedule{
		Interval: interval,
		Offset:   offset,
	}
}

// Next returns the next scheduled time after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if s.Offset <= 0 {
		return t.Add(s.Interval)
	}

	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	next := midnight.Add(s.Offset % s.Interval)
	for !next.After(t) {
		next = next.Add(s.Interval)
	}
	return next
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	if s.Offset > 0 {
		return fmt.Sprintf("@every %s+%s", s.Interval.String(), s.Offset.String())
	}
	return fmt.Sprintf("@every %s", s.Interval.String())
}
