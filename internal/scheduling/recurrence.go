package scheduling

import (
	"iter"
	"slices"
	"time"

	"roombook/internal/models"
)

// MaxRecurrenceDays caps how many calendar days a series end date may lie
// after its first start.
const MaxRecurrenceDays = 365

// RecurrenceLimit is the latest recurrence end accepted for a series that
// starts at start.
func RecurrenceLimit(start time.Time) time.Time {
	return start.AddDate(0, 0, MaxRecurrenceDays)
}

// ValidPattern reports whether p is a known recurrence keyword.
func ValidPattern(p string) bool {
	switch p {
	case models.RecurrenceNone, models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly:
		return true
	}
	return false
}

// Expand returns the occurrences produced by repeating [start, start+duration)
// according to pattern until recurrenceEnd (inclusive). The returned sequence
// recomputes from its inputs every time it is ranged over.
//
// An empty pattern means none. recurrenceEnd is ignored for non-recurring requests.
func Expand(start time.Time, duration time.Duration, pattern string, recurrenceEnd time.Time) (iter.Seq[Occurrence], error) {
	if pattern == "" {
		pattern = models.RecurrenceNone
	}
	if !ValidPattern(pattern) {
		return nil, &InvalidRecurrencePatternError{Pattern: pattern}
	}
	if duration <= 0 {
		return nil, validationError("end_time", "end time must be after start time")
	}

	if pattern == models.RecurrenceNone {
		return func(yield func(Occurrence) bool) {
			yield(Occurrence{Start: start, End: start.Add(duration)})
		}, nil
	}

	if recurrenceEnd.IsZero() {
		return nil, validationError("recurrence_end_date", "recurrence end date is required")
	}
	if recurrenceEnd.Before(start) {
		return nil, validationError("recurrence_end_date", "recurrence end date must not be before start time")
	}
	limit := RecurrenceLimit(start)
	if recurrenceEnd.After(limit) {
		return nil, &RecurrenceRangeError{Start: start, End: recurrenceEnd, Limit: limit}
	}

	return func(yield func(Occurrence) bool) {
		for n := 0; ; n++ {
			s := step(start, pattern, n)
			if s.After(recurrenceEnd) {
				return
			}
			if !yield(Occurrence{Start: s, End: s.Add(duration)}) {
				return
			}
		}
	}, nil
}

// ExpandAll is Expand collected into a slice.
func ExpandAll(start time.Time, duration time.Duration, pattern string, recurrenceEnd time.Time) ([]Occurrence, error) {
	seq, err := Expand(start, duration, pattern, recurrenceEnd)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// step returns the start of the n-th occurrence counted from the anchor.
func step(anchor time.Time, pattern string, n int) time.Time {
	switch pattern {
	case models.RecurrenceDaily:
		return anchor.AddDate(0, 0, n)
	case models.RecurrenceWeekly:
		return anchor.AddDate(0, 0, 7*n)
	case models.RecurrenceMonthly:
		return addMonthsClamped(anchor, n)
	}
	return anchor
}

// addMonthsClamped moves t by n calendar months, keeping the day of month when
// the target month has it and using its last day otherwise.
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return first.AddDate(0, 0, d-1)
}
