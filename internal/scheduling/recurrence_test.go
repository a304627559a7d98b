package scheduling

import (
	"errors"
	"slices"
	"testing"
	"time"

	"roombook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_None(t *testing.T) {
	start := at(10, 0)
	for _, end := range []time.Time{{}, start.AddDate(5, 0, 0), start.AddDate(0, 0, -3)} {
		occ, err := ExpandAll(start, time.Hour, models.RecurrenceNone, end)
		require.NoError(t, err)
		require.Len(t, occ, 1)
		assert.Equal(t, Occurrence{Start: start, End: start.Add(time.Hour)}, occ[0])
	}

	occ, err := ExpandAll(start, time.Hour, "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, occ, 1)
}

func TestExpand_Daily(t *testing.T) {
	start := at(10, 0)
	for _, days := range []int{0, 1, 6, 30, 364} {
		end := start.AddDate(0, 0, days).Add(3 * time.Hour)
		occ, err := ExpandAll(start, 2*time.Hour, models.RecurrenceDaily, end)
		require.NoError(t, err)

		want := int(end.Sub(start)/(24*time.Hour)) + 1
		require.Len(t, occ, want, "days=%d", days)
		for i, o := range occ {
			assert.Equal(t, 2*time.Hour, o.Duration())
			if i > 0 {
				assert.Equal(t, 24*time.Hour, o.Start.Sub(occ[i-1].Start))
			}
		}
	}
}

func TestExpand_InclusiveEnd(t *testing.T) {
	start := at(10, 0)
	occ, err := ExpandAll(start, time.Hour, models.RecurrenceWeekly, start.AddDate(0, 0, 21))
	require.NoError(t, err)
	require.Len(t, occ, 4)
	assert.Equal(t, start.AddDate(0, 0, 21), occ[3].Start)

	occ, err = ExpandAll(start, time.Hour, models.RecurrenceWeekly, start.AddDate(0, 0, 21).Add(-time.Second))
	require.NoError(t, err)
	assert.Len(t, occ, 3)
}

func TestExpand_Monthly(t *testing.T) {
	start := time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)
	occ, err := ExpandAll(start, time.Hour, models.RecurrenceMonthly, time.Date(2025, 5, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var days []string
	for _, o := range occ {
		days = append(days, o.Start.Format(time.DateOnly))
	}
	assert.Equal(t, []string{"2025-01-31", "2025-02-28", "2025-03-31", "2025-04-30", "2025-05-31"}, days)
}

func TestExpand_StrictlyIncreasing(t *testing.T) {
	start := at(8, 0)
	for _, p := range []string{models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly} {
		occ, err := ExpandAll(start, 30*time.Minute, p, RecurrenceLimit(start))
		require.NoError(t, err)
		assert.True(t, slices.IsSortedFunc(occ, func(a, b Occurrence) int { return a.Start.Compare(b.Start) }))
		for i := 1; i < len(occ); i++ {
			assert.True(t, occ[i].Start.After(occ[i-1].Start), p)
		}
	}
}

func TestExpand_RangeGuard(t *testing.T) {
	start := at(10, 0)

	occ, err := ExpandAll(start, time.Hour, models.RecurrenceDaily, RecurrenceLimit(start))
	require.NoError(t, err)
	assert.Len(t, occ, 366)

	_, err = Expand(start, time.Hour, models.RecurrenceDaily, RecurrenceLimit(start).Add(time.Second))
	var rangeErr *RecurrenceRangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, RecurrenceLimit(start), rangeErr.Limit)

	_, err = Expand(start, time.Hour, models.RecurrenceMonthly, start.AddDate(2, 0, 0))
	assert.ErrorAs(t, err, &rangeErr)
}

func TestExpand_InvalidInput(t *testing.T) {
	start := at(10, 0)

	_, err := Expand(start, time.Hour, "yearly", start.AddDate(0, 1, 0))
	var patternErr *InvalidRecurrencePatternError
	require.ErrorAs(t, err, &patternErr)
	assert.Equal(t, "yearly", patternErr.Pattern)

	var vErr *ValidationError
	_, err = Expand(start, 0, models.RecurrenceNone, time.Time{})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "end_time", vErr.Field)

	_, err = Expand(start, time.Hour, models.RecurrenceWeekly, time.Time{})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "recurrence_end_date", vErr.Field)

	_, err = Expand(start, time.Hour, models.RecurrenceWeekly, start.Add(-time.Hour))
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "recurrence_end_date", vErr.Field)
}

func TestExpand_Restartable(t *testing.T) {
	start := at(10, 0)
	seq, err := Expand(start, time.Hour, models.RecurrenceWeekly, start.AddDate(0, 3, 0))
	require.NoError(t, err)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)

	again, err := ExpandAll(start, time.Hour, models.RecurrenceWeekly, start.AddDate(0, 3, 0))
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// early break leaves nothing behind
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, first, slices.Collect(seq))
}
