package recurrence

import (
	"fmt"
	"time"

	"github.com/dukerupert/volunteerd/internal/model"
)

// Occurrence represents a single generated occurrence of a recurring opportunity.
type Occurrence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Expand generates every occurrence of rule, starting with the caller's own
// start/end pair. All occurrences keep the first one's duration.
//
// Monthly rules clamp to the last day of short months: a series starting on
// the 31st lands on Feb 28 (29 in leap years), Apr 30, and so on. Each step
// is taken from the original start, so the clamp never drifts.
func Expand(rule Rule, start, end time.Time) ([]Occurrence, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", model.ErrInvalidWindow)
	}

	var lastDay time.Time
	if rule.EndDate != nil {
		lastDay = dateOf(*rule.EndDate)
		if dateOf(start).After(lastDay) {
			return nil, fmt.Errorf("%w: end date %s is before first occurrence", model.ErrInvalidWindow, lastDay.Format("2006-01-02"))
		}
	}

	duration := end.Sub(start)
	var results []Occurrence
	for i := 0; ; i++ {
		if rule.Count > 0 && i >= rule.Count {
			break
		}
		occStart := step(rule, start, i)
		if rule.EndDate != nil && dateOf(occStart).After(lastDay) {
			break
		}
		if len(results) == MaxOccurrences {
			return nil, fmt.Errorf("%w: more than %d occurrences", model.ErrRecurrenceTooLarge, MaxOccurrences)
		}
		results = append(results, Occurrence{Start: occStart, End: occStart.Add(duration)})
	}
	return results, nil
}

// step returns the start of the i-th occurrence.
func step(rule Rule, start time.Time, i int) time.Time {
	if i == 0 {
		return start
	}
	n := i * rule.Interval
	switch rule.Freq {
	case Daily:
		return start.AddDate(0, 0, n)
	case Weekly:
		return start.AddDate(0, 0, 7*n)
	case Monthly:
		return addMonthsClamped(start, n)
	}
	return start
}

func addMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + n
	year += total / 12
	month = time.Month(total%12 + 1)
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// dateOf truncates t to its calendar date in t's own location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
