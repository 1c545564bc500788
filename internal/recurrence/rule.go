package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/dukerupert/volunteerd/internal/model"
)

// MaxOccurrences caps a single expansion. Larger series are rejected, never truncated.
const MaxOccurrences = 365

type Freq int

const (
	Daily Freq = iota + 1
	Weekly
	Monthly
)

var freqNames = map[Freq]string{
	Daily:   "daily",
	Weekly:  "weekly",
	Monthly: "monthly",
}

var freqFromName = map[string]Freq{
	"daily":   Daily,
	"weekly":  Weekly,
	"monthly": Monthly,
}

func (f Freq) String() string {
	return freqNames[f]
}

func (f Freq) MarshalText() ([]byte, error) {
	name, ok := freqNames[f]
	if !ok {
		return nil, fmt.Errorf("%w: unknown frequency %d", model.ErrInvalidRule, int(f))
	}
	return []byte(name), nil
}

func (f *Freq) UnmarshalText(b []byte) error {
	v, ok := freqFromName[strings.ToLower(strings.TrimSpace(string(b)))]
	if !ok {
		return fmt.Errorf("%w: unknown frequency %q", model.ErrInvalidRule, string(b))
	}
	*f = v
	return nil
}

func (f Freq) rruleFreq() rrule.Frequency {
	switch f {
	case Weekly:
		return rrule.WEEKLY
	case Monthly:
		return rrule.MONTHLY
	}
	return rrule.DAILY
}

// Rule describes how a series repeats. Exactly one of EndDate and Count
// terminates it. EndDate is a calendar date and is inclusive.
type Rule struct {
	Freq     Freq
	Interval int
	EndDate  *time.Time
	Count    int
}

// Validate checks the rule's shape without expanding it.
func (r Rule) Validate() error {
	if _, ok := freqNames[r.Freq]; !ok {
		return fmt.Errorf("%w: frequency must be daily, weekly, or monthly", model.ErrInvalidRule)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1", model.ErrInvalidRule)
	}
	hasCount := r.Count != 0
	hasEnd := r.EndDate != nil
	if hasCount && hasEnd {
		return fmt.Errorf("%w: set either end date or count, not both", model.ErrInvalidRule)
	}
	if !hasCount && !hasEnd {
		return fmt.Errorf("%w: end date or count is required", model.ErrInvalidRule)
	}
	if hasCount && r.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1", model.ErrInvalidRule)
	}
	if r.Count > MaxOccurrences {
		return fmt.Errorf("%w: count %d exceeds limit of %d", model.ErrRecurrenceTooLarge, r.Count, MaxOccurrences)
	}
	return nil
}

// Parse reads an RFC 5545 RRULE such as "FREQ=WEEKLY;INTERVAL=2;COUNT=6".
// Only FREQ, INTERVAL, COUNT and UNTIL are supported.
func Parse(s string) (Rule, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "RRULE:")
	if s == "" {
		return Rule{}, fmt.Errorf("%w: empty rule", model.ErrInvalidRule)
	}

	opt, err := rrule.StrToROption(s)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", model.ErrInvalidRule, err)
	}
	if len(opt.Byweekday) > 0 || len(opt.Bymonthday) > 0 || len(opt.Bymonth) > 0 || len(opt.Bysetpos) > 0 {
		return Rule{}, fmt.Errorf("%w: BY* parts are not supported", model.ErrInvalidRule)
	}

	var r Rule
	switch opt.Freq {
	case rrule.DAILY:
		r.Freq = Daily
	case rrule.WEEKLY:
		r.Freq = Weekly
	case rrule.MONTHLY:
		r.Freq = Monthly
	default:
		return Rule{}, fmt.Errorf("%w: unsupported frequency in %q", model.ErrInvalidRule, s)
	}

	// rrule-go reports an absent INTERVAL and INTERVAL=0 the same way.
	r.Interval = opt.Interval
	if r.Interval == 0 && !hasPart(s, "INTERVAL") {
		r.Interval = 1
	}
	r.Count = opt.Count
	if !opt.Until.IsZero() {
		d := dateOf(opt.Until.UTC())
		r.EndDate = &d
	}

	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func hasPart(rule, name string) bool {
	for _, part := range strings.Split(rule, ";") {
		key, _, _ := strings.Cut(part, "=")
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return true
		}
	}
	return false
}

// String serializes the rule as RRULE text. The end date is written as the
// last second of that day in UTC.
func (r Rule) String() string {
	opt := rrule.ROption{
		Freq:     r.Freq.rruleFreq(),
		Interval: r.Interval,
		Count:    r.Count,
	}
	if r.EndDate != nil {
		y, m, d := r.EndDate.Date()
		opt.Until = time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
	}
	return opt.RRuleString()
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	var unit string
	switch r.Freq {
	case Daily:
		unit = "day"
	case Weekly:
		unit = "week"
	case Monthly:
		unit = "month"
	default:
		return ""
	}

	desc := "Repeats " + r.Freq.String()
	if r.Interval > 1 {
		desc = fmt.Sprintf("Repeats every %d %ss", r.Interval, unit)
	}

	switch {
	case r.Count == 1:
		desc += ", once"
	case r.Count > 1:
		desc += fmt.Sprintf(", %d times", r.Count)
	case r.EndDate != nil:
		desc += ", until " + r.EndDate.Format("Jan 2, 2006")
	}
	return desc
}
