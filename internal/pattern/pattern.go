package pattern

import (
	"fmt"
	"time"
)

// Options carries the variant-specific configuration of a recurrence rule.
// It is persisted as an opaque JSON payload alongside the owning series.
type Options struct {
	// Interval is the gap between occurrences in the variant's native unit
	// (days, weeks or months). Zero means 1.
	Interval int `json:"interval,omitempty"`
	// Weekdays selects the days of week for weekly style rules.
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	// DayOfMonth pins monthly rules to a fixed day. Days beyond the end of
	// a month clamp to its last day.
	DayOfMonth int `json:"day_of_month,omitempty"`
	// NthWeek and NthWeekday select the nth weekday of the month instead of
	// a fixed day. Negative NthWeek counts from the end of the month.
	NthWeek    int          `json:"nth_week,omitempty"`
	NthWeekday time.Weekday `json:"nth_weekday,omitempty"`
	// RRule holds an RFC 5545 recurrence rule for the custom variant.
	RRule string `json:"rrule,omitempty"`
	// EndDate bounds the sequence; no date after it is ever produced.
	EndDate *time.Time `json:"end_date,omitempty"`
}

// Pattern computes recurrence dates from a start date and options. All
// implementations are stateless: the same inputs always yield the same
// sequence, so generation can be restarted from any previously produced date.
type Pattern interface {
	// Key identifies the variant inside a registry.
	Key() string
	// Validate reports whether the options are usable by this variant.
	Validate(opts Options) error
	// Generate returns up to count dates, strictly increasing, every one on
	// or after start, stopping early when opts.EndDate would be exceeded.
	Generate(start time.Time, count int, opts Options) ([]time.Time, error)
	// Next returns the first date of the sequence strictly after the given
	// date. The series start anchors the interval phase.
	Next(start, after time.Time, opts Options) (time.Time, bool)
	// Describe renders a human readable summary of the rule.
	Describe(opts Options) string
}

// OptionError reports a single invalid option field.
type OptionError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *OptionError) Error() string {
	return fmt.Sprintf("pattern: option %s %s", e.Field, e.Reason)
}

// maxScanDays bounds the day-by-day candidate walk. The widest supported gap
// is a yearly monthly interval, so four-plus years of headroom is enough.
const maxScanDays = 1600

// matchFunc reports whether a normalized date belongs to the sequence
// anchored at start.
type matchFunc func(start, date time.Time, opts Options) bool

// NormalizeDate truncates t to a civil date at midnight UTC. All sequence
// arithmetic happens on normalized dates so wall-clock zones cannot skew the
// day walk.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func withinEnd(date time.Time, opts Options) bool {
	if opts.EndDate == nil {
		return true
	}
	return !date.After(NormalizeDate(*opts.EndDate))
}

// nextMatch walks forward one day at a time from after until the predicate
// accepts a date or the window closes.
func nextMatch(start, after time.Time, opts Options, matches matchFunc) (time.Time, bool) {
	start = NormalizeDate(start)
	day := NormalizeDate(after).AddDate(0, 0, 1)
	if day.Before(start) {
		day = start
	}
	for i := 0; i < maxScanDays; i++ {
		if !withinEnd(day, opts) {
			return time.Time{}, false
		}
		if matches(start, day, opts) {
			return day, true
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

// generateByMatch builds the sequence by repeated nextMatch calls, including
// the start date itself when it satisfies the rule.
func generateByMatch(start time.Time, count int, opts Options, matches matchFunc) []time.Time {
	dates := make([]time.Time, 0, count)
	if count <= 0 {
		return dates
	}
	start = NormalizeDate(start)
	day := start
	if withinEnd(day, opts) && matches(start, day, opts) {
		dates = append(dates, day)
	}
	for len(dates) < count {
		next, ok := nextMatch(start, day, opts, matches)
		if !ok {
			break
		}
		dates = append(dates, next)
		day = next
	}
	return dates
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

// startOfWeek returns the Monday on or before t.
func startOfWeek(t time.Time) time.Time {
	t = NormalizeDate(t)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func intervalOrOne(interval int) int {
	if interval < 1 {
		return 1
	}
	return interval
}
