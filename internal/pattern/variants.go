package pattern

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Daily repeats every fixed number of days.
type Daily struct{}

// NewDaily constructs the daily variant.
func NewDaily() *Daily { return &Daily{} }

// Key identifies the variant.
func (*Daily) Key() string { return "daily" }

// Validate checks the daily options.
func (*Daily) Validate(opts Options) error {
	if opts.Interval < 0 || opts.Interval > 365 {
		return &OptionError{Field: "interval", Reason: "must be between 1 and 365 days"}
	}
	return nil
}

func (*Daily) matches(start, date time.Time, opts Options) bool {
	if date.Before(start) {
		return false
	}
	return daysBetween(start, date)%intervalOrOne(opts.Interval) == 0
}

// Generate returns up to count dates of the daily sequence.
func (p *Daily) Generate(start time.Time, count int, opts Options) ([]time.Time, error) {
	if err := p.Validate(opts); err != nil {
		return nil, err
	}
	return generateByMatch(start, count, opts, p.matches), nil
}

// Next returns the first sequence date strictly after the given date.
func (p *Daily) Next(start, after time.Time, opts Options) (time.Time, bool) {
	return nextMatch(start, after, opts, p.matches)
}

// Describe renders the rule for display.
func (*Daily) Describe(opts Options) string {
	interval := intervalOrOne(opts.Interval)
	if interval == 1 {
		return "every day"
	}
	return fmt.Sprintf("every %d days", interval)
}

// Weekly repeats on selected weekdays every fixed number of weeks. Weeks are
// anchored to the Monday of the start date's week.
type Weekly struct{}

// NewWeekly constructs the weekly variant.
func NewWeekly() *Weekly { return &Weekly{} }

// Key identifies the variant.
func (*Weekly) Key() string { return "weekly" }

// Validate checks the weekly options.
func (*Weekly) Validate(opts Options) error {
	return validateWeekly(opts, 52)
}

func validateWeekly(opts Options, maxInterval int) error {
	if opts.Interval < 0 || opts.Interval > maxInterval {
		return &OptionError{Field: "interval", Reason: fmt.Sprintf("must be between 1 and %d weeks", maxInterval)}
	}
	if len(opts.Weekdays) == 0 {
		return &OptionError{Field: "weekdays", Reason: "at least one weekday is required"}
	}
	for _, day := range opts.Weekdays {
		if day < time.Sunday || day > time.Saturday {
			return &OptionError{Field: "weekdays", Reason: "contains an unknown weekday"}
		}
	}
	return nil
}

func weeklyMatches(start, date time.Time, opts Options, interval int) bool {
	if date.Before(start) {
		return false
	}
	included := false
	for _, day := range opts.Weekdays {
		if date.Weekday() == day {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	weeks := daysBetween(startOfWeek(start), startOfWeek(date)) / 7
	return weeks%interval == 0
}

func (*Weekly) matches(start, date time.Time, opts Options) bool {
	return weeklyMatches(start, date, opts, intervalOrOne(opts.Interval))
}

// Generate returns up to count dates of the weekly sequence.
func (p *Weekly) Generate(start time.Time, count int, opts Options) ([]time.Time, error) {
	if err := p.Validate(opts); err != nil {
		return nil, err
	}
	return generateByMatch(start, count, opts, p.matches), nil
}

// Next returns the first sequence date strictly after the given date.
func (p *Weekly) Next(start, after time.Time, opts Options) (time.Time, bool) {
	return nextMatch(start, after, opts, p.matches)
}

// Describe renders the rule for display.
func (*Weekly) Describe(opts Options) string {
	interval := intervalOrOne(opts.Interval)
	prefix := "every week"
	if interval > 1 {
		prefix = fmt.Sprintf("every %d weeks", interval)
	}
	return prefix + " on " + weekdayList(opts.Weekdays)
}

// Biweekly is the every-other-week specialization of Weekly. The interval is
// fixed at two weeks regardless of the options payload.
type Biweekly struct{}

// NewBiweekly constructs the biweekly variant.
func NewBiweekly() *Biweekly { return &Biweekly{} }

// Key identifies the variant.
func (*Biweekly) Key() string { return "biweekly" }

// Validate checks the biweekly options.
func (*Biweekly) Validate(opts Options) error {
	if opts.Interval != 0 && opts.Interval != 2 {
		return &OptionError{Field: "interval", Reason: "is fixed at 2 weeks for biweekly rules"}
	}
	opts.Interval = 0
	return validateWeekly(opts, 2)
}

func (*Biweekly) matches(start, date time.Time, opts Options) bool {
	return weeklyMatches(start, date, opts, 2)
}

// Generate returns up to count dates of the biweekly sequence.
func (p *Biweekly) Generate(start time.Time, count int, opts Options) ([]time.Time, error) {
	if err := p.Validate(opts); err != nil {
		return nil, err
	}
	return generateByMatch(start, count, opts, p.matches), nil
}

// Next returns the first sequence date strictly after the given date.
func (p *Biweekly) Next(start, after time.Time, opts Options) (time.Time, bool) {
	return nextMatch(start, after, opts, p.matches)
}

// Describe renders the rule for display.
func (*Biweekly) Describe(opts Options) string {
	return "every 2 weeks on " + weekdayList(opts.Weekdays)
}

// Monthly repeats on a fixed day of month or on the nth weekday of the month
// every fixed number of months. A fixed day beyond the end of a month clamps
// to the month's last day.
type Monthly struct{}

// NewMonthly constructs the monthly variant.
func NewMonthly() *Monthly { return &Monthly{} }

// Key identifies the variant.
func (*Monthly) Key() string { return "monthly" }

// Validate checks the monthly options.
func (*Monthly) Validate(opts Options) error {
	if opts.Interval < 0 || opts.Interval > 12 {
		return &OptionError{Field: "interval", Reason: "must be between 1 and 12 months"}
	}
	hasDay := opts.DayOfMonth != 0
	hasNth := opts.NthWeek != 0
	switch {
	case hasDay && hasNth:
		return &OptionError{Field: "day_of_month", Reason: "cannot be combined with nth_week"}
	case hasDay:
		if opts.DayOfMonth < 1 || opts.DayOfMonth > 31 {
			return &OptionError{Field: "day_of_month", Reason: "must be between 1 and 31"}
		}
	case hasNth:
		if opts.NthWeek < -5 || opts.NthWeek > 5 {
			return &OptionError{Field: "nth_week", Reason: "must be between -5 and 5"}
		}
		if opts.NthWeekday < time.Sunday || opts.NthWeekday > time.Saturday {
			return &OptionError{Field: "nth_weekday", Reason: "is not a valid weekday"}
		}
	default:
		return &OptionError{Field: "day_of_month", Reason: "or nth_week is required"}
	}
	return nil
}

func (*Monthly) matches(start, date time.Time, opts Options) bool {
	if date.Before(start) {
		return false
	}
	if monthsBetween(start, date)%intervalOrOne(opts.Interval) != 0 {
		return false
	}
	if opts.NthWeek != 0 {
		if date.Weekday() != opts.NthWeekday {
			return false
		}
		if opts.NthWeek > 0 {
			return (date.Day()-1)/7+1 == opts.NthWeek
		}
		fromEnd := (daysInMonth(date.Year(), date.Month())-date.Day())/7 + 1
		return fromEnd == -opts.NthWeek
	}
	target := opts.DayOfMonth
	if last := daysInMonth(date.Year(), date.Month()); target > last {
		target = last
	}
	return date.Day() == target
}

// Generate returns up to count dates of the monthly sequence.
func (p *Monthly) Generate(start time.Time, count int, opts Options) ([]time.Time, error) {
	if err := p.Validate(opts); err != nil {
		return nil, err
	}
	return generateByMatch(start, count, opts, p.matches), nil
}

// Next returns the first sequence date strictly after the given date.
func (p *Monthly) Next(start, after time.Time, opts Options) (time.Time, bool) {
	return nextMatch(start, after, opts, p.matches)
}

// Describe renders the rule for display.
func (*Monthly) Describe(opts Options) string {
	interval := intervalOrOne(opts.Interval)
	prefix := "every month"
	if interval > 1 {
		prefix = fmt.Sprintf("every %d months", interval)
	}
	if opts.NthWeek != 0 {
		return fmt.Sprintf("%s on the %s %s", prefix, ordinal(opts.NthWeek), opts.NthWeekday)
	}
	return fmt.Sprintf("%s on day %d", prefix, opts.DayOfMonth)
}

func weekdayList(days []time.Weekday) string {
	sorted := make([]time.Weekday, len(days))
	copy(sorted, days)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	names := make([]string, 0, len(sorted))
	for _, day := range sorted {
		names = append(names, day.String())
	}
	return strings.Join(names, ", ")
}

func ordinal(n int) string {
	if n == -1 {
		return "last"
	}
	if n < 0 {
		return fmt.Sprintf("%s to last", ordinal(-n))
	}
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", n)
	}
}
