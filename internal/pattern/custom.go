package pattern

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// defaultRuleCap bounds how many occurrences a custom rule may be asked to
// expand in a single call, guarding against pathological RRULE inputs.
const defaultRuleCap = 1000

// Custom evaluates an explicit RFC 5545 RRULE string, covering combination
// rules the fixed variants cannot express.
type Custom struct {
	cap int
}

// NewCustom constructs the custom variant with the default occurrence cap.
func NewCustom() *Custom { return &Custom{cap: defaultRuleCap} }

// Key identifies the variant.
func (*Custom) Key() string { return "custom" }

// Validate checks that the options carry a parseable recurrence rule.
func (*Custom) Validate(opts Options) error {
	if strings.TrimSpace(opts.RRule) == "" {
		return &OptionError{Field: "rrule", Reason: "is required"}
	}
	if _, err := rrule.StrToRRule(opts.RRule); err != nil {
		return &OptionError{Field: "rrule", Reason: "is not a valid recurrence rule"}
	}
	return nil
}

func (c *Custom) rule(start time.Time, opts Options) (*rrule.RRule, error) {
	r, err := rrule.StrToRRule(opts.RRule)
	if err != nil {
		return nil, &OptionError{Field: "rrule", Reason: "is not a valid recurrence rule"}
	}
	r.DTStart(NormalizeDate(start))
	return r, nil
}

// Generate returns up to count dates of the rule's sequence.
func (c *Custom) Generate(start time.Time, count int, opts Options) ([]time.Time, error) {
	r, err := c.rule(start, opts)
	if err != nil {
		return nil, err
	}
	start = NormalizeDate(start)
	limit := c.cap
	if limit <= 0 {
		limit = defaultRuleCap
	}
	dates := make([]time.Time, 0, count)
	next := r.Iterator()
	for i := 0; i < limit && len(dates) < count; i++ {
		t, ok := next()
		if !ok {
			break
		}
		d := NormalizeDate(t)
		if d.Before(start) {
			continue
		}
		if !withinEnd(d, opts) {
			break
		}
		if len(dates) > 0 && !d.After(dates[len(dates)-1]) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// Next returns the first sequence date strictly after the given date.
func (c *Custom) Next(start, after time.Time, opts Options) (time.Time, bool) {
	r, err := c.rule(start, opts)
	if err != nil {
		return time.Time{}, false
	}
	t := r.After(NormalizeDate(after), false)
	if t.IsZero() {
		return time.Time{}, false
	}
	d := NormalizeDate(t)
	if !withinEnd(d, opts) {
		return time.Time{}, false
	}
	return d, true
}

// Describe renders the rule for display.
func (*Custom) Describe(opts Options) string {
	return "custom rule " + strings.TrimSpace(opts.RRule)
}
