// Package recurrence parses the RRULE subset events use and expands
// recurring events into concrete occurrences.
package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Freq string

const (
	Daily   Freq = "DAILY"
	Weekly  Freq = "WEEKLY"
	Monthly Freq = "MONTHLY"
	Yearly  Freq = "YEARLY"
)

var ErrEmptyRule = errors.New("empty recurrence rule")

var weekdayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// Rule is a parsed RRULE. Zero Count and nil Until mean unbounded.
type Rule struct {
	Freq       Freq
	Interval   int
	ByDay      []time.Weekday
	ByMonthDay int
	Count      int
	Until      *time.Time
}

// Parse reads rules such as "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH". Keys are
// case-insensitive and an "RRULE:" prefix is accepted.
func Parse(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 6 && strings.EqualFold(s[:6], "RRULE:") {
		s = s[6:]
	}
	if s == "" {
		return Rule{}, ErrEmptyRule
	}

	r := Rule{Interval: 1}
	for _, part := range strings.Split(s, ";") {
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, fmt.Errorf("malformed rule part %q", part)
		}
		if err := r.set(strings.ToUpper(strings.TrimSpace(key)), strings.ToUpper(strings.TrimSpace(val))); err != nil {
			return Rule{}, err
		}
	}
	if r.Freq == "" {
		return Rule{}, fmt.Errorf("rule %q has no FREQ", s)
	}
	if r.ByMonthDay > 0 && r.Freq != Monthly {
		return Rule{}, fmt.Errorf("BYMONTHDAY requires FREQ=MONTHLY")
	}
	if len(r.ByDay) > 0 && r.Freq != Weekly {
		return Rule{}, fmt.Errorf("BYDAY requires FREQ=WEEKLY")
	}
	return r, nil
}

func (r *Rule) set(key, val string) error {
	switch key {
	case "FREQ":
		switch f := Freq(val); f {
		case Daily, Weekly, Monthly, Yearly:
			r.Freq = f
		default:
			return fmt.Errorf("unsupported FREQ %q", val)
		}
	case "INTERVAL":
		n, err := positive(val, 0)
		if err != nil {
			return fmt.Errorf("INTERVAL: %w", err)
		}
		r.Interval = n
	case "COUNT":
		n, err := positive(val, 0)
		if err != nil {
			return fmt.Errorf("COUNT: %w", err)
		}
		r.Count = n
	case "BYMONTHDAY":
		n, err := positive(val, 31)
		if err != nil {
			return fmt.Errorf("BYMONTHDAY: %w", err)
		}
		r.ByMonthDay = n
	case "BYDAY":
		r.ByDay = r.ByDay[:0]
		for _, code := range strings.Split(val, ",") {
			i := slices.Index(weekdayCodes[:], strings.TrimSpace(code))
			if i < 0 {
				return fmt.Errorf("BYDAY: unknown weekday %q", code)
			}
			if wd := time.Weekday(i); !slices.Contains(r.ByDay, wd) {
				r.ByDay = append(r.ByDay, wd)
			}
		}
		// Monday-first, matching week expansion order.
		slices.SortFunc(r.ByDay, func(a, b time.Weekday) int { return mondayOffset(a) - mondayOffset(b) })
	case "UNTIL":
		t, err := parseUntil(val)
		if err != nil {
			return err
		}
		r.Until = &t
	default:
		return fmt.Errorf("unsupported rule key %q", key)
	}
	return nil
}

func positive(val string, max int) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil || n < 1 || (max > 0 && n > max) {
		return 0, fmt.Errorf("invalid value %q", val)
	}
	return n, nil
}

func parseUntil(val string) (time.Time, error) {
	for _, layout := range []string{"20060102T150405Z", "20060102"} {
		if t, err := time.Parse(layout, val); err == nil {
			if layout == "20060102" {
				// A bare date includes the whole day.
				t = t.Add(24*time.Hour - time.Second)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("UNTIL: invalid value %q", val)
}

// String renders the rule in canonical key order.
func (r Rule) String() string {
	parts := []string{"FREQ=" + string(r.Freq)}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		codes := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			codes[i] = weekdayCodes[d]
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if r.ByMonthDay > 0 {
		parts = append(parts, "BYMONTHDAY="+strconv.Itoa(r.ByMonthDay))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
	}
	return strings.Join(parts, ";")
}

func mondayOffset(d time.Weekday) int {
	return (int(d) + 6) % 7
}
