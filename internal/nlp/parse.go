// Package nlp extracts a title and a date from short free-text reminders
// such as "call mom tomorrow at 3pm".
package nlp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FallbackConfidence is reported when no temporal phrase was recognized.
const FallbackConfidence = 0.3

type Result struct {
	Title      string    `json:"title"`
	Date       time.Time `json:"date"`
	Confidence float64   `json:"confidence"`
	// Matched is false when no rule fired and Date is just the reference
	// time. Callers should treat such dates as guesses.
	Matched bool     `json:"date_inferred"`
	Rules   []string `json:"rules,omitempty"`
}

type clock struct {
	hour, min int
}

type timeRule struct {
	name       string
	re         *regexp.Regexp
	confidence float64
	// offset is set for relative rules ("in 2 hours").
	offset func(m []string) time.Duration
	// at is set for clock rules ("at 3pm").
	at func(m []string) (clock, bool)
}

type dayRule struct {
	name       string
	re         *regexp.Regexp
	confidence float64
	day        func(m []string, now time.Time) time.Time
	defaultAt  clock
}

func count(m []string) int {
	n, _ := strconv.Atoi(m[1])
	return n
}

var timeRules = []timeRule{
	{
		name:       "in_minutes",
		re:         regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(?:minutes?|mins?)\b`),
		confidence: 0.95,
		offset:     func(m []string) time.Duration { return time.Duration(count(m)) * time.Minute },
	},
	{
		name:       "in_hours",
		re:         regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(?:hours?|hrs?)\b`),
		confidence: 0.95,
		offset:     func(m []string) time.Duration { return time.Duration(count(m)) * time.Hour },
	},
	{
		name:       "in_days",
		re:         regexp.MustCompile(`(?i)\bin\s+(\d+)\s*days?\b`),
		confidence: 0.9,
		offset:     func(m []string) time.Duration { return time.Duration(count(m)) * 24 * time.Hour },
	},
	{
		name:       "in_weeks",
		re:         regexp.MustCompile(`(?i)\bin\s+(\d+)\s*weeks?\b`),
		confidence: 0.9,
		offset:     func(m []string) time.Duration { return time.Duration(count(m)) * 7 * 24 * time.Hour },
	},
	{
		name:       "at_ampm",
		re:         regexp.MustCompile(`(?i)\b(?:at\s+)?(1[0-2]|0?[1-9])(?::([0-5]\d))?\s*([ap])\.?m\.?(?:\s|$|[,.;!?])`),
		confidence: 0.9,
		at: func(m []string) (clock, bool) {
			h, _ := strconv.Atoi(m[1])
			mm, _ := strconv.Atoi(m[2])
			if h == 12 {
				h = 0
			}
			if strings.EqualFold(m[3], "p") {
				h += 12
			}
			return clock{h, mm}, true
		},
	},
	{
		name:       "at_24h",
		re:         regexp.MustCompile(`(?i)\bat\s+([01]?\d|2[0-3]):([0-5]\d)\b`),
		confidence: 0.85,
		at: func(m []string) (clock, bool) {
			h, _ := strconv.Atoi(m[1])
			mm, _ := strconv.Atoi(m[2])
			return clock{h, mm}, true
		},
	},
	{
		name:       "at_named",
		re:         regexp.MustCompile(`(?i)\bat\s+(noon|midnight)\b`),
		confidence: 0.85,
		at: func(m []string) (clock, bool) {
			if strings.EqualFold(m[1], "noon") {
				return clock{12, 0}, true
			}
			return clock{0, 0}, true
		},
	},
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var dayRules = []dayRule{
	{
		name:       "tomorrow",
		re:         regexp.MustCompile(`(?i)\btomorrow\b`),
		confidence: 0.8,
		day:        func(_ []string, now time.Time) time.Time { return now.AddDate(0, 0, 1) },
		defaultAt:  clock{9, 0},
	},
	{
		name:       "tonight",
		re:         regexp.MustCompile(`(?i)\btonight\b`),
		confidence: 0.8,
		day:        func(_ []string, now time.Time) time.Time { return now },
		defaultAt:  clock{20, 0},
	},
	{
		name:       "this_evening",
		re:         regexp.MustCompile(`(?i)\bthis\s+evening\b`),
		confidence: 0.8,
		day:        func(_ []string, now time.Time) time.Time { return now },
		defaultAt:  clock{18, 0},
	},
	{
		name:       "next_weekday",
		re:         regexp.MustCompile(`(?i)\bnext\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`),
		confidence: 0.85,
		day: func(m []string, now time.Time) time.Time {
			want := weekdays[strings.ToLower(m[1])]
			diff := (int(want) - int(now.Weekday()) + 7) % 7
			if diff == 0 {
				diff = 7
			}
			return now.AddDate(0, 0, diff)
		},
		defaultAt: clock{9, 0},
	},
	{
		name:       "next_week",
		re:         regexp.MustCompile(`(?i)\bnext\s+week\b`),
		confidence: 0.7,
		day:        func(_ []string, now time.Time) time.Time { return now.AddDate(0, 0, 7) },
		defaultAt:  clock{9, 0},
	},
}

// Parse extracts a title and date from text relative to now. The time zone
// of now is the zone clock times are interpreted in.
//
// At most one rule from each family applies, tried in declaration order.
// A relative offset fixes the instant outright; otherwise the day rule
// picks the calendar day and the clock rule the time of day. A clock time
// with no day stays on now's date even if already past.
func Parse(text string, now time.Time) Result {
	original := strings.TrimSpace(text)
	remaining := original

	res := Result{Date: now, Confidence: FallbackConfidence}

	var (
		offset     *time.Duration
		at         *clock
		dayFn      func(time.Time) time.Time
		dayDefault clock
	)

	for _, r := range timeRules {
		loc := r.re.FindStringSubmatchIndex(remaining)
		if loc == nil {
			continue
		}
		m := submatches(remaining, loc)
		if r.offset != nil {
			d := r.offset(m)
			offset = &d
		} else if c, ok := r.at(m); ok {
			at = &c
		}
		remaining = cut(remaining, loc[0], loc[1])
		res.note(r.name, r.confidence)
		break
	}

	for _, r := range dayRules {
		loc := r.re.FindStringSubmatchIndex(remaining)
		if loc == nil {
			continue
		}
		m := submatches(remaining, loc)
		rule := r
		dayFn = func(t time.Time) time.Time { return rule.day(m, t) }
		dayDefault = r.defaultAt
		remaining = cut(remaining, loc[0], loc[1])
		res.note(r.name, r.confidence)
		break
	}

	switch {
	case offset != nil:
		res.Date = now.Add(*offset)
	case dayFn != nil:
		c := dayDefault
		if at != nil {
			c = *at
		}
		res.Date = setClock(dayFn(now), c)
	case at != nil:
		res.Date = setClock(now, *at)
	}

	res.Title = StripFiller(tidy(remaining))
	if res.Title == "" {
		res.Title = original
	}
	return res
}

func (r *Result) note(rule string, confidence float64) {
	if !r.Matched || confidence > r.Confidence {
		r.Confidence = confidence
	}
	r.Matched = true
	r.Rules = append(r.Rules, rule)
}

func submatches(s string, loc []int) []string {
	m := make([]string, len(loc)/2)
	for i := range m {
		if loc[2*i] >= 0 {
			m[i] = s[loc[2*i]:loc[2*i+1]]
		}
	}
	return m
}

func cut(s string, start, end int) string {
	return s[:start] + " " + s[end:]
}

func setClock(t time.Time, c clock) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.hour, c.min, 0, 0, t.Location())
}

var spaces = regexp.MustCompile(`\s+`)

func tidy(s string) string {
	s = spaces.ReplaceAllString(s, " ")
	return strings.Trim(s, " ,.;:!-")
}

var fillers = []string{"remind me to", "reminder to", "remember to", "remind me"}

// StripFiller removes a leading "remind me to"-style phrase.
func StripFiller(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, f := range fillers {
		if strings.HasPrefix(lower, f) && (len(s) == len(f) || s[len(f)] == ' ' || s[len(f)] == ',') {
			return strings.TrimSpace(strings.TrimLeft(s[len(f):], " ,"))
		}
	}
	return s
}
