package recurrence

import (
	"log/slog"
	"sort"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

// maxPeriods bounds expansion of rules that rarely produce a date, such as
// BYMONTHDAY=31 or a Feb 29 yearly start.
const maxPeriods = 50000

// Span is one concrete occurrence.
type Span struct {
	Start time.Time
	End   time.Time
}

// Expand returns the occurrences of a series starting at start and lasting
// dur that overlap [from, to). COUNT is counted from the first occurrence,
// not from the window.
func Expand(r Rule, start time.Time, dur time.Duration, from, to time.Time) []Span {
	interval := max(r.Interval, 1)
	var (
		out  []Span
		seen int
	)
	for period := 0; period < maxPeriods; period++ {
		for _, t := range candidates(r, start, period*interval) {
			if t.Before(start) {
				continue
			}
			if !t.Before(to) || (r.Until != nil && t.After(*r.Until)) {
				return out
			}
			seen++
			if r.Count > 0 && seen > r.Count {
				return out
			}
			if end := t.Add(dur); end.After(from) || !t.Before(from) {
				out = append(out, Span{Start: t, End: end})
			}
		}
	}
	return out
}

// candidates lists the instants of the n-th period after start, in order.
// Periods whose day does not exist (Feb 30, Feb 29 in common years) yield
// nothing rather than being clamped.
func candidates(r Rule, start time.Time, n int) []time.Time {
	y, m, d := start.Date()
	hh, mm, ss := start.Clock()
	loc := start.Location()
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, hh, mm, ss, 0, loc)
	}

	switch r.Freq {
	case Daily:
		return []time.Time{at(y, m, d+n)}
	case Weekly:
		if len(r.ByDay) == 0 {
			return []time.Time{at(y, m, d+7*n)}
		}
		monday := d - mondayOffset(start.Weekday()) + 7*n
		out := make([]time.Time, 0, len(r.ByDay))
		for _, wd := range r.ByDay {
			out = append(out, at(y, m, monday+mondayOffset(wd)))
		}
		return out
	case Monthly:
		day := r.ByMonthDay
		if day == 0 {
			day = d
		}
		first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, loc)
		if day > daysIn(first.Year(), first.Month()) {
			return nil
		}
		return []time.Time{at(first.Year(), first.Month(), day)}
	case Yearly:
		if d > daysIn(y+n, m) {
			return nil
		}
		return []time.Time{at(y+n, m, d)}
	}
	return nil
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Occurrences flattens events into the instances overlapping [from, to),
// sorted by start. Non-recurring events pass through as one instance. An
// event with an unparsable rule is treated as non-recurring.
func Occurrences(events []model.Event, from, to time.Time, logger *slog.Logger) []model.EventOccurrence {
	var out []model.EventOccurrence
	for _, e := range events {
		occ := model.EventOccurrence{
			EventID:  e.ID,
			Title:    e.Title,
			Category: e.Category,
			Priority: e.Priority,
			AllDay:   e.AllDay,
		}
		dur := e.EndTime.Sub(e.StartTime)

		var rule Rule
		var err error
		if e.Recurrence != "" {
			rule, err = Parse(e.Recurrence)
			if err != nil && logger != nil {
				logger.Warn("ignoring invalid recurrence", "event_id", e.ID, "rule", e.Recurrence, "error", err)
			}
		}
		if e.Recurrence == "" || err != nil {
			if e.StartTime.Before(to) && (e.EndTime.After(from) || !e.StartTime.Before(from)) {
				occ.StartTime, occ.EndTime = e.StartTime, e.EndTime
				out = append(out, occ)
			}
			continue
		}

		occ.Recurring = true
		for _, s := range Expand(rule, e.StartTime, dur, from, to) {
			occ.StartTime, occ.EndTime = s.Start, s.End
			out = append(out, occ)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}
