// Package voice turns spoken transcripts into tasks and calendar events.
package voice

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/dukerupert/remind/internal/nlp"
)

var ErrEmptyCommand = errors.New("voice command is empty")

// DefaultTriggers are the wake phrases recognized when none are configured.
var DefaultTriggers = []string{"hey wanda", "ok wanda"}

type Kind string

const (
	KindTask  Kind = "task"
	KindEvent Kind = "event"
	KindMixed Kind = "mixed"
)

type EventCandidate struct {
	Title      string    `json:"title"`
	Date       time.Time `json:"date"`
	Confidence float64   `json:"confidence"`
	// DateInferred is false when no temporal phrase was found and Date
	// defaulted to the reference time.
	DateInferred bool   `json:"date_inferred"`
	Sentence     string `json:"sentence"`
}

type Command struct {
	Trigger string           `json:"trigger,omitempty"`
	Raw     string           `json:"raw"`
	Type    Kind             `json:"type"`
	Tasks   []string         `json:"tasks"`
	Events  []EventCandidate `json:"events"`
}

// StripTrigger removes a leading wake phrase. It reports the phrase that
// matched, or "" when the transcript did not start with one.
func StripTrigger(transcript string, triggers []string) (trigger, rest string) {
	s := strings.TrimLeft(transcript, " \t\n,.!?")
	lower := strings.ToLower(s)
	for _, t := range triggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || !strings.HasPrefix(lower, t) {
			continue
		}
		after := s[len(t):]
		if after != "" && isWordChar(after[0]) {
			continue
		}
		return t, strings.TrimSpace(strings.TrimLeft(after, " ,.!?:"))
	}
	return "", strings.TrimSpace(s)
}

func isWordChar(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

var separators = func() []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, w := range []string{"and", "but", "also", "then", "after", "before", "plus"} {
		out = append(out, regexp.MustCompile(`(?i)\s*\b`+w+`\b\s*`))
	}
	out = append(out, regexp.MustCompile(`\s*,\s*`), regexp.MustCompile(`\s*;\s*`))
	return out
}()

// Split breaks an utterance into sentences. Each separator is applied to the
// output of the previous one; fragments are trimmed and empties dropped.
func Split(utterance string) []string {
	parts := []string{utterance}
	for _, sep := range separators {
		var next []string
		for _, p := range parts {
			next = append(next, sep.Split(p, -1)...)
		}
		parts = next
	}

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var eventKeywords = []string{
	"meeting", "appointment", "at ", "on ", "hearing", "interview", "lunch", "dinner",
	"breakfast", "party", "class", "session", "flight", "concert", "game", "date with",
}

var taskKeywords = []string{
	"buy", "remember", "grocery", "groceries", "call", "email", "text", "pick up", "get ",
	"clean", "finish", "pay", "send", "order", "return", "wash", "fix", "need to", "todo", "to do",
}

var timeToken = regexp.MustCompile(`(?i)\b(\d{1,2}(:\d{2})?\s*[ap]\.?m\b|\d{1,2}:\d{2}|noon|midnight|today|tonight|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|in\s+\d+\s+(minutes?|hours?|days?|weeks?))`)

// Score counts keyword hits for each kind. An explicit time token adds two
// points to the event side.
func Score(sentence string) (event, task int) {
	lower := strings.ToLower(sentence)
	for _, k := range eventKeywords {
		if strings.Contains(lower, k) {
			event++
		}
	}
	for _, k := range taskKeywords {
		if strings.Contains(lower, k) {
			task++
		}
	}
	if timeToken.MatchString(lower) {
		event += 2
	}
	return event, task
}

// Classify decides whether a sentence is a task or an event. Ties defer to
// the date parser: confidence above 0.7 makes it an event.
func Classify(sentence string, now time.Time) (Kind, nlp.Result) {
	parsed := nlp.Parse(sentence, now)
	event, task := Score(sentence)
	switch {
	case event > task:
		return KindEvent, parsed
	case task > event:
		return KindTask, parsed
	case parsed.Confidence > 0.7:
		return KindEvent, parsed
	default:
		return KindTask, parsed
	}
}

// Parse splits and classifies an utterance whose trigger phrase has already
// been stripped.
func Parse(utterance string, now time.Time) (Command, error) {
	cmd := Command{Raw: utterance}
	for _, sentence := range Split(utterance) {
		kind, parsed := Classify(sentence, now)
		if kind == KindEvent {
			cmd.Events = append(cmd.Events, EventCandidate{
				Title:        parsed.Title,
				Date:         parsed.Date,
				Confidence:   parsed.Confidence,
				DateInferred: parsed.Matched,
				Sentence:     sentence,
			})
			continue
		}
		if title := nlp.StripFiller(sentence); title != "" {
			cmd.Tasks = append(cmd.Tasks, title)
		}
	}

	switch {
	case len(cmd.Tasks) == 0 && len(cmd.Events) == 0:
		return cmd, ErrEmptyCommand
	case len(cmd.Events) == 0:
		cmd.Type = KindTask
	case len(cmd.Tasks) == 0:
		cmd.Type = KindEvent
	default:
		cmd.Type = KindMixed
	}
	return cmd, nil
}
