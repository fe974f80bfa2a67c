package voice

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var refNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func TestStripTrigger(t *testing.T) {
	tests := []struct {
		in, trigger, rest string
	}{
		{"Hey Wanda, call mom tomorrow", "hey wanda", "call mom tomorrow"},
		{"  ok wanda buy eggs", "ok wanda", "buy eggs"},
		{"...hey wanda: meeting at 3pm", "hey wanda", "meeting at 3pm"},
		{"hey wandawoman buy eggs", "", "hey wandawoman buy eggs"},
		{"buy eggs", "", "buy eggs"},
	}
	for _, tt := range tests {
		trigger, rest := StripTrigger(tt.in, DefaultTriggers)
		if trigger != tt.trigger || rest != tt.rest {
			t.Errorf("StripTrigger(%q) = %q, %q; want %q, %q", tt.in, trigger, rest, tt.trigger, tt.rest)
		}
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"call mom and buy eggs", []string{"call mom", "buy eggs"}},
		{"buy milk, eggs; bread", []string{"buy milk", "eggs", "bread"}},
		{"gym then lunch plus email Sam", []string{"gym", "lunch", "email Sam"}},
		{"pick up dry cleaning AND walk the dog", []string{"pick up dry cleaning", "walk the dog"}},
		{"brandon's sandwich", []string{"brandon's sandwich"}},
		{" and , ; ", nil},
	}
	for _, tt := range tests {
		got := Split(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("Split(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitFragmentsComeFromInput(t *testing.T) {
	inputs := []string{
		"call mom and buy eggs",
		"meeting at 3pm, then dentist tomorrow; also buy milk",
		"plus before after but also then and",
		"one sentence only",
	}
	for _, in := range inputs {
		total := 0
		for _, frag := range Split(in) {
			if !strings.Contains(in, frag) {
				t.Errorf("Split(%q) produced %q, not a substring of the input", in, frag)
			}
			if frag != strings.TrimSpace(frag) || frag == "" {
				t.Errorf("Split(%q) produced untrimmed or empty fragment %q", in, frag)
			}
			total += len(frag)
		}
		if total > len(in) {
			t.Errorf("Split(%q) fragments total %d bytes, longer than input %d", in, total, len(in))
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		sentence string
		want     Kind
	}{
		{"buy eggs", KindTask},
		{"call mom", KindTask},
		{"call mom tomorrow at 3pm", KindEvent},
		{"team meeting", KindEvent},
		{"dentist appointment on friday", KindEvent},
		{"haircut tomorrow at noon", KindEvent},
		{"water the plants", KindTask},
	}
	for _, tt := range tests {
		if got, _ := Classify(tt.sentence, refNow); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.sentence, got, tt.want)
		}
	}
}

func TestClassifyTieUsesConfidence(t *testing.T) {
	// One task keyword ("pay") against one event keyword ("on "), no time token.
	if got, _ := Classify("pay on time", refNow); got != KindTask {
		t.Errorf("Classify = %q, want task when the date parser finds nothing", got)
	}
	// Tied at zero; "next week" parses at 0.7 which is not above the threshold.
	if got, _ := Classify("holiday next week", refNow); got != KindTask {
		t.Errorf("Classify = %q, want task at confidence 0.7", got)
	}
}

func TestParseMixed(t *testing.T) {
	cmd, err := Parse("call mom tomorrow at 3pm and buy eggs", refNow)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Type != KindMixed {
		t.Errorf("type = %q, want %q", cmd.Type, KindMixed)
	}
	if len(cmd.Events) != 1 || cmd.Events[0].Title != "call mom" {
		t.Fatalf("events = %+v", cmd.Events)
	}
	if want := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC); !cmd.Events[0].Date.Equal(want) {
		t.Errorf("event date = %v, want %v", cmd.Events[0].Date, want)
	}
	if !cmd.Events[0].DateInferred {
		t.Error("expected DateInferred")
	}
	if len(cmd.Tasks) != 1 || cmd.Tasks[0] != "buy eggs" {
		t.Errorf("tasks = %q, want [buy eggs]", cmd.Tasks)
	}
}

func TestParseTypes(t *testing.T) {
	cmd, err := Parse("buy eggs and remember to call the bank", refNow)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Type != KindTask {
		t.Errorf("type = %q, want task", cmd.Type)
	}
	if len(cmd.Tasks) != 2 || cmd.Tasks[1] != "call the bank" {
		t.Errorf("tasks = %q", cmd.Tasks)
	}

	cmd, err = Parse("team meeting at 9am", refNow)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Type != KindEvent {
		t.Errorf("type = %q, want event", cmd.Type)
	}
}

func TestParseEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "and, then;"} {
		if _, err := Parse(in, refNow); !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("Parse(%q) err = %v, want ErrEmptyCommand", in, err)
		}
	}
}
