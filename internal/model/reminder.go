package model

import (
	"slices"
	"strings"
	"time"
)

type LeadUnit string

const (
	LeadMinutes LeadUnit = "minutes"
	LeadHours   LeadUnit = "hours"
	LeadDays    LeadUnit = "days"
)

// Duration converts a lead-time value in this unit to a time.Duration.
func (u LeadUnit) Duration(value int) time.Duration {
	switch u {
	case LeadHours:
		return time.Duration(value) * time.Hour
	case LeadDays:
		return time.Duration(value) * 24 * time.Hour
	default:
		return time.Duration(value) * time.Minute
	}
}

const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Channels is a set of notification channel names, stored comma-separated.
type Channels []string

// ParseChannels splits a stored channel list, dropping blanks and duplicates.
func ParseChannels(s string) Channels {
	var out Channels
	for _, c := range strings.Split(s, ",") {
		c = strings.TrimSpace(c)
		if c == "" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (c Channels) String() string {
	return strings.Join(c, ",")
}

func (c Channels) Has(name string) bool {
	return slices.Contains(c, name)
}

type Reminder struct {
	ID        int64      `json:"id"`
	EventID   int64      `json:"event_id"`
	UserID    int64      `json:"user_id"`
	FireAt    time.Time  `json:"fire_at"`
	LeadValue int        `json:"lead_value"`
	LeadUnit  LeadUnit   `json:"lead_unit"`
	Channels  Channels   `json:"channels"`
	Sent      bool       `json:"sent"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	// Attempts counts scheduler passes that delivered on no channel.
	Attempts int `json:"attempts"`
	// Failed reminders are no longer retried.
	Failed    bool      `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

// DueReminder joins a reminder with the event and user it notifies.
type DueReminder struct {
	Reminder Reminder
	Event    Event
	User     User
}
