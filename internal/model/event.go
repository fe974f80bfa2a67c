package model

import "time"

type Category string

const (
	CategoryCourt    Category = "Court"
	CategoryWork     Category = "Work"
	CategoryFamily   Category = "Family"
	CategoryPersonal Category = "Personal"
	CategoryRecovery Category = "Recovery"
	CategoryOther    Category = "Other"
)

// Categories lists every category in classifier priority order.
var Categories = []Category{
	CategoryCourt,
	CategoryWork,
	CategoryFamily,
	CategoryPersonal,
	CategoryRecovery,
	CategoryOther,
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCompleted EventStatus = "completed"
	EventStatusDeleted   EventStatus = "deleted"
)

const (
	SourceManual = "manual"
	SourceVoice  = "voice"
	SourceSync   = "sync"
)

type Event struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    Category    `json:"category"`
	Priority    Priority    `json:"priority"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	AllDay      bool        `json:"all_day"`
	Location    string      `json:"location"`
	Recurrence  string      `json:"recurrence"`
	Status      EventStatus `json:"status"`
	Source      string      `json:"source"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// EventOccurrence is a single expanded instance of a (possibly recurring) event.
type EventOccurrence struct {
	EventID   int64     `json:"event_id"`
	Title     string    `json:"title"`
	Category  Category  `json:"category"`
	Priority  Priority  `json:"priority"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	AllDay    bool      `json:"all_day"`
	Recurring bool      `json:"recurring"`
}
