package store

import (
	"testing"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

func setupEventTestDB(t *testing.T) (*EventStore, *ReminderStore, *model.User) {
	t.Helper()
	db := openTestDB(t)
	return NewEventStore(db), NewReminderStore(db), createTestUser(t, db, "test@example.com")
}

func TestEventCreateAndGetByID(t *testing.T) {
	es, _, u := setupEventTestDB(t)

	start := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	event, err := es.Create(u.ID, EventParams{
		Title:     "Court hearing",
		Category:  model.CategoryCourt,
		Priority:  model.PriorityUrgent,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Location:  "County courthouse",
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if event.Title != "Court hearing" {
		t.Errorf("title = %q, want %q", event.Title, "Court hearing")
	}
	if event.Category != model.CategoryCourt {
		t.Errorf("category = %q, want %q", event.Category, model.CategoryCourt)
	}
	if event.Status != model.EventStatusActive {
		t.Errorf("status = %q, want %q", event.Status, model.EventStatusActive)
	}
	if event.Source != model.SourceManual {
		t.Errorf("source = %q, want %q", event.Source, model.SourceManual)
	}
	if !event.StartTime.Equal(start) {
		t.Errorf("start = %v, want %v", event.StartTime, start)
	}

	got, err := es.GetByID(u.ID, event.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil || got.Location != "County courthouse" {
		t.Errorf("got = %+v, want location %q", got, "County courthouse")
	}
}

func TestEventDefaults(t *testing.T) {
	es, _, u := setupEventTestDB(t)

	start := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	event, err := es.Create(u.ID, EventParams{Title: "x", StartTime: start, EndTime: start})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if event.Category != model.CategoryOther {
		t.Errorf("category = %q, want %q", event.Category, model.CategoryOther)
	}
	if event.Priority != model.PriorityMedium {
		t.Errorf("priority = %q, want %q", event.Priority, model.PriorityMedium)
	}
}

func TestEventScopedToUser(t *testing.T) {
	es, _, u := setupEventTestDB(t)
	other := createTestUser(t, es.db, "other@example.com")

	start := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	event, err := es.Create(u.ID, EventParams{Title: "mine", StartTime: start, EndTime: start})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	got, err := es.GetByID(other.ID, event.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got != nil {
		t.Error("expected nil when reading another user's event")
	}
}

func TestEventListByDateRange(t *testing.T) {
	es, _, u := setupEventTestDB(t)

	day := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	mk := func(title string, start time.Time, recurrence string) {
		t.Helper()
		if _, err := es.Create(u.ID, EventParams{Title: title, StartTime: start, EndTime: start.Add(time.Hour), Recurrence: recurrence}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk("inside", day.Add(9*time.Hour), "")
	mk("before", day.Add(-5*time.Hour), "")
	mk("after", day.Add(30*time.Hour), "")
	mk("weekly", day.Add(-7*24*time.Hour), "FREQ=WEEKLY")

	events, err := es.ListByDateRange(u.ID, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list by range: %v", err)
	}
	if len(events) != 1 || events[0].Title != "inside" {
		t.Fatalf("events = %+v, want only %q", events, "inside")
	}

	recurring, err := es.ListRecurring(u.ID, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list recurring: %v", err)
	}
	if len(recurring) != 1 || recurring[0].Title != "weekly" {
		t.Errorf("recurring = %+v, want only %q", recurring, "weekly")
	}
}

func TestEventUpdate(t *testing.T) {
	es, _, u := setupEventTestDB(t)

	start := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	event, err := es.Create(u.ID, EventParams{Title: "Draft", StartTime: start, EndTime: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	updated, err := es.Update(u.ID, event.ID, EventParams{
		Title:     "Final",
		Priority:  model.PriorityHigh,
		StartTime: start.Add(time.Hour),
		EndTime:   start.Add(2 * time.Hour),
		Status:    model.EventStatusCompleted,
	})
	if err != nil {
		t.Fatalf("update event: %v", err)
	}
	if updated.Title != "Final" {
		t.Errorf("title = %q, want %q", updated.Title, "Final")
	}
	if updated.Status != model.EventStatusCompleted {
		t.Errorf("status = %q, want %q", updated.Status, model.EventStatusCompleted)
	}
	if updated.UpdatedAt.Before(event.UpdatedAt) {
		t.Error("updated_at should not move backwards")
	}
}

func TestEventSoftDelete(t *testing.T) {
	es, rs, u := setupEventTestDB(t)

	start := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	event, err := es.Create(u.ID, EventParams{Title: "Dentist", StartTime: start, EndTime: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	sent, err := rs.Create(event, 1, model.LeadDays, model.Channels{model.ChannelPush})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if err := rs.MarkSent(sent.ID, start.Add(-24*time.Hour)); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if _, err := rs.Create(event, 15, model.LeadMinutes, model.Channels{model.ChannelPush}); err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	before := time.Now().UTC().Add(-time.Second)
	if err := es.Delete(u.ID, event.ID); err != nil {
		t.Fatalf("delete event: %v", err)
	}

	got, err := es.GetByID(u.ID, event.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got == nil || got.Status != model.EventStatusDeleted {
		t.Fatalf("got = %+v, want tombstone", got)
	}

	list, err := es.List(u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list = %d events, want 0", len(list))
	}

	changed, err := es.ListUpdatedSince(u.ID, before)
	if err != nil {
		t.Fatalf("list updated since: %v", err)
	}
	if len(changed) != 1 {
		t.Errorf("updated since = %d events, want 1 tombstone", len(changed))
	}

	reminders, err := rs.ListByEvent(u.ID, event.ID)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(reminders) != 1 || !reminders[0].Sent {
		t.Errorf("reminders = %+v, want only the sent one kept", reminders)
	}
}
