package store

import (
	"testing"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

func TestSaveCapture(t *testing.T) {
	db := openTestDB(t)
	es, rs, ts := NewEventStore(db), NewReminderStore(db), NewTaskStore(db)
	u := createTestUser(t, db, "capture@example.com")

	start := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
	events, tasks, err := es.SaveCapture(u.ID, []CapturedEvent{{
		Params:    EventParams{Title: "Team meeting", StartTime: start, EndTime: start.Add(time.Hour)},
		LeadValue: 15,
		LeadUnit:  model.LeadMinutes,
		Channels:  model.Channels{model.ChannelEmail},
	}}, []string{"buy eggs"}, model.SourceVoice)
	if err != nil {
		t.Fatalf("save capture: %v", err)
	}
	if len(events) != 1 || events[0].Source != model.SourceVoice || events[0].Category != model.CategoryOther {
		t.Fatalf("events = %+v", events)
	}
	if len(tasks) != 1 || tasks[0].Title != "buy eggs" || tasks[0].Source != model.SourceVoice {
		t.Fatalf("tasks = %+v", tasks)
	}
	rems, err := rs.ListByEvent(u.ID, events[0].ID)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(rems) != 1 || !rems[0].FireAt.Equal(start.Add(-15*time.Minute)) {
		t.Errorf("reminders = %+v", rems)
	}
	if list, _ := ts.List(u.ID); len(list) != 1 {
		t.Errorf("stored tasks = %d, want 1", len(list))
	}
}

func TestSaveCaptureRollsBack(t *testing.T) {
	db := openTestDB(t)
	es, ts := NewEventStore(db), NewTaskStore(db)
	u := createTestUser(t, db, "rollback@example.com")

	if _, err := db.Exec(`CREATE TRIGGER reject_tasks BEFORE INSERT ON tasks BEGIN SELECT RAISE(ABORT, 'no tasks'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	start := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
	_, _, err := es.SaveCapture(u.ID, []CapturedEvent{{
		Params:    EventParams{Title: "Team meeting", StartTime: start, EndTime: start.Add(time.Hour)},
		LeadValue: 15,
		LeadUnit:  model.LeadMinutes,
		Channels:  model.Channels{model.ChannelPush},
	}}, []string{"buy eggs"}, model.SourceVoice)
	if err == nil {
		t.Fatal("expected error from rejected task insert")
	}

	events, err := es.List(u.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events after failed capture = %d, want 0", len(events))
	}
	var reminders int
	if err := db.QueryRow(`SELECT COUNT(*) FROM reminders`).Scan(&reminders); err != nil {
		t.Fatalf("count reminders: %v", err)
	}
	if reminders != 0 {
		t.Errorf("reminders after failed capture = %d, want 0", reminders)
	}
	if list, _ := ts.List(u.ID); len(list) != 0 {
		t.Errorf("tasks after failed capture = %d, want 0", len(list))
	}
}
