package store

import (
	"testing"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

func TestNotificationLogRecord(t *testing.T) {
	es, rs, u := setupEventTestDB(t)
	ls := NewNotificationLogStore(es.db)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	event, _ := es.Create(u.ID, EventParams{Title: "x", StartTime: start, EndTime: start})
	r, err := rs.Create(event, 5, model.LeadMinutes, model.Channels{model.ChannelPush})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	if err := ls.Record(u.ID, &r.ID, model.ChannelPush, model.DeliverySent, ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ls.Record(u.ID, nil, model.ChannelSMS, model.DeliveryFailed, "twilio: 400"); err != nil {
		t.Fatalf("record: %v", err)
	}

	logs, err := ls.ListByUser(u.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("len = %d, want 2", len(logs))
	}
	if logs[0].Channel != model.ChannelSMS || logs[0].ReminderID != nil || logs[0].Error != "twilio: 400" {
		t.Errorf("logs[0] = %+v", logs[0])
	}
	if logs[1].ReminderID == nil || *logs[1].ReminderID != r.ID {
		t.Errorf("logs[1].ReminderID = %v, want %d", logs[1].ReminderID, r.ID)
	}
}
