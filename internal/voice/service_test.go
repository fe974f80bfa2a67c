package voice

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/remind/internal/categorize"
	"github.com/dukerupert/remind/internal/database"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/realtime"
	"github.com/dukerupert/remind/internal/store"
)

type recorder struct {
	mu   sync.Mutex
	msgs []realtime.Message
}

func (r *recorder) Publish(_ int64, msg realtime.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

type serviceFixture struct {
	svc       *Service
	user      *model.User
	events    *store.EventStore
	reminders *store.ReminderStore
	tasks     *store.TaskStore
	hub       *recorder
}

func setupService(t *testing.T) serviceFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	user, err := users.Create("voice@example.com", "Voice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	f := serviceFixture{
		user:      user,
		events:    store.NewEventStore(db),
		reminders: store.NewReminderStore(db),
		tasks:     store.NewTaskStore(db),
		hub:       &recorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(users, f.events, categorize.New(0), f.hub, nil, logger)
	f.svc.now = func() time.Time { return refNow }
	return f
}

func TestCaptureMixed(t *testing.T) {
	f := setupService(t)

	res, err := f.svc.Capture(context.Background(), f.user.ID, "Hey Wanda, team meeting tomorrow at 3pm and buy eggs")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if res.Command.Trigger != "hey wanda" {
		t.Errorf("trigger = %q, want %q", res.Command.Trigger, "hey wanda")
	}
	if res.Command.Type != KindMixed {
		t.Errorf("type = %q, want mixed", res.Command.Type)
	}
	if len(res.Events) != 1 || len(res.Tasks) != 1 {
		t.Fatalf("got %d events, %d tasks; want 1 and 1", len(res.Events), len(res.Tasks))
	}

	ev := res.Events[0]
	if ev.Title != "team meeting" {
		t.Errorf("event title = %q, want %q", ev.Title, "team meeting")
	}
	if ev.Category != model.CategoryWork {
		t.Errorf("category = %q, want %q", ev.Category, model.CategoryWork)
	}
	if ev.Source != model.SourceVoice {
		t.Errorf("source = %q, want voice", ev.Source)
	}
	wantStart := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
	if !ev.StartTime.Equal(wantStart) {
		t.Errorf("start = %v, want %v", ev.StartTime, wantStart)
	}
	if got := ev.EndTime.Sub(ev.StartTime); got != DefaultEventDuration {
		t.Errorf("duration = %v, want %v", got, DefaultEventDuration)
	}

	rems, err := f.reminders.ListByEvent(f.user.ID, ev.ID)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(rems) != 1 {
		t.Fatalf("got %d reminders, want 1", len(rems))
	}
	if want := wantStart.Add(-15 * time.Minute); !rems[0].FireAt.Equal(want) {
		t.Errorf("fire_at = %v, want %v", rems[0].FireAt, want)
	}

	tasks, err := f.tasks.List(f.user.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "buy eggs" || tasks[0].Source != model.SourceVoice {
		t.Errorf("tasks = %+v", tasks)
	}

	if len(f.hub.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(f.hub.msgs))
	}
	if f.hub.msgs[0].Type != "event_created" || f.hub.msgs[1].Type != "task_created" {
		t.Errorf("message types = %q, %q", f.hub.msgs[0].Type, f.hub.msgs[1].Type)
	}
}

func TestCaptureUsesUserTimezone(t *testing.T) {
	f := setupService(t)
	users := f.svc.users
	if _, err := users.UpdateSettings(f.user.ID, model.UserSettings{
		Name:             f.user.Name,
		Timezone:         "America/Denver",
		DefaultLeadValue: 1,
		DefaultLeadUnit:  model.LeadHours,
		DefaultChannels:  model.Channels{model.ChannelEmail},
	}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	res, err := f.svc.Capture(context.Background(), f.user.ID, "dentist appointment tomorrow at 9am")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	denver, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	want := time.Date(2026, 3, 5, 9, 0, 0, 0, denver)
	if !res.Events[0].StartTime.Equal(want) {
		t.Errorf("start = %v, want %v", res.Events[0].StartTime, want)
	}

	rems, err := f.reminders.ListByEvent(f.user.ID, res.Events[0].ID)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(rems) != 1 || !rems[0].Channels.Has(model.ChannelEmail) {
		t.Fatalf("reminders = %+v", rems)
	}
	if want := want.Add(-time.Hour); !rems[0].FireAt.Equal(want) {
		t.Errorf("fire_at = %v, want %v", rems[0].FireAt, want)
	}
}

func TestCaptureEmpty(t *testing.T) {
	f := setupService(t)
	if _, err := f.svc.Capture(context.Background(), f.user.ID, "hey wanda"); err != ErrEmptyCommand {
		t.Errorf("err = %v, want ErrEmptyCommand", err)
	}
}

func TestCaptureUnknownUser(t *testing.T) {
	f := setupService(t)
	if _, err := f.svc.Capture(context.Background(), 9999, "buy eggs"); err == nil {
		t.Error("expected error for unknown user")
	}
}
