package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/remind/internal/database"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/notify/email"
	"github.com/dukerupert/remind/internal/realtime"
	"github.com/dukerupert/remind/internal/store"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeChannel struct {
	name       string
	configured bool
	err        error
	mu         sync.Mutex
	sent       []Message
}

func (f *fakeChannel) Name() string     { return f.name }
func (f *fakeChannel) Configured() bool { return f.configured }
func (f *fakeChannel) Send(_ context.Context, _ *model.User, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

type memLog struct {
	rows []model.NotificationLog
}

func (m *memLog) Record(userID int64, reminderID *int64, channel, status, errMsg string) error {
	m.rows = append(m.rows, model.NotificationLog{UserID: userID, ReminderID: reminderID, Channel: channel, Status: status, Error: errMsg})
	return nil
}

func TestDispatch(t *testing.T) {
	pushCh := &fakeChannel{name: model.ChannelPush, configured: true}
	emailCh := &fakeChannel{name: model.ChannelEmail, configured: true, err: errors.New("bounced")}
	smsCh := &fakeChannel{name: model.ChannelSMS, configured: false}
	log := &memLog{}
	d := NewDispatcher(log, discard(), pushCh, emailCh, smsCh)

	user := &model.User{ID: 7, Email: "a@example.com"}
	rid := int64(3)
	out := d.Dispatch(context.Background(), user, &rid, model.Channels{"push", "email", "sms", "pigeon"}, Message{Title: "x"})
	if out.Delivered != 1 || !out.Retryable {
		t.Errorf("outcome = %+v, want 1 delivered and retryable", out)
	}
	if len(log.rows) != 2 {
		t.Fatalf("logged %d rows, want 2 (unconfigured and unknown are not attempts)", len(log.rows))
	}
	if log.rows[0].Status != model.DeliverySent || log.rows[1].Status != model.DeliveryFailed || log.rows[1].Error != "bounced" {
		t.Errorf("log rows = %+v", log.rows)
	}
	if *log.rows[0].ReminderID != 3 {
		t.Errorf("reminder id = %d, want 3", *log.rows[0].ReminderID)
	}

	if err := d.Send(context.Background(), user, nil, "sms", Message{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("sms err = %v, want ErrNotConfigured", err)
	}
	if err := d.Send(context.Background(), user, nil, "pigeon", Message{}); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("pigeon err = %v, want ErrUnknownChannel", err)
	}
	if !d.Configured("push") || d.Configured("sms") || d.Configured("pigeon") {
		t.Error("Configured reports wrong channels")
	}
}

func TestEmailChannel(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		w.Write([]byte(`{"MessageID": "m"}`))
	}))
	defer srv.Close()

	ch := NewEmailChannel(email.NewClient("tok", "from@example.com", email.WithBaseURL(srv.URL)))
	if err := ch.Send(context.Background(), &model.User{Email: "u@example.com"}, Message{Title: "t", Body: "b", Tag: "reminder-4"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotToken != "tok" {
		t.Errorf("token header = %q", gotToken)
	}
	if err := ch.Send(context.Background(), &model.User{}, Message{}); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("err = %v, want ErrNoRecipient", err)
	}
}

func TestTagPrefix(t *testing.T) {
	for in, want := range map[string]string{"reminder-12": "reminder", "direct": "direct", "": ""} {
		if got := tagPrefix(in); got != want {
			t.Errorf("tagPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

type hubRecorder struct {
	msgs []realtime.Message
}

func (h *hubRecorder) Publish(_ int64, msg realtime.Message) { h.msgs = append(h.msgs, msg) }

func TestSchedulerTick(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	user, err := store.NewUserStore(db).Create("sched@example.com", "Sched", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	events := store.NewEventStore(db)
	reminders := store.NewReminderStore(db)
	logs := store.NewNotificationLogStore(db)

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	dueEvent, err := events.Create(user.ID, store.EventParams{Title: "Hearing", StartTime: now.Add(10 * time.Minute), EndTime: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	laterEvent, err := events.Create(user.ID, store.EventParams{Title: "Later", StartTime: now.Add(5 * time.Hour), EndTime: now.Add(6 * time.Hour)})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	due, err := reminders.Create(dueEvent, 15, model.LeadMinutes, model.Channels{model.ChannelPush, model.ChannelEmail})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if _, err := reminders.Create(laterEvent, 15, model.LeadMinutes, model.Channels{model.ChannelPush}); err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	failing, err := reminders.Create(dueEvent, 30, model.LeadMinutes, model.Channels{model.ChannelEmail})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	pushCh := &fakeChannel{name: model.ChannelPush, configured: true}
	emailCh := &fakeChannel{name: model.ChannelEmail, configured: true, err: errors.New("smtp down")}
	hub := &hubRecorder{}
	s := NewScheduler(reminders, NewDispatcher(logs, discard(), pushCh, emailCh), hub, 0, discard())
	s.now = func() time.Time { return now }

	if n := s.Tick(context.Background()); n != 1 {
		t.Fatalf("sent = %d, want 1", n)
	}

	got, err := reminders.GetByID(user.ID, due.ID)
	if err != nil {
		t.Fatalf("get reminder: %v", err)
	}
	if !got.Sent || got.SentAt == nil {
		t.Error("reminder delivered by push should be marked sent")
	}
	stillDue, err := reminders.GetByID(user.ID, failing.ID)
	if err != nil {
		t.Fatalf("get reminder: %v", err)
	}
	if stillDue.Sent {
		t.Error("reminder that failed everywhere should stay unsent")
	}

	if len(pushCh.sent) != 1 || pushCh.sent[0].Title != "Hearing" {
		t.Errorf("push messages = %+v", pushCh.sent)
	}
	if len(hub.msgs) != 1 || hub.msgs[0].Type != "reminder_sent" {
		t.Errorf("hub messages = %+v", hub.msgs)
	}

	history, err := logs.ListByUser(user.ID, 10)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("log rows = %d, want 3", len(history))
	}

	if stillDue.Attempts != 1 || stillDue.Failed {
		t.Errorf("attempts/failed = %d/%v, want 1/false", stillDue.Attempts, stillDue.Failed)
	}

	// Held back until the backoff has passed, then retried.
	emailCh.err = nil
	if n := s.Tick(context.Background()); n != 0 {
		t.Errorf("tick inside backoff sent = %d, want 0", n)
	}
	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	if n := s.Tick(context.Background()); n != 1 {
		t.Errorf("tick after backoff sent = %d, want 1", n)
	}
}

func TestSchedulerUndeliverableDoesNotStarve(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	users := store.NewUserStore(db)
	events := store.NewEventStore(db)
	reminders := store.NewReminderStore(db)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	pushOnly, err := users.Create("nopush@example.com", "No Push", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	early, err := events.Create(pushOnly.ID, store.EventParams{Title: "Early", StartTime: now.Add(-time.Hour), EndTime: now})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	var stuck []int64
	for range dueBatchSize {
		r, err := reminders.Create(early, 15, model.LeadMinutes, model.Channels{model.ChannelPush})
		if err != nil {
			t.Fatalf("create reminder: %v", err)
		}
		stuck = append(stuck, r.ID)
	}

	other, err := users.Create("mail@example.com", "Mail", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	later, err := events.Create(other.ID, store.EventParams{Title: "Later", StartTime: now.Add(10 * time.Minute), EndTime: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, err := reminders.Create(later, 15, model.LeadMinutes, model.Channels{model.ChannelEmail}); err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	pushCh := &fakeChannel{name: model.ChannelPush, configured: true, err: ErrNoRecipient}
	emailCh := &fakeChannel{name: model.ChannelEmail, configured: true}
	s := NewScheduler(reminders, NewDispatcher(store.NewNotificationLogStore(db), discard(), pushCh, emailCh), &hubRecorder{}, 0, discard())
	s.now = func() time.Time { return now }

	for range 3 {
		s.Tick(context.Background())
	}
	if len(emailCh.sent) != 1 {
		t.Errorf("email sends = %d, want 1", len(emailCh.sent))
	}
	if len(pushCh.sent) != dueBatchSize {
		t.Errorf("push attempts = %d, want one per reminder (%d)", len(pushCh.sent), dueBatchSize)
	}
	r, err := reminders.GetByID(pushOnly.ID, stuck[0])
	if err != nil {
		t.Fatalf("get reminder: %v", err)
	}
	if !r.Failed || r.Sent {
		t.Errorf("failed/sent = %v/%v, want failed and unsent", r.Failed, r.Sent)
	}
}

func TestSchedulerGivesUpAfterMaxAttempts(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	user, err := store.NewUserStore(db).Create("retry@example.com", "Retry", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	reminders := store.NewReminderStore(db)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	ev, err := store.NewEventStore(db).Create(user.ID, store.EventParams{Title: "Flaky", StartTime: now, EndTime: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	rem, err := reminders.Create(ev, 15, model.LeadMinutes, model.Channels{model.ChannelEmail})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	emailCh := &fakeChannel{name: model.ChannelEmail, configured: true, err: errors.New("503 from provider")}
	s := NewScheduler(reminders, NewDispatcher(store.NewNotificationLogStore(db), discard(), emailCh), &hubRecorder{}, 0, discard())
	clock := now
	s.now = func() time.Time { return clock }

	for range MaxAttempts + 2 {
		s.Tick(context.Background())
		clock = clock.Add(maxBackoff)
	}
	if len(emailCh.sent) != MaxAttempts {
		t.Errorf("attempts = %d, want %d", len(emailCh.sent), MaxAttempts)
	}
	got, err := reminders.GetByID(user.ID, rem.ID)
	if err != nil {
		t.Fatalf("get reminder: %v", err)
	}
	if !got.Failed || got.Attempts != MaxAttempts {
		t.Errorf("failed/attempts = %v/%d, want true/%d", got.Failed, got.Attempts, MaxAttempts)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{10, time.Hour},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempts); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestReminderMessage(t *testing.T) {
	d := model.DueReminder{
		Reminder: model.Reminder{ID: 5},
		Event: model.Event{
			ID:        9,
			Title:     "Dentist",
			Location:  "Main St",
			StartTime: time.Date(2026, 3, 4, 17, 30, 0, 0, time.UTC),
		},
	}
	msg := ReminderMessage(d)
	if msg.Body != "Starts Wed Mar 4 at 5:30 PM at Main St" {
		t.Errorf("body = %q", msg.Body)
	}
	if msg.URL != "/events/9" || msg.Tag != "reminder-5" {
		t.Errorf("url/tag = %q/%q", msg.URL, msg.Tag)
	}
}
