package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/realtime"
)

const (
	dueBatchSize = 100
	// MaxAttempts is how many undelivered passes a reminder gets before it
	// is marked failed.
	MaxAttempts  = 5
	retryBackoff = time.Minute
	maxBackoff   = time.Hour
)

// DueReminders is the reminder storage the scheduler polls.
type DueReminders interface {
	ListDue(now time.Time, limit int) ([]model.DueReminder, error)
	MarkSent(id int64, at time.Time) error
	MarkAttempt(id int64, next time.Time) error
	MarkFailed(id int64) error
}

// Scheduler periodically sends reminders whose fire time has passed. A
// reminder that fails on every channel is retried with exponential backoff
// up to MaxAttempts. One that can never be delivered (no recipient, channel
// not configured) is marked failed straight away.
type Scheduler struct {
	mu         sync.RWMutex
	reminders  DueReminders
	dispatcher *Dispatcher
	hub        realtime.Broadcaster
	logger     *slog.Logger
	interval   time.Duration
	now        func() time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewScheduler(reminders DueReminders, dispatcher *Dispatcher, hub realtime.Broadcaster, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		reminders:  reminders,
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger,
		interval:   interval,
		now:        time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick sends every due reminder once and returns how many were marked sent.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()
	due, err := s.reminders.ListDue(now, dueBatchSize)
	if err != nil {
		s.logger.Error("list due reminders", "error", err)
		return 0
	}

	sent := 0
	for _, d := range due {
		if ctx.Err() != nil {
			break
		}
		id := d.Reminder.ID
		out := s.dispatcher.Dispatch(ctx, &d.User, &id, d.Reminder.Channels, ReminderMessage(d))
		if out.Delivered == 0 {
			s.retryLater(d.Reminder, out, now)
			continue
		}
		if err := s.reminders.MarkSent(id, now); err != nil {
			s.logger.Error("mark reminder sent", "reminder_id", id, "error", err)
			continue
		}
		sent++
		s.hub.Publish(d.User.ID, realtime.NewMessage("reminder", "sent", id, map[string]any{"event_id": d.Event.ID}))
	}
	if sent > 0 {
		s.logger.Info("reminders sent", "count", sent, "due", len(due))
	}
	return sent
}

func (s *Scheduler) retryLater(r model.Reminder, out Outcome, now time.Time) {
	attempts := r.Attempts + 1
	if out.Permanent() || attempts >= MaxAttempts {
		s.logger.Warn("reminder failed", "reminder_id", r.ID, "channels", r.Channels.String(), "attempts", attempts, "permanent", out.Permanent())
		if err := s.reminders.MarkFailed(r.ID); err != nil {
			s.logger.Error("mark reminder failed", "reminder_id", r.ID, "error", err)
		}
		return
	}
	next := now.Add(backoff(attempts))
	s.logger.Warn("reminder not delivered on any channel", "reminder_id", r.ID, "channels", r.Channels.String(), "attempts", attempts, "next_attempt", next)
	if err := s.reminders.MarkAttempt(r.ID, next); err != nil {
		s.logger.Error("mark reminder attempt", "reminder_id", r.ID, "error", err)
	}
}

// backoff doubles from retryBackoff per attempt, capped at maxBackoff.
func backoff(attempts int) time.Duration {
	d := retryBackoff
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// ReminderMessage renders a reminder in the user's time zone.
func ReminderMessage(d model.DueReminder) Message {
	start := d.Event.StartTime.In(d.User.Location())
	body := "Starts " + start.Format("Mon Jan 2 at 3:04 PM")
	if d.Event.AllDay {
		body = "All day " + start.Format("Mon Jan 2")
	}
	if d.Event.Location != "" {
		body += " at " + d.Event.Location
	}
	return Message{
		Title: d.Event.Title,
		Body:  body,
		URL:   fmt.Sprintf("/events/%d", d.Event.ID),
		Tag:   fmt.Sprintf("reminder-%d", d.Reminder.ID),
	}
}
