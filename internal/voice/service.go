package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/remind/internal/categorize"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/realtime"
	"github.com/dukerupert/remind/internal/store"
)

// DefaultEventDuration is applied to events captured by voice.
const DefaultEventDuration = time.Hour

// Service turns transcripts into stored tasks and events for a user.
type Service struct {
	users       *store.UserStore
	events      *store.EventStore
	categorizer *categorize.Categorizer
	hub         realtime.Broadcaster
	triggers    []string
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(
	users *store.UserStore,
	events *store.EventStore,
	categorizer *categorize.Categorizer,
	hub realtime.Broadcaster,
	triggers []string,
	logger *slog.Logger,
) *Service {
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}
	return &Service{
		users:       users,
		events:      events,
		categorizer: categorizer,
		hub:         hub,
		triggers:    triggers,
		logger:      logger,
		now:         time.Now,
	}
}

type CaptureResult struct {
	Command Command       `json:"command"`
	Events  []model.Event `json:"events"`
	Tasks   []model.Task  `json:"tasks"`
}

// Interpret parses a transcript for the user without storing anything.
// Times are read in the user's time zone.
func (s *Service) Interpret(user *model.User, transcript string) (Command, error) {
	trigger, rest := StripTrigger(transcript, s.triggers)
	cmd, err := Parse(rest, s.now().In(user.Location()))
	cmd.Trigger = trigger
	return cmd, err
}

// Capture parses a transcript and stores the resulting events, their
// default reminders, and tasks in one transaction.
func (s *Service) Capture(ctx context.Context, userID int64, transcript string) (*CaptureResult, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d not found", userID)
	}

	cmd, err := s.Interpret(user, transcript)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch := make([]store.CapturedEvent, 0, len(cmd.Events))
	for _, ev := range cmd.Events {
		if !ev.DateInferred {
			s.logger.Warn("no date found in voice event, scheduling now", "user_id", userID, "sentence", ev.Sentence)
		}
		cat := s.categorizer.Categorize(ev.Sentence)
		batch = append(batch, store.CapturedEvent{
			Params: store.EventParams{
				Title:     ev.Title,
				Category:  cat.Category,
				StartTime: ev.Date,
				EndTime:   ev.Date.Add(DefaultEventDuration),
			},
			LeadValue: user.DefaultLeadValue,
			LeadUnit:  user.DefaultLeadUnit,
			Channels:  user.DefaultChannels,
		})
	}

	events, tasks, err := s.events.SaveCapture(userID, batch, cmd.Tasks, model.SourceVoice)
	if err != nil {
		return nil, fmt.Errorf("save capture: %w", err)
	}
	res := &CaptureResult{Command: cmd, Events: events, Tasks: tasks}
	for _, e := range events {
		s.hub.Publish(userID, realtime.NewMessage("event", "created", e.ID, map[string]any{"source": model.SourceVoice}))
	}
	for _, t := range tasks {
		s.hub.Publish(userID, realtime.NewMessage("task", "created", t.ID, map[string]any{"source": model.SourceVoice}))
	}

	s.logger.Info("voice capture", "user_id", userID, "type", cmd.Type, "events", len(res.Events), "tasks", len(res.Tasks))
	return res, nil
}
