package store

import (
	"fmt"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

// CapturedEvent is an event stored together with its first reminder.
type CapturedEvent struct {
	Params    EventParams
	LeadValue int
	LeadUnit  model.LeadUnit
	Channels  model.Channels
}

// SaveCapture stores the events, their reminders and the tasks of one
// capture in a single transaction. On error nothing is stored.
func (s *EventStore) SaveCapture(userID int64, events []CapturedEvent, tasks []string, source string) ([]model.Event, []model.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	eventIDs := make([]int64, 0, len(events))
	for _, ce := range events {
		p := ce.Params
		p.Source = source
		p = withDefaults(p)
		id, err := insertEvent(tx, userID, p, now)
		if err != nil {
			return nil, nil, err
		}
		if _, err := insertReminder(tx, id, userID, p.StartTime, ce.LeadValue, ce.LeadUnit, ce.Channels); err != nil {
			return nil, nil, err
		}
		eventIDs = append(eventIDs, id)
	}
	taskIDs := make([]int64, 0, len(tasks))
	for _, title := range tasks {
		id, err := insertTask(tx, userID, title, source)
		if err != nil {
			return nil, nil, err
		}
		taskIDs = append(taskIDs, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit capture: %w", err)
	}

	savedEvents := make([]model.Event, 0, len(eventIDs))
	for _, id := range eventIDs {
		e, err := s.GetByID(userID, id)
		if err != nil {
			return nil, nil, err
		}
		savedEvents = append(savedEvents, *e)
	}
	savedTasks := make([]model.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, err := scanTask(s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id))
		if err != nil {
			return nil, nil, fmt.Errorf("get task: %w", err)
		}
		savedTasks = append(savedTasks, *t)
	}
	return savedEvents, savedTasks, nil
}
