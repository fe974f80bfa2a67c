package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

// EventParams holds the writable fields of an event.
type EventParams struct {
	Title       string
	Description string
	Category    model.Category
	Priority    model.Priority
	StartTime   time.Time
	EndTime     time.Time
	AllDay      bool
	Location    string
	Recurrence  string
	Status      model.EventStatus
	Source      string
}

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var allDay int
	err := scanner.Scan(
		&e.ID, &e.UserID, &e.Title, &e.Description, &e.Category, &e.Priority,
		&e.StartTime, &e.EndTime, &allDay, &e.Location, &e.Recurrence, &e.Status, &e.Source,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.AllDay = allDay != 0
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

const eventCols = `id, user_id, title, description, category, priority, start_time, end_time,
	all_day, location, recurrence, status, source, created_at, updated_at`

func withDefaults(p EventParams) EventParams {
	if p.Category == "" {
		p.Category = model.CategoryOther
	}
	if p.Priority == "" {
		p.Priority = model.PriorityMedium
	}
	if p.Status == "" {
		p.Status = model.EventStatusActive
	}
	if p.Source == "" {
		p.Source = model.SourceManual
	}
	return p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *EventStore) Create(userID int64, p EventParams) (*model.Event, error) {
	id, err := insertEvent(s.db, userID, withDefaults(p), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.GetByID(userID, id)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertEvent(q execer, userID int64, p EventParams, now time.Time) (int64, error) {
	result, err := q.Exec(
		`INSERT INTO events (user_id, title, description, category, priority, start_time, end_time,
		 all_day, location, recurrence, status, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, p.Title, p.Description, p.Category, p.Priority, p.StartTime.UTC(), p.EndTime.UTC(),
		boolInt(p.AllDay), p.Location, p.Recurrence, p.Status, p.Source, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *EventStore) GetByID(userID, id int64) (*model.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM events WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// List returns the user's non-deleted events ordered by start time.
func (s *EventStore) List(userID int64) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM events WHERE user_id = ? AND status != ? ORDER BY start_time ASC`,
		userID, model.EventStatusDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListUpdatedSince returns every event touched after since, tombstones included.
func (s *EventStore) ListUpdatedSince(userID int64, since time.Time) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM events WHERE user_id = ? AND updated_at > ? ORDER BY updated_at ASC`,
		userID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list events updated since: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByDateRange returns non-recurring active events overlapping [start, end).
func (s *EventStore) ListByDateRange(userID int64, start, end time.Time) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM events
		 WHERE user_id = ? AND status != ? AND recurrence = '' AND start_time < ? AND end_time > ?
		 ORDER BY all_day DESC, start_time ASC`,
		userID, model.EventStatusDeleted, end.UTC(), start.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list events by range: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecurring returns non-deleted events that carry a recurrence rule
// and started before end.
func (s *EventStore) ListRecurring(userID int64, end time.Time) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM events
		 WHERE user_id = ? AND status != ? AND recurrence != '' AND start_time < ?
		 ORDER BY start_time ASC`,
		userID, model.EventStatusDeleted, end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list recurring events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *EventStore) Update(userID, id int64, p EventParams) (*model.Event, error) {
	p = withDefaults(p)
	_, err := s.db.Exec(
		`UPDATE events SET title = ?, description = ?, category = ?, priority = ?, start_time = ?,
		 end_time = ?, all_day = ?, location = ?, recurrence = ?, status = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		p.Title, p.Description, p.Category, p.Priority, p.StartTime.UTC(),
		p.EndTime.UTC(), boolInt(p.AllDay), p.Location, p.Recurrence, p.Status, time.Now().UTC(),
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.GetByID(userID, id)
}

// Delete soft-deletes the event and drops its unsent reminders.
func (s *EventStore) Delete(userID, id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE events SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		model.EventStatusDeleted, time.Now().UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("soft delete event: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM reminders WHERE event_id = ? AND sent = 0`, id); err != nil {
		return fmt.Errorf("delete unsent reminders: %w", err)
	}
	return tx.Commit()
}
