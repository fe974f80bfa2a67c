package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

func scanReminder(scanner interface{ Scan(...any) error }) (*model.Reminder, error) {
	var r model.Reminder
	var channels string
	var sent, failed int
	var sentAt sql.NullTime
	err := scanner.Scan(
		&r.ID, &r.EventID, &r.UserID, &r.FireAt, &r.LeadValue, &r.LeadUnit,
		&channels, &sent, &sentAt, &r.Attempts, &failed, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Channels = model.ParseChannels(channels)
	r.Sent = sent != 0
	r.Failed = failed != 0
	if sentAt.Valid {
		r.SentAt = &sentAt.Time
	}
	return &r, nil
}

const reminderCols = `id, event_id, user_id, fire_at, lead_value, lead_unit, channels, sent, sent_at, attempts, failed, created_at`

// Create schedules a reminder leadValue leadUnits before the event start.
func (s *ReminderStore) Create(event *model.Event, leadValue int, leadUnit model.LeadUnit, channels model.Channels) (*model.Reminder, error) {
	id, err := insertReminder(s.db, event.ID, event.UserID, event.StartTime, leadValue, leadUnit, channels)
	if err != nil {
		return nil, err
	}
	return s.GetByID(event.UserID, id)
}

func insertReminder(q execer, eventID, userID int64, start time.Time, leadValue int, leadUnit model.LeadUnit, channels model.Channels) (int64, error) {
	fireAt := start.Add(-leadUnit.Duration(leadValue)).UTC()
	result, err := q.Exec(
		`INSERT INTO reminders (event_id, user_id, fire_at, lead_value, lead_unit, channels)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		eventID, userID, fireAt, leadValue, leadUnit, channels.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert reminder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *ReminderStore) GetByID(userID, id int64) (*model.Reminder, error) {
	row := s.db.QueryRow(`SELECT `+reminderCols+` FROM reminders WHERE id = ? AND user_id = ?`, id, userID)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

func (s *ReminderStore) ListByEvent(userID, eventID int64) ([]model.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderCols+` FROM reminders WHERE event_id = ? AND user_id = ? ORDER BY fire_at ASC`,
		eventID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

// Reschedule recomputes fire_at for the event's unsent reminders from its
// current start time and clears their delivery attempts.
func (s *ReminderStore) Reschedule(event *model.Event) error {
	reminders, err := s.ListByEvent(event.UserID, event.ID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range reminders {
		if r.Sent {
			continue
		}
		fireAt := event.StartTime.Add(-r.LeadUnit.Duration(r.LeadValue)).UTC()
		if _, err := tx.Exec(`UPDATE reminders SET fire_at = ?, attempts = 0, next_attempt_at = NULL, failed = 0 WHERE id = ?`, fireAt, r.ID); err != nil {
			return fmt.Errorf("reschedule reminder %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *ReminderStore) Delete(userID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM reminders WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}

// ListDue returns unsent, unfailed reminders whose fire time and retry time
// have passed, joined with their active event and owning user.
func (s *ReminderStore) ListDue(now time.Time, limit int) ([]model.DueReminder, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.event_id, r.user_id, r.fire_at, r.lead_value, r.lead_unit, r.channels, r.sent, r.sent_at,
		        r.attempts, r.failed, r.created_at,
		        e.id, e.user_id, e.title, e.description, e.category, e.priority, e.start_time, e.end_time,
		        e.all_day, e.location, e.recurrence, e.status, e.source, e.created_at, e.updated_at,
		        u.id, u.email, u.name, u.password_hash, u.tier, u.suspended, u.timezone, u.phone,
		        u.default_lead_value, u.default_lead_unit, u.default_channels, u.created_at, u.updated_at
		 FROM reminders r
		 JOIN events e ON e.id = r.event_id
		 JOIN users u ON u.id = r.user_id
		 WHERE r.sent = 0 AND r.failed = 0 AND r.fire_at <= ?
		   AND (r.next_attempt_at IS NULL OR r.next_attempt_at <= ?)
		   AND e.status = ? AND u.suspended = 0
		 ORDER BY r.fire_at ASC
		 LIMIT ?`,
		now.UTC(), now.UTC(), model.EventStatusActive, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var due []model.DueReminder
	for rows.Next() {
		var d model.DueReminder
		var rChannels, uChannels string
		var sent, failed, allDay, suspended int
		var sentAt sql.NullTime
		err := rows.Scan(
			&d.Reminder.ID, &d.Reminder.EventID, &d.Reminder.UserID, &d.Reminder.FireAt, &d.Reminder.LeadValue,
			&d.Reminder.LeadUnit, &rChannels, &sent, &sentAt, &d.Reminder.Attempts, &failed, &d.Reminder.CreatedAt,
			&d.Event.ID, &d.Event.UserID, &d.Event.Title, &d.Event.Description, &d.Event.Category, &d.Event.Priority,
			&d.Event.StartTime, &d.Event.EndTime, &allDay, &d.Event.Location, &d.Event.Recurrence, &d.Event.Status,
			&d.Event.Source, &d.Event.CreatedAt, &d.Event.UpdatedAt,
			&d.User.ID, &d.User.Email, &d.User.Name, &d.User.PasswordHash, &d.User.Tier, &suspended, &d.User.Timezone,
			&d.User.Phone, &d.User.DefaultLeadValue, &d.User.DefaultLeadUnit, &uChannels, &d.User.CreatedAt, &d.User.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		d.Reminder.Channels = model.ParseChannels(rChannels)
		d.Reminder.Sent = sent != 0
		d.Reminder.Failed = failed != 0
		if sentAt.Valid {
			d.Reminder.SentAt = &sentAt.Time
		}
		d.Event.AllDay = allDay != 0
		d.User.Suspended = suspended != 0
		d.User.DefaultChannels = model.ParseChannels(uChannels)
		due = append(due, d)
	}
	return due, rows.Err()
}

func (s *ReminderStore) MarkSent(id int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE reminders SET sent = 1, sent_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

// MarkAttempt records an undelivered pass and holds the reminder back until
// next.
func (s *ReminderStore) MarkAttempt(id int64, next time.Time) error {
	_, err := s.db.Exec(
		`UPDATE reminders SET attempts = attempts + 1, next_attempt_at = ? WHERE id = ?`,
		next.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark reminder attempt: %w", err)
	}
	return nil
}

// MarkFailed stops further delivery attempts.
func (s *ReminderStore) MarkFailed(id int64) error {
	_, err := s.db.Exec(`UPDATE reminders SET attempts = attempts + 1, failed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reminder failed: %w", err)
	}
	return nil
}
