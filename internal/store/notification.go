package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/remind/internal/model"
)

type NotificationLogStore struct {
	db *sql.DB
}

func NewNotificationLogStore(db *sql.DB) *NotificationLogStore {
	return &NotificationLogStore{db: db}
}

// Record appends one delivery attempt. reminderID is nil for direct sends.
func (s *NotificationLogStore) Record(userID int64, reminderID *int64, channel, status, errMsg string) error {
	var rid sql.NullInt64
	if reminderID != nil {
		rid = sql.NullInt64{Int64: *reminderID, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO notification_log (user_id, reminder_id, channel, status, error) VALUES (?, ?, ?, ?, ?)`,
		userID, rid, channel, status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

func (s *NotificationLogStore) ListByUser(userID int64, limit int) ([]model.NotificationLog, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, reminder_id, channel, status, error, created_at
		 FROM notification_log WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notification log: %w", err)
	}
	defer rows.Close()

	var logs []model.NotificationLog
	for rows.Next() {
		var l model.NotificationLog
		var rid sql.NullInt64
		if err := rows.Scan(&l.ID, &l.UserID, &rid, &l.Channel, &l.Status, &l.Error, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		if rid.Valid {
			l.ReminderID = &rid.Int64
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
