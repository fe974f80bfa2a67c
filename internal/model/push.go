package model

import "time"

type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// NotificationLog records one delivery attempt on one channel.
type NotificationLog struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	ReminderID *int64    `json:"reminder_id,omitempty"`
	Channel    string    `json:"channel"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
