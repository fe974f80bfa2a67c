package model

import "time"

const (
	TierFree = "free"
	TierPro  = "pro"
)

type User struct {
	ID               int64     `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	PasswordHash     string    `json:"-"`
	Tier             string    `json:"tier"`
	Suspended        bool      `json:"suspended"`
	Timezone         string    `json:"timezone"`
	Phone            string    `json:"phone"`
	DefaultLeadValue int       `json:"default_lead_value"`
	DefaultLeadUnit  LeadUnit  `json:"default_lead_unit"`
	DefaultChannels  Channels  `json:"default_channels"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Location returns the user's configured time zone, falling back to UTC.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UserSettings are the user-editable preferences applied to new events.
type UserSettings struct {
	Name             string
	Timezone         string
	Phone            string
	DefaultLeadValue int
	DefaultLeadUnit  LeadUnit
	DefaultChannels  Channels
}
