package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var suspended int
	var channels string
	err := scanner.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Tier, &suspended, &u.Timezone, &u.Phone,
		&u.DefaultLeadValue, &u.DefaultLeadUnit, &channels, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Suspended = suspended != 0
	u.DefaultChannels = model.ParseChannels(channels)
	return &u, nil
}

const userCols = `id, email, name, password_hash, tier, suspended, timezone, phone,
	default_lead_value, default_lead_unit, default_channels, created_at, updated_at`

func (s *UserStore) Create(email, name, passwordHash string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?)`,
		email, name, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdateSettings(id int64, st model.UserSettings) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET name = ?, timezone = ?, phone = ?, default_lead_value = ?,
		 default_lead_unit = ?, default_channels = ?, updated_at = ? WHERE id = ?`,
		st.Name, st.Timezone, st.Phone, st.DefaultLeadValue,
		st.DefaultLeadUnit, st.DefaultChannels.String(), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user settings: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) SetTier(id int64, tier string) error {
	_, err := s.db.Exec(`UPDATE users SET tier = ?, updated_at = ? WHERE id = ?`, tier, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set user tier: %w", err)
	}
	return nil
}

func (s *UserStore) SetSuspended(id int64, suspended bool) error {
	var v int
	if suspended {
		v = 1
	}
	_, err := s.db.Exec(`UPDATE users SET suspended = ?, updated_at = ? WHERE id = ?`, v, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set user suspended: %w", err)
	}
	return nil
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
