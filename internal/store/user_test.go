package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/remind/internal/database"
	"github.com/dukerupert/remind/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(email, "Test", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestUserCreate(t *testing.T) {
	us := NewUserStore(openTestDB(t))

	u, err := us.Create("alice@example.com", "Alice", "$2a$hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}
	if u.PasswordHash != "$2a$hash" {
		t.Errorf("password_hash = %q, want %q", u.PasswordHash, "$2a$hash")
	}
	if u.Tier != model.TierFree {
		t.Errorf("tier = %q, want %q", u.Tier, model.TierFree)
	}
	if u.Suspended {
		t.Error("new user should not be suspended")
	}
	if u.DefaultLeadValue != 15 || u.DefaultLeadUnit != model.LeadMinutes {
		t.Errorf("default lead = %d %s, want 15 minutes", u.DefaultLeadValue, u.DefaultLeadUnit)
	}
	if !u.DefaultChannels.Has(model.ChannelPush) {
		t.Errorf("default channels = %v, want push", u.DefaultChannels)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	us := NewUserStore(openTestDB(t))

	if _, err := us.Create("alice@example.com", "Alice", "h"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := us.Create("alice@example.com", "Alice2", "h"); err == nil {
		t.Fatal("expected error for duplicate email, got nil")
	}
}

func TestUserGetByIDNotFound(t *testing.T) {
	us := NewUserStore(openTestDB(t))

	u, err := us.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if u != nil {
		t.Error("expected nil for nonexistent user")
	}
}

func TestUserGetByEmail(t *testing.T) {
	us := NewUserStore(openTestDB(t))

	if _, err := us.Create("alice@example.com", "Alice", "h"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	u, err := us.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u == nil {
		t.Fatal("expected user, got nil")
	}
	if u.Name != "Alice" {
		t.Errorf("name = %q, want %q", u.Name, "Alice")
	}

	missing, err := us.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for nonexistent email")
	}
}

func TestUserUpdateSettings(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	u := createTestUser(t, db, "alice@example.com")

	updated, err := us.UpdateSettings(u.ID, model.UserSettings{
		Name:             "Alice",
		Timezone:         "America/Denver",
		Phone:            "+15555550100",
		DefaultLeadValue: 2,
		DefaultLeadUnit:  model.LeadHours,
		DefaultChannels:  model.Channels{model.ChannelEmail, model.ChannelSMS},
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.Timezone != "America/Denver" {
		t.Errorf("timezone = %q, want %q", updated.Timezone, "America/Denver")
	}
	if updated.DefaultLeadUnit != model.LeadHours || updated.DefaultLeadValue != 2 {
		t.Errorf("lead = %d %s, want 2 hours", updated.DefaultLeadValue, updated.DefaultLeadUnit)
	}
	if updated.DefaultChannels.String() != "email,sms" {
		t.Errorf("channels = %q, want %q", updated.DefaultChannels.String(), "email,sms")
	}
}

func TestUserTierAndSuspension(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	u := createTestUser(t, db, "alice@example.com")

	if err := us.SetTier(u.ID, model.TierPro); err != nil {
		t.Fatalf("set tier: %v", err)
	}
	if err := us.SetSuspended(u.ID, true); err != nil {
		t.Fatalf("set suspended: %v", err)
	}

	got, err := us.GetByID(u.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Tier != model.TierPro {
		t.Errorf("tier = %q, want %q", got.Tier, model.TierPro)
	}
	if !got.Suspended {
		t.Error("expected user to be suspended")
	}
}

func TestUserDelete(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	u := createTestUser(t, db, "alice@example.com")

	if err := us.Delete(u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	got, err := us.GetByID(u.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}
