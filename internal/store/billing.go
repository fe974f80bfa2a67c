package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

type BillingStore struct {
	db *sql.DB
}

func NewBillingStore(db *sql.DB) *BillingStore {
	return &BillingStore{db: db}
}

func scanBillingSubscription(scanner interface{ Scan(...any) error }) (*model.BillingSubscription, error) {
	var sub model.BillingSubscription
	var customerID, subID sql.NullString
	var cancel int
	err := scanner.Scan(
		&sub.ID, &sub.UserID, &customerID, &subID, &sub.Plan, &sub.Status,
		&cancel, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		sub.StripeCustomerID = &customerID.String
	}
	if subID.Valid {
		sub.StripeSubscriptionID = &subID.String
	}
	sub.CancelAtPeriodEnd = cancel != 0
	return &sub, nil
}

const billingCols = `id, user_id, stripe_customer_id, stripe_subscription_id, plan, status,
	cancel_at_period_end, created_at, updated_at`

func (s *BillingStore) getOne(query string, args ...any) (*model.BillingSubscription, error) {
	sub, err := scanBillingSubscription(s.db.QueryRow(`SELECT `+billingCols+` FROM billing_subscriptions WHERE `+query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get billing subscription: %w", err)
	}
	return sub, nil
}

func (s *BillingStore) GetByUser(userID int64) (*model.BillingSubscription, error) {
	return s.getOne(`user_id = ?`, userID)
}

func (s *BillingStore) GetByStripeSubscriptionID(stripeSubID string) (*model.BillingSubscription, error) {
	return s.getOne(`stripe_subscription_id = ?`, stripeSubID)
}

// SetCustomer records the Stripe customer for a user, creating the row on
// first checkout.
func (s *BillingStore) SetCustomer(userID int64, customerID string) error {
	_, err := s.db.Exec(
		`INSERT INTO billing_subscriptions (user_id, stripe_customer_id) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET stripe_customer_id = excluded.stripe_customer_id, updated_at = ?`,
		userID, customerID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	return nil
}

// Activate links a Stripe subscription to the user after checkout.
func (s *BillingStore) Activate(userID int64, customerID, stripeSubID, plan string) error {
	_, err := s.db.Exec(
		`INSERT INTO billing_subscriptions (user_id, stripe_customer_id, stripe_subscription_id, plan, status)
		 VALUES (?, ?, ?, ?, 'active')
		 ON CONFLICT(user_id) DO UPDATE SET stripe_customer_id = excluded.stripe_customer_id,
		 stripe_subscription_id = excluded.stripe_subscription_id, plan = excluded.plan,
		 status = 'active', cancel_at_period_end = 0, updated_at = ?`,
		userID, customerID, stripeSubID, plan, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("activate billing subscription: %w", err)
	}
	return nil
}

func (s *BillingStore) UpdateStatus(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE billing_subscriptions SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update billing status: %w", err)
	}
	return nil
}

func (s *BillingStore) SetCancelAtPeriodEnd(id int64, cancel bool) error {
	_, err := s.db.Exec(
		`UPDATE billing_subscriptions SET cancel_at_period_end = ?, updated_at = ? WHERE id = ?`,
		boolInt(cancel), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set cancel at period end: %w", err)
	}
	return nil
}
