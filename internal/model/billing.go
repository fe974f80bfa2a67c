package model

import "time"

type BillingSubscription struct {
	ID                   int64     `json:"id"`
	UserID               int64     `json:"user_id"`
	StripeCustomerID     *string   `json:"stripe_customer_id"`
	StripeSubscriptionID *string   `json:"stripe_subscription_id"`
	Plan                 string    `json:"plan"`
	Status               string    `json:"status"`
	CancelAtPeriodEnd    bool      `json:"cancel_at_period_end"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
