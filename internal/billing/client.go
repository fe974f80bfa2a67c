// Package billing wraps Stripe checkout, the customer portal and webhook
// processing for the Pro tier.
package billing

import (
	"errors"
	"fmt"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrNotConfigured = errors.New("billing not configured")

type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	// BaseURL is where checkout and the portal send the user back to.
	BaseURL string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &Client{cfg: cfg}
}

func (c *Client) Configured() bool {
	return c.cfg.SecretKey != "" && c.cfg.PriceID != ""
}

// CreateCustomer creates a Stripe customer tagged with the user id.
func (c *Client) CreateCustomer(email string, userID int64) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.AddMetadata("user_id", strconv.FormatInt(userID, 10))
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession starts a Pro subscription checkout. The user id is
// the client reference the webhook uses to find the account.
func (c *Client) CreateCheckoutSession(customerID string, userID int64) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(strconv.FormatInt(userID, 10)),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.cfg.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(c.cfg.BaseURL + "/?billing=success"),
		CancelURL:           stripe.String(c.cfg.BaseURL + "/?billing=cancelled"),
	}
	sess, err := checksession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (c *Client) CreateBillingPortalSession(customerID string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.cfg.BaseURL + "/"),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// CancelAtPeriodEnd stops renewal; the user keeps Pro until the period ends.
func (c *Client) CancelAtPeriodEnd(subscriptionID string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	_, err := subscription.Update(subscriptionID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

// ConstructWebhookEvent verifies the Stripe-Signature header and parses the event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if c.cfg.WebhookSecret == "" {
		return stripe.Event{}, ErrNotConfigured
	}
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
