package billing

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/store"
)

const (
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// Processor applies verified Stripe events to users and their subscriptions.
type Processor struct {
	users  *store.UserStore
	subs   *store.BillingStore
	logger *slog.Logger
}

func NewProcessor(users *store.UserStore, subs *store.BillingStore, logger *slog.Logger) *Processor {
	return &Processor{users: users, subs: subs, logger: logger}
}

// Handle dispatches on event type. Unknown types and events for
// subscriptions we do not track are ignored. A returned error means the
// event should be retried.
func (p *Processor) Handle(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return p.checkoutCompleted(event)
	case "invoice.paid":
		return p.invoiceStatus(event, StatusActive)
	case "invoice.payment_failed":
		return p.invoiceStatus(event, StatusPastDue)
	case "customer.subscription.updated":
		return p.subscriptionUpdated(event)
	case "customer.subscription.deleted":
		return p.subscriptionDeleted(event)
	default:
		p.logger.Debug("ignoring stripe event", "type", event.Type)
		return nil
	}
}

func (p *Processor) checkoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}

	userID, err := strconv.ParseInt(sess.ClientReferenceID, 10, 64)
	if err != nil {
		p.logger.Warn("checkout session without user reference", "session", sess.ID, "client_reference_id", sess.ClientReferenceID)
		return nil
	}
	user, err := p.users.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		p.logger.Warn("checkout for unknown user", "user_id", userID)
		return nil
	}

	var customerID, subID string
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		subID = sess.Subscription.ID
	}
	if err := p.subs.Activate(userID, customerID, subID, model.TierPro); err != nil {
		return err
	}
	if err := p.users.SetTier(userID, model.TierPro); err != nil {
		return err
	}
	p.logger.Info("checkout completed", "user_id", userID, "subscription", subID)
	return nil
}

// subscriptionIDFromInvoice reads the subscription from the invoice parent.
func subscriptionIDFromInvoice(invoice stripe.Invoice) string {
	if invoice.Parent != nil &&
		invoice.Parent.SubscriptionDetails != nil &&
		invoice.Parent.SubscriptionDetails.Subscription != nil {
		return invoice.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

func (p *Processor) invoiceStatus(event stripe.Event, status string) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}
	sub, err := p.lookup(subscriptionIDFromInvoice(invoice))
	if err != nil || sub == nil {
		return err
	}
	if err := p.subs.UpdateStatus(sub.ID, status); err != nil {
		return err
	}
	if status == StatusActive {
		if err := p.users.SetTier(sub.UserID, model.TierPro); err != nil {
			return err
		}
	}
	p.logger.Info("invoice processed", "user_id", sub.UserID, "status", status)
	return nil
}

func (p *Processor) subscriptionUpdated(event stripe.Event) error {
	var ss stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}
	sub, err := p.lookup(ss.ID)
	if err != nil || sub == nil {
		return err
	}
	if err := p.subs.UpdateStatus(sub.ID, string(ss.Status)); err != nil {
		return err
	}
	return p.subs.SetCancelAtPeriodEnd(sub.ID, ss.CancelAtPeriodEnd)
}

func (p *Processor) subscriptionDeleted(event stripe.Event) error {
	var ss stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}
	sub, err := p.lookup(ss.ID)
	if err != nil || sub == nil {
		return err
	}
	if err := p.subs.UpdateStatus(sub.ID, StatusCanceled); err != nil {
		return err
	}
	if err := p.users.SetTier(sub.UserID, model.TierFree); err != nil {
		return err
	}
	p.logger.Info("subscription ended", "user_id", sub.UserID)
	return nil
}

func (p *Processor) lookup(stripeSubID string) (*model.BillingSubscription, error) {
	if stripeSubID == "" {
		return nil, nil
	}
	sub, err := p.subs.GetByStripeSubscriptionID(stripeSubID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		p.logger.Warn("stripe event for unknown subscription", "subscription", stripeSubID)
	}
	return sub, nil
}
