package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/remind/internal/auth"
	"github.com/dukerupert/remind/internal/billing"
	"github.com/dukerupert/remind/internal/store"
)

type BillingHandler struct {
	client    *billing.Client
	processor *billing.Processor
	subs      *store.BillingStore
	users     *store.UserStore
	logger    *slog.Logger
}

func NewBillingHandler(
	c *billing.Client,
	p *billing.Processor,
	subs *store.BillingStore,
	us *store.UserStore,
	logger *slog.Logger,
) *BillingHandler {
	return &BillingHandler{client: c, processor: p, subs: subs, users: us, logger: logger}
}

type redirectResponse struct {
	URL string `json:"url"`
}

// Checkout handles POST /api/billing/checkout
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if !h.client.Configured() {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	userID := auth.UserID(r.Context())
	customerID, err := h.ensureCustomer(userID)
	if err != nil {
		h.logger.Error("ensure stripe customer", "user_id", userID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create customer")
		return
	}
	url, err := h.client.CreateCheckoutSession(customerID, userID)
	if err != nil {
		h.logger.Error("create checkout session", "user_id", userID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to start checkout")
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{URL: url})
}

func (h *BillingHandler) ensureCustomer(userID int64) (string, error) {
	sub, err := h.subs.GetByUser(userID)
	if err != nil {
		return "", err
	}
	if sub != nil && sub.StripeCustomerID != nil && *sub.StripeCustomerID != "" {
		return *sub.StripeCustomerID, nil
	}
	user, err := h.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", errors.New("user not found")
	}
	customerID, err := h.client.CreateCustomer(user.Email, userID)
	if err != nil {
		return "", err
	}
	if err := h.subs.SetCustomer(userID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

// Portal handles POST /api/billing/portal
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	if !h.client.Configured() {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	sub, err := h.subs.GetByUser(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	if sub == nil || sub.StripeCustomerID == nil {
		writeError(w, http.StatusNotFound, "no billing account")
		return
	}
	url, err := h.client.CreateBillingPortalSession(*sub.StripeCustomerID)
	if err != nil {
		h.logger.Error("create portal session", "error", err)
		writeError(w, http.StatusBadGateway, "failed to open billing portal")
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{URL: url})
}

// Cancel handles POST /api/billing/cancel. Pro stays active until the
// current period ends; the deleted webhook downgrades the user.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.client.Configured() {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	sub, err := h.subs.GetByUser(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	if sub == nil || sub.StripeSubscriptionID == nil || sub.Status != billing.StatusActive {
		writeError(w, http.StatusNotFound, "no active subscription")
		return
	}
	if err := h.client.CancelAtPeriodEnd(*sub.StripeSubscriptionID); err != nil {
		h.logger.Error("cancel subscription", "subscription_id", *sub.StripeSubscriptionID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to cancel subscription")
		return
	}
	if err := h.subs.SetCancelAtPeriodEnd(sub.ID, true); err != nil {
		h.logger.Error("mark subscription cancelling", "error", err)
	}
	sub.CancelAtPeriodEnd = true
	writeJSON(w, http.StatusOK, sub)
}

// Webhook handles POST /webhooks/stripe. It is unauthenticated; the
// Stripe-Signature header is the credential.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	event, err := h.client.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, billing.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}
	if err := h.processor.Handle(event); err != nil {
		h.logger.Error("stripe webhook", "type", event.Type, "id", event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}
	w.WriteHeader(http.StatusOK)
}
