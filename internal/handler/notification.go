package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/remind/internal/auth"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/notify"
	"github.com/dukerupert/remind/internal/notify/push"
	"github.com/dukerupert/remind/internal/store"
)

type NotificationHandler struct {
	dispatcher *notify.Dispatcher
	push       *push.Service
	subs       *store.PushStore
	history    *store.NotificationLogStore
	users      *store.UserStore
	logger     *slog.Logger
}

func NewNotificationHandler(
	d *notify.Dispatcher,
	ps *push.Service,
	subs *store.PushStore,
	history *store.NotificationLogStore,
	us *store.UserStore,
	logger *slog.Logger,
) *NotificationHandler {
	return &NotificationHandler{dispatcher: d, push: ps, subs: subs, history: history, users: us, logger: logger}
}

type sendRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"max=2000"`
	URL   string `json:"url" validate:"omitempty,max=500"`
}

func (h *NotificationHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, model.ChannelEmail)
}

func (h *NotificationHandler) SendPush(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, model.ChannelPush)
}

func (h *NotificationHandler) SendSMS(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, model.ChannelSMS)
}

// send dispatches a one-off message to the authenticated user.
func (h *NotificationHandler) send(w http.ResponseWriter, r *http.Request, channel string) {
	var req sendRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.dispatcher.Configured(channel) {
		writeError(w, http.StatusServiceUnavailable, channel+" notifications are not configured")
		return
	}
	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	msg := notify.Message{Title: req.Title, Body: req.Body, URL: req.URL, Tag: "direct"}
	err = h.dispatcher.Send(r.Context(), user, nil, channel, msg)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": model.DeliverySent})
	case errors.Is(err, notify.ErrNoRecipient):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Warn("direct notification failed", "channel", channel, "user_id", user.ID, "error", err)
		writeError(w, http.StatusBadGateway, "delivery failed")
	}
}

// History handles GET /api/notifications?limit=
func (h *NotificationHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	logs, err := h.history.ListByUser(auth.UserID(r.Context()), limit)
	if err != nil {
		h.logger.Error("list notification log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if logs == nil {
		logs = []model.NotificationLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *NotificationHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if !h.push.Configured() {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.push.VAPIDPublicKey()})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
	DeviceName string `json:"device_name" validate:"max=100"`
}

// Subscribe handles POST /api/push/subscribe. The body mirrors the browser's
// PushSubscription.toJSON() plus an optional device name.
func (h *NotificationHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := h.subs.CreateSubscription(auth.UserID(r.Context()), req.Endpoint, req.Keys.P256dh, req.Keys.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *NotificationHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// DeleteSubscription handles DELETE /api/push/subscriptions/{id}
func (h *NotificationHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	sub, err := h.subs.GetByID(userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err := h.subs.DeleteSubscription(userID, id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
