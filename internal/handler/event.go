package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/remind/internal/auth"
	"github.com/dukerupert/remind/internal/categorize"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/realtime"
	"github.com/dukerupert/remind/internal/recurrence"
	"github.com/dukerupert/remind/internal/store"
)

// maxOccurrenceRange bounds recurrence expansion per request.
const maxOccurrenceRange = 366 * 24 * time.Hour

type EventHandler struct {
	events      *store.EventStore
	reminders   *store.ReminderStore
	users       *store.UserStore
	categorizer *categorize.Categorizer
	hub         realtime.Broadcaster
	logger      *slog.Logger
}

func NewEventHandler(
	es *store.EventStore,
	rs *store.ReminderStore,
	us *store.UserStore,
	c *categorize.Categorizer,
	hub realtime.Broadcaster,
	logger *slog.Logger,
) *EventHandler {
	return &EventHandler{events: es, reminders: rs, users: us, categorizer: c, hub: hub, logger: logger}
}

type reminderRequest struct {
	LeadValue int      `json:"lead_value" validate:"min=0,max=10080"`
	LeadUnit  string   `json:"lead_unit" validate:"required,oneof=minutes hours days"`
	Channels  []string `json:"channels" validate:"required,min=1,dive,oneof=push email sms"`
}

type eventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=4000"`
	Category    string    `json:"category" validate:"omitempty,oneof=Court Work Family Personal Recovery Other"`
	Priority    string    `json:"priority" validate:"omitempty,oneof=Low Medium High Urgent"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required,gtefield=StartTime"`
	AllDay      bool      `json:"all_day"`
	Location    string    `json:"location" validate:"max=200"`
	Recurrence  string    `json:"recurrence" validate:"max=200"`
	Status      string    `json:"status" validate:"omitempty,oneof=active completed"`
	// Reminders replaces the user's defaults on create. Absent means use
	// the defaults; an empty list means no reminders.
	Reminders []reminderRequest `json:"reminders" validate:"omitempty,dive"`
}

func (h *EventHandler) parse(w http.ResponseWriter, r *http.Request) (*eventRequest, store.EventParams, bool) {
	var req eventRequest
	if !decode(w, r, &req) {
		return nil, store.EventParams{}, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return nil, store.EventParams{}, false
	}
	if req.Recurrence != "" {
		rule, err := recurrence.Parse(req.Recurrence)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, validationResponse{
				Error:  "validation failed",
				Fields: map[string]string{"recurrence": err.Error()},
			})
			return nil, store.EventParams{}, false
		}
		req.Recurrence = rule.String()
	}

	category := model.Category(req.Category)
	if category == "" {
		category = h.categorizer.Categorize(req.Title + " " + req.Description).Category
	}
	return &req, store.EventParams{
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
		Priority:    model.Priority(req.Priority),
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		AllDay:      req.AllDay,
		Location:    req.Location,
		Recurrence:  req.Recurrence,
		Status:      model.EventStatus(req.Status),
	}, true
}

// load returns the live event or writes 404. Tombstones count as missing.
func (h *EventHandler) load(w http.ResponseWriter, r *http.Request) (*model.Event, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	event, err := h.events.GetByID(auth.UserID(r.Context()), id)
	if err != nil {
		h.logger.Error("get event", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return nil, false
	}
	if event == nil || event.Status == model.EventStatusDeleted {
		writeError(w, http.StatusNotFound, "event not found")
		return nil, false
	}
	return event, true
}

// Create handles POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	req, params, ok := h.parse(w, r)
	if !ok {
		return
	}
	params.Source = model.SourceManual
	if r.Header.Get("X-Remind-Source") == model.SourceSync {
		params.Source = model.SourceSync
	}

	event, err := h.events.Create(userID, params)
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	if req.Reminders == nil {
		user, err := h.users.GetByID(userID)
		if err == nil && user != nil {
			_, err = h.reminders.Create(event, user.DefaultLeadValue, user.DefaultLeadUnit, user.DefaultChannels)
		}
		if err != nil {
			h.logger.Error("create default reminder", "event_id", event.ID, "error", err)
		}
	}
	for _, rr := range req.Reminders {
		if _, err := h.reminders.Create(event, rr.LeadValue, model.LeadUnit(rr.LeadUnit), model.Channels(rr.Channels)); err != nil {
			h.logger.Error("create reminder", "event_id", event.ID, "error", err)
		}
	}

	h.hub.Publish(userID, realtime.NewMessage("event", "created", event.ID, nil))
	writeJSON(w, http.StatusCreated, event)
}

// List handles GET /api/events. With since it returns every change after
// that instant, tombstones included; with start and end it returns
// non-recurring events in range.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	q := r.URL.Query()

	var (
		events []model.Event
		err    error
	)
	switch {
	case q.Get("since") != "":
		since, perr := time.Parse(time.RFC3339Nano, q.Get("since"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		events, err = h.events.ListUpdatedSince(userID, since)
	case q.Get("start") != "" || q.Get("end") != "":
		start, end, ok := parseRange(w, r)
		if !ok {
			return
		}
		events, err = h.events.ListByDateRange(userID, start, end)
	default:
		events, err = h.events.List(userID)
	}
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	startStr, endStr := r.URL.Query().Get("start"), r.URL.Query().Get("end")
	if startStr == "" || endStr == "" {
		writeError(w, http.StatusBadRequest, "start and end query parameters are required")
		return time.Time{}, time.Time{}, false
	}
	start, err := parseFlexibleTime(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339 or YYYY-MM-DD format")
		return time.Time{}, time.Time{}, false
	}
	end, err := parseFlexibleTime(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339 or YYYY-MM-DD format")
		return time.Time{}, time.Time{}, false
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// Occurrences handles GET /api/events/occurrences?start&end
func (h *EventHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}
	if end.Sub(start) > maxOccurrenceRange {
		writeError(w, http.StatusBadRequest, "range must not exceed 366 days")
		return
	}

	single, err := h.events.ListByDateRange(userID, start, end)
	if err != nil {
		h.logger.Error("list events by range", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	recurring, err := h.events.ListRecurring(userID, end)
	if err != nil {
		h.logger.Error("list recurring events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	occ := recurrence.Occurrences(append(single, recurring...), start, end, h.logger)
	if occ == nil {
		occ = []model.EventOccurrence{}
	}
	writeJSON(w, http.StatusOK, occ)
}

// Get handles GET /api/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Update handles PUT /api/events/{id}. Unsent reminders follow a moved start.
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	_, params, ok := h.parse(w, r)
	if !ok {
		return
	}
	params.Source = existing.Source

	event, err := h.events.Update(existing.UserID, existing.ID, params)
	if err != nil {
		h.logger.Error("update event", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	if !event.StartTime.Equal(existing.StartTime) {
		if err := h.reminders.Reschedule(event); err != nil {
			h.logger.Error("reschedule reminders", "event_id", event.ID, "error", err)
		}
	}

	h.hub.Publish(event.UserID, realtime.NewMessage("event", "updated", event.ID, nil))
	writeJSON(w, http.StatusOK, event)
}

// Delete handles DELETE /api/events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.events.Delete(existing.UserID, existing.ID); err != nil {
		h.logger.Error("delete event", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	h.hub.Publish(existing.UserID, realtime.NewMessage("event", "deleted", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// ListReminders handles GET /api/events/{id}/reminders
func (h *EventHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	reminders, err := h.reminders.ListByEvent(event.UserID, event.ID)
	if err != nil {
		h.logger.Error("list reminders", "event_id", event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

// CreateReminder handles POST /api/events/{id}/reminders
func (h *EventHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	var req reminderRequest
	if !decode(w, r, &req) {
		return
	}
	rem, err := h.reminders.Create(event, req.LeadValue, model.LeadUnit(req.LeadUnit), model.Channels(req.Channels))
	if err != nil {
		h.logger.Error("create reminder", "event_id", event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reminder")
		return
	}
	h.hub.Publish(event.UserID, realtime.NewMessage("reminder", "created", rem.ID, map[string]any{"event_id": event.ID}))
	writeJSON(w, http.StatusCreated, rem)
}

// DeleteReminder handles DELETE /api/reminders/{id}
func (h *EventHandler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rem, err := h.reminders.GetByID(userID, id)
	if err != nil {
		h.logger.Error("get reminder", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return
	}
	if rem == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}
	if err := h.reminders.Delete(userID, id); err != nil {
		h.logger.Error("delete reminder", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}
	h.hub.Publish(userID, realtime.NewMessage("reminder", "deleted", id, map[string]any{"event_id": rem.EventID}))
	w.WriteHeader(http.StatusNoContent)
}
