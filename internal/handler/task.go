package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/remind/internal/auth"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/realtime"
	"github.com/dukerupert/remind/internal/store"
)

type TaskHandler struct {
	tasks  *store.TaskStore
	hub    realtime.Broadcaster
	logger *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, hub realtime.Broadcaster, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: ts, hub: hub, logger: logger}
}

type taskRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Done  bool   `json:"done"`
}

// List handles GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	var req taskRequest
	if !decode(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	task, err := h.tasks.Create(userID, title, model.SourceManual)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	h.hub.Publish(userID, realtime.NewMessage("task", "created", task.ID, nil))
	writeJSON(w, http.StatusCreated, task)
}

// Update handles PUT /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req taskRequest
	if !decode(w, r, &req) {
		return
	}

	existing, err := h.tasks.GetByID(userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	task, err := h.tasks.Update(userID, id, strings.TrimSpace(req.Title), req.Done)
	if err != nil {
		h.logger.Error("update task", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	h.hub.Publish(userID, realtime.NewMessage("task", "updated", id, nil))
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.tasks.GetByID(userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err := h.tasks.Delete(userID, id); err != nil {
		h.logger.Error("delete task", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	h.hub.Publish(userID, realtime.NewMessage("task", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}
