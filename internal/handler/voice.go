package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/remind/internal/auth"
	"github.com/dukerupert/remind/internal/categorize"
	"github.com/dukerupert/remind/internal/store"
	"github.com/dukerupert/remind/internal/voice"
)

type VoiceHandler struct {
	svc         *voice.Service
	users       *store.UserStore
	categorizer *categorize.Categorizer
	logger      *slog.Logger
}

func NewVoiceHandler(svc *voice.Service, us *store.UserStore, c *categorize.Categorizer, logger *slog.Logger) *VoiceHandler {
	return &VoiceHandler{svc: svc, users: us, categorizer: c, logger: logger}
}

type transcriptRequest struct {
	Transcript string `json:"transcript" validate:"required,max=2000"`
}

// Parse handles POST /api/voice/parse. Nothing is stored.
func (h *VoiceHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	cmd, err := h.svc.Interpret(user, req.Transcript)
	if errors.Is(err, voice.ErrEmptyCommand) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("voice parse", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to parse transcript")
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// Capture handles POST /api/voice/capture
func (h *VoiceHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Capture(r.Context(), auth.UserID(r.Context()), req.Transcript)
	if errors.Is(err, voice.ErrEmptyCommand) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("voice capture", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to capture transcript")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type categorizeRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// Categorize handles POST /api/categorize
func (h *VoiceHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.categorizer.Categorize(req.Text))
}
