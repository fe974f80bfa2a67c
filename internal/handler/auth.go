package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/remind/internal/auth"
	"github.com/dukerupert/remind/internal/middleware"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/store"
)

type AuthHandler struct {
	users        *store.UserStore
	tokens       *auth.Tokens
	cookieSecure bool
	logger       *slog.Logger
}

func NewAuthHandler(us *store.UserStore, tokens *auth.Tokens, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: us, tokens: tokens, cookieSecure: cookieSecure, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := h.users.GetByEmail(email)
	if err != nil {
		h.logger.Error("register: lookup user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("register: hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	user, err := h.users.Create(email, strings.TrimSpace(req.Name), hash)
	if err != nil {
		h.logger.Error("register: create user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}
	if req.Timezone != "" {
		st := settingsOf(user)
		st.Timezone = req.Timezone
		if user, err = h.users.UpdateSettings(user.ID, st); err != nil {
			h.logger.Error("register: set timezone", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to register")
			return
		}
	}

	h.logger.Info("user registered", "user_id", user.ID)
	h.issue(w, http.StatusCreated, user)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.logger.Error("login: lookup user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if user.Suspended {
		writeError(w, http.StatusForbidden, "account suspended")
		return
	}

	h.issue(w, http.StatusOK, user)
}

func (h *AuthHandler) issue(w http.ResponseWriter, status int, user *model.User) {
	token, exp, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		h.logger.Error("issue token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, status, tokenResponse{Token: token, ExpiresAt: exp, User: user})
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so this only
// clears the browser cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type settingsRequest struct {
	Name             string   `json:"name" validate:"max=100"`
	Timezone         string   `json:"timezone" validate:"omitempty,timezone"`
	Phone            string   `json:"phone" validate:"omitempty,e164"`
	DefaultLeadValue int      `json:"default_lead_value" validate:"min=0,max=10080"`
	DefaultLeadUnit  string   `json:"default_lead_unit" validate:"required,oneof=minutes hours days"`
	DefaultChannels  []string `json:"default_channels" validate:"dive,oneof=push email sms"`
}

func settingsOf(u *model.User) model.UserSettings {
	return model.UserSettings{
		Name:             u.Name,
		Timezone:         u.Timezone,
		Phone:            u.Phone,
		DefaultLeadValue: u.DefaultLeadValue,
		DefaultLeadUnit:  u.DefaultLeadUnit,
		DefaultChannels:  u.DefaultChannels,
	}
}

// UpdateSettings handles PUT /api/me/settings
func (h *AuthHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.users.UpdateSettings(auth.UserID(r.Context()), model.UserSettings{
		Name:             strings.TrimSpace(req.Name),
		Timezone:         req.Timezone,
		Phone:            req.Phone,
		DefaultLeadValue: req.DefaultLeadValue,
		DefaultLeadUnit:  model.LeadUnit(req.DefaultLeadUnit),
		DefaultChannels:  model.ParseChannels(strings.Join(req.DefaultChannels, ",")),
	})
	if err != nil {
		h.logger.Error("update settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
