package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/remind/internal/auth"
	"github.com/dukerupert/remind/internal/model"
)

// TokenCookieName carries the bearer token for browser sessions.
const TokenCookieName = "remind_token"

// TokenValidator is satisfied by *auth.Tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// UserLookup is satisfied by *store.UserStore.
type UserLookup interface {
	GetByID(id int64) (*model.User, error)
}

// RequireAuth accepts a bearer token from the Authorization header or the
// session cookie and populates AuthContext. Unknown users get 401 and
// suspended users 403.
func RequireAuth(tokens TokenValidator, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			userID, _ := claims.UserID()

			u, err := users.GetByID(userID)
			if err != nil {
				slog.Error("auth: load user", "user_id", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if u == nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if u.Suspended {
				writeError(w, http.StatusForbidden, "account suspended")
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{
				UserID:  u.ID,
				Email:   u.Email,
				Tier:    u.Tier,
				TokenID: claims.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePro rejects free-tier users.
func RequirePro(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsPro(r.Context()) {
			writeError(w, http.StatusForbidden, "pro subscription required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
