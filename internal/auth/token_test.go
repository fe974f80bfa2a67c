package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndValidate(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	signed, exp, err := tokens.Issue(42, "alice@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry %v should be in the future", exp)
	}

	claims, err := tokens.Validate(signed)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Errorf("UserID() = %d, %v; want 42", id, err)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", claims.Email, "alice@example.com")
	}
	if claims.ID == "" {
		t.Error("expected token id")
	}
}

func TestValidateRejects(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	signed, _, err := tokens.Issue(1, "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	expired := NewTokens("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name   string
		tokens *Tokens
		token  string
	}{
		{"wrong secret", NewTokens("other", time.Hour), signed},
		{"expired", expired, signed},
		{"garbage", tokens, "not-a-token"},
		{"alg none", tokens, none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tokens.Validate(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("err = %v, want ErrPasswordTooShort", err)
	}

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Error("expected mismatch for wrong password")
	}
}
