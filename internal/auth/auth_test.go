package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokens_RoundTrip(t *testing.T) {
	tk := NewTokens("secret", time.Hour)
	s, exp, err := tk.Issue("acc-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}
	id, err := tk.Parse(s)
	if err != nil || id != "acc-1" {
		t.Fatalf("Parse: %q %v", id, err)
	}
}

func TestTokens_Rejects(t *testing.T) {
	tk := NewTokens("secret", time.Hour)
	s, _, _ := tk.Issue("acc-1")

	if _, err := NewTokens("other", time.Hour).Parse(s); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: %v", err)
	}

	expired := NewTokens("secret", time.Minute)
	expired.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, _ := expired.Issue("acc-1")
	if _, err := tk.Parse(old); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired: %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "acc-1"})
	raw, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := tk.Parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg none: %v", err)
	}

	if _, err := tk.Parse("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: %v", err)
	}
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(h, "correct horse") || CheckPassword(h, "wrong horse") {
		t.Fatal("CheckPassword mismatch")
	}
}
