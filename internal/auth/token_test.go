package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arbflow/arbflow/internal/domain"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	token := v.Sign("user-42", time.Hour)

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "user-42" {
		t.Errorf("UserID = %q, want %q", id.UserID, "user-42")
	}
}

func TestVerifyRejectsForgedSignature(t *testing.T) {
	issuer := NewHMACVerifier("issuer-secret")
	verifier := NewHMACVerifier("different-secret")

	_, err := verifier.Verify(issuer.Sign("user-42", time.Hour))
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token := v.Sign("user-42", time.Hour)
	v.now = time.Now

	if _, err := v.Verify(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	v := NewHMACVerifier("test-secret")

	for _, token := range []string{"", "no-dot", "a.b", strings.Repeat(".", 3)} {
		if _, err := v.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("Verify(%q): expected ErrUnauthorized, got %v", token, err)
		}
	}
}
