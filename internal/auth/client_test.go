package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignInReturnsSubjectAndEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" {
			t.Errorf("path = %q, want /auth/v1/token", r.URL.Path)
		}
		if got := r.URL.Query().Get("grant_type"); got != "password" {
			t.Errorf("grant_type = %q, want password", got)
		}
		if got := r.Header.Get("apikey"); got != "anon" {
			t.Errorf("apikey header = %q, want anon", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "jwt",
			"user":         map[string]any{"id": "u1", "email": "u1@example.com"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "anon")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	sess, err := c.SignIn(context.Background(), "u1@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if sess.Subject != "u1" || sess.Email != "u1@example.com" || sess.AccessToken != "jwt" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestSignInRejectionIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error_description": "Invalid login credentials"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "anon")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = c.SignIn(context.Background(), "u1@example.com", "bad")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("SignIn() error = %v, want *AuthError", err)
	}
	if authErr.Message != "Invalid login credentials" {
		t.Fatalf("AuthError.Message = %q, want provider message", authErr.Message)
	}
}

func TestSignUpHitsSignupEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/signup" {
			t.Errorf("path = %q, want /auth/v1/signup", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "jwt",
			"user":         map[string]any{"id": "u2", "email": "u2@example.com"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "anon")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	sess, err := c.SignUp(context.Background(), "u2@example.com", "pw")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if sess.Subject != "u2" {
		t.Fatalf("Subject = %q, want u2", sess.Subject)
	}
}

func TestMockProviderStableSubjectPerEmail(t *testing.T) {
	m := NewMockProvider()
	a, err := m.SignIn(context.Background(), "x@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	b, err := m.SignIn(context.Background(), "x@example.com", "other")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if a.Subject != b.Subject {
		t.Fatalf("subjects differ for same email: %q vs %q", a.Subject, b.Subject)
	}

	if _, err := m.SignIn(context.Background(), "", "pw"); err == nil {
		t.Fatalf("SignIn() should reject empty email")
	}
}
