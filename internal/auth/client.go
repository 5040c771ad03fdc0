package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Session is the authenticated identity handed to the rest of the service.
// Subject is the stable user identifier that scopes every memory read/write.
type Session struct {
	Subject     string `json:"subject"`
	Email       string `json:"email"`
	AccessToken string `json:"-"`
}

// AuthError carries the provider's rejection message for inline display on
// the login form. Anything else that goes wrong is a plain error.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth rejected (%d): %s", e.Status, e.Message)
}

// Provider is the identity-provider contract consumed by the HTTP surface.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, s Session) error
}

// Client implements Provider against a Supabase/GoTrue auth endpoint.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func NewClient(baseURL, anonKey string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || strings.TrimSpace(anonKey) == "" {
		return nil, errors.New("supabase URL and anon key are required")
	}
	return &Client{
		baseURL: baseURL,
		anonKey: strings.TrimSpace(anonKey),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	// GoTrue error shapes vary by endpoint and version.
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	return c.authRequest(ctx, "/auth/v1/token?grant_type=password", email, password)
}

func (c *Client) SignUp(ctx context.Context, email, password string) (Session, error) {
	return c.authRequest(ctx, "/auth/v1/signup", email, password)
}

func (c *Client) SignOut(ctx context.Context, s Session) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	defer res.Body.Close()

	// GoTrue returns 204 on success; an already-expired token is not worth
	// surfacing to the user, so only report hard failures.
	if res.StatusCode >= 500 {
		return fmt.Errorf("sign out: provider status %d", res.StatusCode)
	}
	return nil
}

func (c *Client) authRequest(ctx context.Context, path, email, password string) (Session, error) {
	payload, err := json.Marshal(credentials{Email: email, Password: password})
	if err != nil {
		return Session{}, fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Session{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	res, err := c.http.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("auth request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return Session{}, fmt.Errorf("read auth response: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return Session{}, &AuthError{Status: res.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return Session{}, fmt.Errorf("decode auth response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := tok.ErrorDescription
		if msg == "" {
			msg = tok.Msg
		}
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return Session{}, &AuthError{Status: res.StatusCode, Message: msg}
	}

	if tok.User.ID == "" {
		return Session{}, fmt.Errorf("auth response missing user id")
	}
	return Session{
		Subject:     tok.User.ID,
		Email:       tok.User.Email,
		AccessToken: tok.AccessToken,
	}, nil
}
