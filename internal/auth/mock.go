package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MockProvider accepts any email/password pair and mints a stable subject
// per email. Used when AUTH_PROVIDER=mock and in tests.
type MockProvider struct {
	mu       sync.Mutex
	subjects map[string]string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{subjects: make(map[string]string)}
}

func (m *MockProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, &AuthError{Status: 400, Message: "email and password are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	subject, ok := m.subjects[email]
	if !ok {
		subject = uuid.NewString()
		m.subjects[email] = subject
	}
	return Session{Subject: subject, Email: email, AccessToken: uuid.NewString()}, nil
}

func (m *MockProvider) SignUp(ctx context.Context, email, password string) (Session, error) {
	return m.SignIn(ctx, email, password)
}

func (m *MockProvider) SignOut(ctx context.Context, s Session) error {
	return nil
}
