package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Manager owns the session table. All returned sessions are copies;
// mutations go through Manager methods.
type Manager struct {
	mu                sync.Mutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(Session)
	now               func() time.Time
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
		now:               time.Now,
	}
}

// OnExpire registers a hook invoked for every session the janitor expires.
func (m *Manager) OnExpire(fn func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

func (m *Manager) Create(subject, email string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		Subject:        subject,
		Email:          email,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[s.ID] = s
	return s.clone()
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// Touch refreshes the inactivity deadline.
func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = m.now()
	return nil
}

// SetActiveTurn records the turn currently in flight; an empty id clears it.
func (m *Manager) SetActiveTurn(id, turnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.ActiveTurnID = turnID
	s.LastActivityAt = m.now()
	return nil
}

func (m *Manager) End(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	delete(m.sessions, id)
	return s.clone(), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartJanitor expires idle sessions in the background until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireIdle()
			}
		}
	}()
}

func (m *Manager) expireIdle() {
	m.mu.Lock()
	cutoff := m.now().Add(-m.inactivityTimeout)
	var expired []Session
	for id, s := range m.sessions {
		if s.LastActivityAt.Before(cutoff) {
			s.Status = StatusEnded
			expired = append(expired, *s)
			delete(m.sessions, id)
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook == nil {
		return
	}
	for _, s := range expired {
		hook(s)
	}
}
