package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockGateway is an in-process Gateway for development and tests. Its
// reconciliation is deliberately naive: every user utterance becomes one
// added fact, duplicates update in place.
type MockGateway struct {
	mu    sync.Mutex
	facts map[string][]Fact
}

func NewMockGateway() *MockGateway {
	return &MockGateway{facts: make(map[string][]Fact)}
}

func (m *MockGateway) Search(ctx context.Context, query, subject string, limit int) ([]Fact, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, ErrMissingSubject
	}
	if limit <= 0 {
		limit = 5
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Fact
	for _, f := range m.facts[subject] {
		if len(out) >= limit {
			break
		}
		out = append(out, f)
	}
	return out, nil
}

func (m *MockGateway) Upsert(ctx context.Context, pair TurnPair, subject string, metadata map[string]string) ([]Change, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, ErrMissingSubject
	}
	text := strings.TrimSpace(pair.UserText)
	if text == "" {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for i, f := range m.facts[subject] {
		if f.Text == text {
			m.facts[subject][i].UpdatedAt = now
			return []Change{{Event: ChangeUpdate, Text: text, PreviousText: f.Text}}, nil
		}
	}
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	m.facts[subject] = append(m.facts[subject], Fact{
		ID:        subject + "-" + now.Format("150405.000000000"),
		Subject:   subject,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  meta,
	})
	return []Change{{Event: ChangeAdd, Text: text}}, nil
}

func (m *MockGateway) GetAll(ctx context.Context, subject string) (Collection, error) {
	if strings.TrimSpace(subject) == "" {
		return Collection{}, ErrMissingSubject
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := Collection{Facts: append([]Fact(nil), m.facts[subject]...)}
	return out, nil
}
