package gemini

import (
	"context"
	"sync"
)

// MockGenerator replays scripted fragments, for development and tests.
type MockGenerator struct {
	mu sync.Mutex

	// Fragments are yielded in order; the reply text is their concatenation.
	Fragments []string
	// Blocked simulates a safety halt.
	Blocked bool
	// Usage is attached to the reply when non-zero.
	Usage TokenUsage
	// Err aborts the stream before any fragment when set.
	Err error

	// Requests records every message list received, newest last.
	Requests [][]Message
}

func NewMockGenerator(fragments ...string) *MockGenerator {
	return &MockGenerator{Fragments: fragments}
}

func (m *MockGenerator) StreamReply(ctx context.Context, messages []Message, onFragment FragmentHandler) (Reply, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, append([]Message(nil), messages...))
	fragments := append([]string(nil), m.Fragments...)
	blocked := m.Blocked
	usage := m.Usage
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return Reply{}, err
	}
	if blocked {
		return Reply{SafetyBlocked: true, FinishReason: "SAFETY", Usage: usage}, nil
	}

	var text string
	for _, f := range fragments {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		text += f
		if onFragment != nil {
			if err := onFragment(f); err != nil {
				return Reply{}, err
			}
		}
	}
	return Reply{Text: text, FinishReason: "STOP", Usage: usage}, nil
}

// LastRequest returns the most recent message list, or nil.
func (m *MockGenerator) LastRequest() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}
