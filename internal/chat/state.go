package chat

import (
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one committed transcript entry.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenUsage is the token ledger unit: counts for a single generation
// call or the running session total.
type TokenUsage struct {
	Prompt   int `json:"prompt"`
	Response int `json:"response"`
	Total    int `json:"total"`
}

func (u TokenUsage) add(other TokenUsage) TokenUsage {
	return TokenUsage{
		Prompt:   u.Prompt + other.Prompt,
		Response: u.Response + other.Response,
		Total:    u.Total + other.Total,
	}
}

// State holds the per-session conversation state: the append-only
// transcript and the token ledger. A session runs at most one turn at
// a time; TryBeginTurn enforces that.
type State struct {
	mu         sync.Mutex
	sessionID  string
	subject    string
	email      string
	turns      []Turn
	last       TokenUsage
	cumulative TokenUsage
	inFlight   bool
}

func NewState(sessionID, subject, email string) *State {
	return &State{
		sessionID: sessionID,
		subject:   subject,
		email:     email,
	}
}

func (s *State) SessionID() string { return s.sessionID }
func (s *State) Subject() string   { return s.subject }
func (s *State) Email() string     { return s.email }

// TryBeginTurn claims the session for a new turn. It fails while a
// previous turn is still running.
func (s *State) TryBeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

func (s *State) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}

// AppendTurn commits one entry to the transcript and returns it.
func (s *State) AppendTurn(role Role, content string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Turn{Role: role, Content: content, Timestamp: time.Now().UTC()}
	s.turns = append(s.turns, t)
	return t
}

// Transcript returns a copy of the committed turns in order.
func (s *State) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// ApplyUsage records the counts from one generation call: the last-turn
// slot is replaced, the cumulative totals grow monotonically.
func (s *State) ApplyUsage(u TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = u
	s.cumulative = s.cumulative.add(u)
}

// Usage returns the last-turn counts and the session totals.
func (s *State) Usage() (last, cumulative TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.cumulative
}

// Reset clears the transcript and zeroes the ledger. Long-term memory
// is not touched; only the live conversation restarts.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.last = TokenUsage{}
	s.cumulative = TokenUsage{}
}
