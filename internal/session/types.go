package session

import "time"

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session tracks one authenticated chat session.
type Session struct {
	ID             string    `json:"id"`
	Subject        string    `json:"subject"`
	Email          string    `json:"email"`
	Status         Status    `json:"status"`
	ActiveTurnID   string    `json:"active_turn_id,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func (s *Session) clone() *Session {
	c := *s
	return &c
}
