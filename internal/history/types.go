package history

import (
	"context"
	"time"
)

// ArchivedTurn is a single user or assistant turn persisted beyond the
// lifetime of the in-memory session transcript.
type ArchivedTurn struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive persists and retrieves durable conversation history.
type Archive interface {
	SaveTurn(ctx context.Context, turn ArchivedTurn) error
	RecentTurns(ctx context.Context, subject string, limit int) ([]ArchivedTurn, error)
	Close() error
}
