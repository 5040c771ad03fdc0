package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryArchive keeps turns in process memory. Used when DATABASE_URL is
// not configured; history then lives only as long as the process.
type InMemoryArchive struct {
	mu    sync.Mutex
	turns map[string][]ArchivedTurn
}

func NewInMemoryArchive() *InMemoryArchive {
	return &InMemoryArchive{turns: make(map[string][]ArchivedTurn)}
}

func (a *InMemoryArchive) SaveTurn(ctx context.Context, turn ArchivedTurn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns[turn.Subject] = append(a.turns[turn.Subject], turn)
	return nil
}

func (a *InMemoryArchive) RecentTurns(ctx context.Context, subject string, limit int) ([]ArchivedTurn, error) {
	if limit <= 0 {
		limit = 20
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	all := a.turns[subject]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]ArchivedTurn, len(all))
	copy(out, all)
	return out, nil
}

func (a *InMemoryArchive) Close() error {
	return nil
}
