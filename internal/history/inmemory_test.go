package history

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryArchiveSaveAndRecent(t *testing.T) {
	a := NewInMemoryArchive()
	ctx := context.Background()

	for i, content := range []string{"one", "two", "three"} {
		err := a.SaveTurn(ctx, ArchivedTurn{
			Subject:   "u1",
			SessionID: "s1",
			Role:      "user",
			Content:   content,
			CreatedAt: time.Unix(int64(i), 0),
		})
		if err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	turns, err := a.RecentTurns(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[0].Content != "two" || turns[1].Content != "three" {
		t.Fatalf("turns = %+v, want chronological tail [two three]", turns)
	}
}

func TestInMemoryArchiveIsolatesSubjects(t *testing.T) {
	a := NewInMemoryArchive()
	ctx := context.Background()

	if err := a.SaveTurn(ctx, ArchivedTurn{Subject: "u1", Role: "user", Content: "secret"}); err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}

	turns, err := a.RecentTurns(ctx, "u2", 10)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("len(turns) = %d for other subject, want 0", len(turns))
	}
}

func TestInMemoryArchiveAssignsIDs(t *testing.T) {
	a := NewInMemoryArchive()
	ctx := context.Background()

	if err := a.SaveTurn(ctx, ArchivedTurn{Subject: "u1", Role: "user", Content: "x"}); err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}
	turns, err := a.RecentTurns(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if turns[0].ID == "" || turns[0].CreatedAt.IsZero() {
		t.Fatalf("turn = %+v, want generated ID and timestamp", turns[0])
	}
}
