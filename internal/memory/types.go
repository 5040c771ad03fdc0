package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Fact is one durable memory held by the remote memory service. Facts are
// always scoped to exactly one subject; the service owns their lifecycle and
// this package never constructs or mutates them locally.
type Fact struct {
	ID        string         `json:"id"`
	Subject   string         `json:"subject"`
	Text      string         `json:"text"`
	Score     float64        `json:"score,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ChangeEvent tags how an upsert mutated the backing store for one fact.
type ChangeEvent string

const (
	ChangeAdd    ChangeEvent = "ADD"
	ChangeUpdate ChangeEvent = "UPDATE"
	ChangeDelete ChangeEvent = "DELETE"
)

// Change describes one fact-level mutation produced by Upsert.
// PreviousText is populated only for ChangeUpdate.
type Change struct {
	Event        ChangeEvent `json:"event"`
	Text         string      `json:"text"`
	PreviousText string      `json:"previous_text,omitempty"`
}

// Relation is one graph edge between two entities extracted by the remote
// service (source --relationship--> target).
type Relation struct {
	Source       string `json:"source"`
	Relationship string `json:"relationship"`
	Target       string `json:"target"`
}

// Collection is the full memory holding of one subject: ranked facts plus
// extracted graph relations.
type Collection struct {
	Facts     []Fact     `json:"facts"`
	Relations []Relation `json:"relations"`
}

// TurnPair is the completed exchange submitted for reconciliation.
type TurnPair struct {
	UserText      string
	AssistantText string
}

// ErrMissingSubject guards the per-user isolation boundary: no gateway call
// may run without a subject identifier.
var ErrMissingSubject = errors.New("memory: subject identifier is required")

// RetrievalDegradedError marks a failed memory search that the caller should
// absorb by continuing with zero facts. Any retrieval-step failure is wrapped
// this way, not just the remote ranking error that motivated it.
type RetrievalDegradedError struct {
	Cause error
}

func (e *RetrievalDegradedError) Error() string {
	return fmt.Sprintf("memory retrieval degraded: %v", e.Cause)
}

func (e *RetrievalDegradedError) Unwrap() error { return e.Cause }

// IsRetrievalDegraded reports whether err is a degraded-retrieval condition.
func IsRetrievalDegraded(err error) bool {
	var degraded *RetrievalDegradedError
	return errors.As(err, &degraded)
}

// Gateway is the capability-typed client for the remote memory service.
type Gateway interface {
	// Search returns ranked facts relevant to query for the subject.
	// No results is an empty slice, not an error. Failures are reported as
	// *RetrievalDegradedError and are not fatal to the turn.
	Search(ctx context.Context, query, subject string, limit int) ([]Fact, error)

	// Upsert submits a completed turn pair for fact reconciliation and
	// returns the resulting change list. The remote service decides what to
	// add, update, or delete; this client only surfaces the outcome.
	Upsert(ctx context.Context, pair TurnPair, subject string, metadata map[string]string) ([]Change, error)

	// GetAll returns every fact and relation stored for the subject.
	GetAll(ctx context.Context, subject string) (Collection, error)
}
