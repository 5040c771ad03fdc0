package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	searchTimeout = 15 * time.Second
	upsertTimeout = 30 * time.Second
	listTimeout   = 15 * time.Second
)

// Client talks to a mem0-compatible memory service over REST. One client is
// created per process and reused across turns; the underlying http.Client
// pools connections.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("memory service base URL is required")
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

type wireFact struct {
	ID           string         `json:"id"`
	Memory       string         `json:"memory"`
	UserID       string         `json:"user_id"`
	Score        float64        `json:"score"`
	Event        string         `json:"event"`
	PrevMemory   string         `json:"previous_memory"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Metadata     map[string]any `json:"metadata"`
	Relationship string         `json:"relationship"`
}

type wireRelation struct {
	Source       string `json:"source"`
	Relationship string `json:"relationship"`
	Target       string `json:"target"`
}

type wireEnvelope struct {
	Results   []wireFact     `json:"results"`
	Relations []wireRelation `json:"relations"`
}

type addRequest struct {
	Messages []wireMessage     `json:"messages"`
	UserID   string            `json:"user_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Search returns ranked facts for the subject. Every failure of the
// retrieval step, transport or remote, is wrapped as *RetrievalDegradedError
// so callers can continue with zero facts.
func (c *Client) Search(ctx context.Context, query, subject string, limit int) ([]Fact, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, ErrMissingSubject
	}
	if limit <= 0 {
		limit = 5
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	var env wireEnvelope
	err := c.post(ctx, "/v1/memories/search/", searchRequest{
		Query:  query,
		UserID: subject,
		Limit:  limit,
	}, &env)
	if err != nil {
		return nil, &RetrievalDegradedError{Cause: err}
	}

	facts := make([]Fact, 0, len(env.Results))
	for _, r := range env.Results {
		facts = append(facts, factFromWire(r, subject))
	}
	return facts, nil
}

// Upsert submits a completed turn pair for reconciliation.
func (c *Client) Upsert(ctx context.Context, pair TurnPair, subject string, metadata map[string]string) ([]Change, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, ErrMissingSubject
	}

	ctx, cancel := context.WithTimeout(ctx, upsertTimeout)
	defer cancel()

	var env wireEnvelope
	err := c.post(ctx, "/v1/memories/", addRequest{
		Messages: []wireMessage{
			{Role: "user", Content: pair.UserText},
			{Role: "assistant", Content: pair.AssistantText},
		},
		UserID:   subject,
		Metadata: metadata,
	}, &env)
	if err != nil {
		return nil, fmt.Errorf("memory upsert: %w", err)
	}

	changes := make([]Change, 0, len(env.Results))
	for _, r := range env.Results {
		switch ChangeEvent(strings.ToUpper(strings.TrimSpace(r.Event))) {
		case ChangeAdd:
			changes = append(changes, Change{Event: ChangeAdd, Text: r.Memory})
		case ChangeUpdate:
			changes = append(changes, Change{Event: ChangeUpdate, Text: r.Memory, PreviousText: r.PrevMemory})
		case ChangeDelete:
			changes = append(changes, Change{Event: ChangeDelete, Text: r.Memory})
		default:
			// Unknown event tags (e.g. NOOP) carry no change worth reporting.
		}
	}
	return changes, nil
}

// GetAll returns every fact and relation stored for the subject.
func (c *Client) GetAll(ctx context.Context, subject string) (Collection, error) {
	if strings.TrimSpace(subject) == "" {
		return Collection{}, ErrMissingSubject
	}

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/memories/?user_id="+subject, nil)
	if err != nil {
		return Collection{}, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	res, err := c.http.Do(req)
	if err != nil {
		return Collection{}, fmt.Errorf("list memories: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Collection{}, c.statusError(res)
	}

	var env wireEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return Collection{}, fmt.Errorf("decode memories: %w", err)
	}

	out := Collection{
		Facts:     make([]Fact, 0, len(env.Results)),
		Relations: make([]Relation, 0, len(env.Relations)),
	}
	for _, r := range env.Results {
		out.Facts = append(out.Facts, factFromWire(r, subject))
	}
	for _, r := range env.Relations {
		out.Relations = append(out.Relations, Relation{
			Source:       r.Source,
			Relationship: r.Relationship,
			Target:       r.Target,
		})
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return c.statusError(res)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}
}

// StatusError reports a non-2xx reply from the memory service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("memory service status %d: %s", e.Code, e.Body)
}

func (c *Client) statusError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
}

func factFromWire(r wireFact, subject string) Fact {
	return Fact{
		ID:        r.ID,
		Subject:   subject,
		Text:      r.Memory,
		Score:     r.Score,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Metadata:  r.Metadata,
	}
}
