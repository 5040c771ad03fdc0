package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchReturnsRankedFacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/memories/search/" {
			t.Errorf("path = %q, want /v1/memories/search/", r.URL.Path)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.UserID != "u1" || req.Limit != 5 {
			t.Errorf("request = %+v, want user_id=u1 limit=5", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "m1", "memory": "Favorite color is blue", "score": 0.91},
				{"id": "m2", "memory": "Lives in Paris", "score": 0.55},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "key")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	facts, err := c.Search(context.Background(), "what is my favorite color?", "u1", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("len(facts) = %d, want 2", len(facts))
	}
	if facts[0].Text != "Favorite color is blue" || facts[0].Subject != "u1" {
		t.Fatalf("unexpected first fact: %+v", facts[0])
	}
}

func TestSearchFailureIsRetrievalDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "list index out of range", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = c.Search(context.Background(), "q", "u1", 5)
	if err == nil {
		t.Fatalf("Search() should fail on remote 500")
	}
	if !IsRetrievalDegraded(err) {
		t.Fatalf("Search() error = %v, want RetrievalDegradedError", err)
	}
}

func TestSearchEmptyResultsIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	facts, err := c.Search(context.Background(), "q", "u1", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("len(facts) = %d, want 0", len(facts))
	}
}

func TestSearchRequiresSubject(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := c.Search(context.Background(), "q", "", 5); err != ErrMissingSubject {
		t.Fatalf("Search() error = %v, want ErrMissingSubject", err)
	}
}

func TestUpsertDecodesChangeVariants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/memories/" {
			t.Errorf("path = %q, want /v1/memories/", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token key" {
			t.Errorf("Authorization = %q, want %q", got, "Token key")
		}
		var req addRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "user" || req.Messages[1].Role != "assistant" {
			t.Errorf("messages = %+v, want user+assistant pair", req.Messages)
		}
		if req.Metadata["email"] != "u1@example.com" {
			t.Errorf("metadata = %+v, want email set", req.Metadata)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"memory": "Favorite color is blue", "event": "ADD"},
				{"memory": "Lives in Lyon", "event": "UPDATE", "previous_memory": "Lives in Paris"},
				{"memory": "Dislikes blue", "event": "DELETE"},
				{"memory": "noise", "event": "NONE"},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "key")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	changes, err := c.Upsert(context.Background(), TurnPair{
		UserText:      "My favorite color is blue.",
		AssistantText: "Noted!",
	}, "u1", map[string]string{"email": "u1@example.com"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("len(changes) = %d, want 3 (unknown events dropped)", len(changes))
	}
	if changes[0].Event != ChangeAdd || changes[0].Text != "Favorite color is blue" {
		t.Fatalf("changes[0] = %+v, want ADD", changes[0])
	}
	if changes[1].Event != ChangeUpdate || changes[1].PreviousText != "Lives in Paris" {
		t.Fatalf("changes[1] = %+v, want UPDATE with previous text", changes[1])
	}
	if changes[2].Event != ChangeDelete {
		t.Fatalf("changes[2] = %+v, want DELETE", changes[2])
	}
}

func TestGetAllReturnsFactsAndRelations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if got := r.URL.Query().Get("user_id"); got != "u1" {
			t.Errorf("user_id = %q, want u1", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "m1", "memory": "Lives in Paris"},
			},
			"relations": []map[string]any{
				{"source": "u1", "relationship": "lives_in", "target": "paris"},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	col, err := c.GetAll(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(col.Facts) != 1 || len(col.Relations) != 1 {
		t.Fatalf("collection = %+v, want 1 fact and 1 relation", col)
	}
	if col.Relations[0].Relationship != "lives_in" {
		t.Fatalf("relation = %+v, want lives_in", col.Relations[0])
	}
}
