// Package protocol defines the JSON messages exchanged over the chat
// WebSocket. Client messages arrive as an envelope with a type tag;
// server messages carry their type inline so the writer can marshal
// them directly.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/ent0n29/recall/internal/memory"
)

const (
	// Client to server.
	TypeUserUtterance = "user_utterance"
	TypeClientControl = "client_control"

	// Server to client.
	TypeTurnStarted       = "turn_started"
	TypeMemoryRecall      = "memory_recall"
	TypeAssistantDelta    = "assistant_text_delta"
	TypeAssistantTurnEnd  = "assistant_turn_end"
	TypeMemoryChanges     = "memory_changes"
	TypeTokenUsage        = "token_usage"
	TypeSystemEvent       = "system_event"
	TypeErrorEvent        = "error_event"
)

// Turn end reasons.
const (
	ReasonCompleted     = "completed"
	ReasonSafetyBlocked = "safety_blocked"
	ReasonEmpty         = "empty"
	ReasonError         = "error"
)

// Control actions.
const (
	ActionReset = "reset"
)

// UserUtterance is one user message starting a conversation turn.
type UserUtterance struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientControl carries out-of-band session commands such as reset.
type ClientControl struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

// TurnStarted acknowledges an utterance and names the new turn.
type TurnStarted struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id"`
}

// MemoryRecall reports the facts retrieved to ground the turn. Degraded
// means retrieval failed and the turn proceeds without memories.
type MemoryRecall struct {
	Type     string   `json:"type"`
	TurnID   string   `json:"turn_id"`
	Facts    []string `json:"facts"`
	Degraded bool     `json:"degraded"`
	Detail   string   `json:"detail,omitempty"`
}

// AssistantDelta is one streamed fragment of the assistant reply.
type AssistantDelta struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id"`
	Text   string `json:"text"`
}

// AssistantTurnEnd closes the turn. Content carries the full reply for
// completed turns, the safety notice for blocked turns, and the error
// placeholder for failed turns.
type AssistantTurnEnd struct {
	Type    string `json:"type"`
	TurnID  string `json:"turn_id"`
	Reason  string `json:"reason"`
	Content string `json:"content,omitempty"`
}

// MemoryChanges reports the fact changes produced by reconciling the
// finished turn into the memory store.
type MemoryChanges struct {
	Type    string          `json:"type"`
	TurnID  string          `json:"turn_id"`
	Changes []memory.Change `json:"changes"`
}

// TokenCounts mirrors the usage totals reported by the generation service.
type TokenCounts struct {
	Prompt   int `json:"prompt"`
	Response int `json:"response"`
	Total    int `json:"total"`
}

// TokenUsage reports the ledger after a turn: the last turn's counts and
// the running session totals.
type TokenUsage struct {
	Type       string      `json:"type"`
	TurnID     string      `json:"turn_id,omitempty"`
	Last       TokenCounts `json:"last"`
	Cumulative TokenCounts `json:"cumulative"`
}

// SystemEvent is a non-fatal notice such as a reset confirmation or a
// reconciliation warning.
type SystemEvent struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// ErrorEvent reports a turn failure to the client.
type ErrorEvent struct {
	Type      string `json:"type"`
	TurnID    string `json:"turn_id,omitempty"`
	Code      string `json:"code"`
	Source    string `json:"source,omitempty"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail,omitempty"`
}

type envelope struct {
	Type string `json:"type"`
}

// ParseClientMessage decodes one inbound WebSocket frame into a typed
// client message.
func ParseClientMessage(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeUserUtterance:
		var msg UserUtterance
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown client message type %q", env.Type)
	}
}

// MessageTypeOf reports the wire type of a server message, for logging.
func MessageTypeOf(msg any) string {
	switch m := msg.(type) {
	case TurnStarted:
		return m.Type
	case MemoryRecall:
		return m.Type
	case AssistantDelta:
		return m.Type
	case AssistantTurnEnd:
		return m.Type
	case MemoryChanges:
		return m.Type
	case TokenUsage:
		return m.Type
	case SystemEvent:
		return m.Type
	case ErrorEvent:
		return m.Type
	default:
		return "unknown"
	}
}
