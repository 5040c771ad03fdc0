package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessageUtterance(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"user_utterance","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	utt, ok := msg.(UserUtterance)
	if !ok {
		t.Fatalf("ParseClientMessage() = %T, want UserUtterance", msg)
	}
	if utt.Text != "hello" {
		t.Fatalf("Text = %q, want hello", utt.Text)
	}
}

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"reset"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	ctl, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("ParseClientMessage() = %T, want ClientControl", msg)
	}
	if ctl.Action != ActionReset {
		t.Fatalf("Action = %q, want %q", ctl.Action, ActionReset)
	}
}

func TestParseClientMessageUnknownType(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"bogus"}`)); err == nil {
		t.Fatal("ParseClientMessage() error = nil for unknown type")
	}
}

func TestParseClientMessageMalformed(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Fatal("ParseClientMessage() error = nil for malformed frame")
	}
}

func TestServerMessageWireShape(t *testing.T) {
	end := AssistantTurnEnd{Type: TypeAssistantTurnEnd, TurnID: "t1", Reason: ReasonCompleted, Content: "hi"}
	data, err := json.Marshal(end)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["type"] != TypeAssistantTurnEnd || decoded["reason"] != ReasonCompleted {
		t.Fatalf("wire shape = %v", decoded)
	}
}

func TestMessageTypeOf(t *testing.T) {
	msg := ErrorEvent{Type: TypeErrorEvent, Code: "generation_failed"}
	if got := MessageTypeOf(msg); got != TypeErrorEvent {
		t.Fatalf("MessageTypeOf() = %q, want %q", got, TypeErrorEvent)
	}
	if got := MessageTypeOf(42); got != "unknown" {
		t.Fatalf("MessageTypeOf(42) = %q, want unknown", got)
	}
}
