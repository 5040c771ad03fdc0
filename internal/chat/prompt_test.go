package chat

import (
	"strings"
	"testing"

	"github.com/ent0n29/recall/internal/gemini"
	"github.com/ent0n29/recall/internal/memory"
)

func TestBuildGroundedMessagesWithFacts(t *testing.T) {
	facts := []memory.Fact{
		{Text: "Favorite color is blue"},
		{Text: "Lives in Lisbon"},
	}
	transcript := []Turn{{Role: RoleUser, Content: "what is my favorite color?"}}

	msgs := BuildGroundedMessages(facts, transcript)
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	preamble := msgs[0].Content
	if !strings.Contains(preamble, "Relevant User Memories:") {
		t.Fatalf("preamble missing memories header: %q", preamble)
	}
	if !strings.Contains(preamble, "- Favorite color is blue\n") {
		t.Fatalf("preamble missing fact line: %q", preamble)
	}
	if !strings.Contains(preamble, "- Lives in Lisbon\n") {
		t.Fatalf("preamble missing fact line: %q", preamble)
	}
	if msgs[1].Role != gemini.RoleUser || msgs[1].Content != "what is my favorite color?" {
		t.Fatalf("msgs[1] = %+v", msgs[1])
	}
}

func TestBuildGroundedMessagesNoFacts(t *testing.T) {
	msgs := BuildGroundedMessages(nil, []Turn{{Role: RoleUser, Content: "hello"}})

	preamble := msgs[0].Content
	if !strings.Contains(preamble, noMemoriesMarker) {
		t.Fatalf("preamble missing marker: %q", preamble)
	}
	if strings.Contains(preamble, "- ") {
		t.Fatalf("preamble has fact lines with no facts: %q", preamble)
	}
}

func TestBuildGroundedMessagesMapsRoles(t *testing.T) {
	transcript := []Turn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "bye"},
	}

	msgs := BuildGroundedMessages(nil, transcript)
	if len(msgs) != 4 {
		t.Fatalf("len(msgs) = %d, want 4", len(msgs))
	}
	wantRoles := []gemini.Role{gemini.RoleUser, gemini.RoleUser, gemini.RoleAssistant, gemini.RoleUser}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Fatalf("msgs[%d].Role = %q, want %q", i, msgs[i].Role, want)
		}
	}
}
