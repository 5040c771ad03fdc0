package chat

import (
	"strings"

	"github.com/ent0n29/recall/internal/gemini"
	"github.com/ent0n29/recall/internal/memory"
)

const systemPreamble = "You are a helpful AI assistant. " +
	"Answer the user's query based on the query and the following potentially relevant past memories. " +
	"If the memories are not relevant, answer the query directly. " +
	"Do not answer with memories that are not relevant to the query."

// noMemoriesMarker stands in for the fact list when retrieval returned
// nothing or was degraded.
const noMemoriesMarker = "no relevant memories"

// BuildGroundedMessages assembles the generation request: a grounding
// preamble listing the recalled facts, followed by the full transcript
// including the utterance that started the turn.
func BuildGroundedMessages(facts []memory.Fact, transcript []Turn) []gemini.Message {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nRelevant User Memories:\n")
	if len(facts) == 0 {
		b.WriteString(noMemoriesMarker)
	} else {
		for _, f := range facts {
			b.WriteString("- ")
			b.WriteString(f.Text)
			b.WriteString("\n")
		}
	}

	msgs := make([]gemini.Message, 0, len(transcript)+1)
	msgs = append(msgs, gemini.Message{Role: gemini.RoleUser, Content: b.String()})
	for _, t := range transcript {
		role := gemini.RoleUser
		if t.Role == RoleAssistant {
			role = gemini.RoleAssistant
		}
		msgs = append(msgs, gemini.Message{Role: role, Content: t.Content})
	}
	return msgs
}
