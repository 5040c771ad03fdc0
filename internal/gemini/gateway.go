package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Role tags one side of the conversation in a generation request.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of the grounded prompt.
type Message struct {
	Role    Role
	Content string
}

// TokenUsage carries the post-hoc token counters of one generation call.
type TokenUsage struct {
	Prompt   int
	Response int
	Total    int
}

// Reply is the outcome of a fully consumed generation stream.
type Reply struct {
	Text          string
	SafetyBlocked bool
	FinishReason  string
	Usage         TokenUsage
}

// FragmentHandler receives streaming text fragments as they arrive.
type FragmentHandler func(fragment string) error

// Generator streams a model reply for an ordered message list. The stream is
// consumed exactly once; callers get incremental fragments through onFragment
// and the accumulated outcome in Reply.
type Generator interface {
	StreamReply(ctx context.Context, messages []Message, onFragment FragmentHandler) (Reply, error)
}

// Gateway generates replies through the Gemini API. One gateway is created
// per process and reused across turns.
type Gateway struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGateway(ctx context.Context, apiKey, model string, temperature float64) (*Gateway, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-1.5-flash-latest"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gateway{
		client:      client,
		model:       model,
		temperature: float32(temperature),
	}, nil
}

// StreamReply sends the messages and consumes the resulting stream to
// exhaustion. Chunks that carry no decodable text yield an empty fragment so
// the stream still completes with whatever content did arrive. A safety halt
// is reported through Reply.SafetyBlocked, not as an error.
func (g *Gateway) StreamReply(ctx context.Context, messages []Message, onFragment FragmentHandler) (Reply, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(g.temperature),
		SafetySettings: defaultSafetySettings(),
	}

	var (
		out           strings.Builder
		reply         Reply
		finish        genai.FinishReason
		sawCandidate  bool
		promptBlocked bool
	)

	for chunk, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
		if err != nil {
			return Reply{}, fmt.Errorf("gemini stream: %w", err)
		}

		if pf := chunk.PromptFeedback; pf != nil && pf.BlockReason != "" && pf.BlockReason != genai.BlockedReasonUnspecified {
			promptBlocked = true
		}
		if u := chunk.UsageMetadata; u != nil {
			reply.Usage = TokenUsage{
				Prompt:   int(u.PromptTokenCount),
				Response: int(u.CandidatesTokenCount),
				Total:    int(u.TotalTokenCount),
			}
		}

		text, ok := chunkText(chunk)
		if len(chunk.Candidates) > 0 {
			sawCandidate = true
			if fr := chunk.Candidates[0].FinishReason; fr != "" {
				finish = fr
			}
		}
		if !ok {
			// Undecodable chunk: surface an empty fragment so downstream
			// accumulation still completes with a (possibly partial) string.
			if onFragment != nil {
				if err := onFragment(""); err != nil {
					return Reply{}, err
				}
			}
			continue
		}

		out.WriteString(text)
		if onFragment != nil {
			if err := onFragment(text); err != nil {
				return Reply{}, err
			}
		}
	}

	reply.Text = out.String()
	reply.FinishReason = string(finish)
	reply.SafetyBlocked = promptBlocked ||
		finish == genai.FinishReasonSafety ||
		(!sawCandidate && reply.Text == "") ||
		(reply.Text == "" && finish != genai.FinishReasonStop)
	return reply, nil
}

func chunkText(chunk *genai.GenerateContentResponse) (string, bool) {
	if chunk == nil || len(chunk.Candidates) == 0 {
		return "", false
	}
	content := chunk.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", false
	}
	var b strings.Builder
	found := false
	for _, p := range content.Parts {
		if p == nil || p.Text == "" {
			continue
		}
		b.WriteString(p.Text)
		found = true
	}
	return b.String(), found
}

// The four harm categories are gated at BLOCK_MEDIUM_AND_ABOVE, matching the
// thresholds the service was tuned against.
func defaultSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		})
	}
	return settings
}
