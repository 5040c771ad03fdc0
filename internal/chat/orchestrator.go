package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/recall/internal/gemini"
	"github.com/ent0n29/recall/internal/history"
	"github.com/ent0n29/recall/internal/memory"
	"github.com/ent0n29/recall/internal/observability"
	"github.com/ent0n29/recall/internal/protocol"
	"github.com/ent0n29/recall/internal/reliability"
	"github.com/ent0n29/recall/internal/session"
)

// SafetyNotice is shown to the user when the model blocks a reply. It is
// never committed to the transcript or reconciled into memory.
const SafetyNotice = "[Response blocked by safety settings]"

// errorPlaceholderPrefix marks assistant content that records a failure
// rather than a real reply. Placeholders are shown and transcribed but
// never reconciled into memory.
const errorPlaceholderPrefix = "Error: "

const archiveTimeout = 2 * time.Second

// Orchestrator drives the conversation turn lifecycle: retrieval,
// grounded generation, transcript commit, token accounting, and memory
// reconciliation. One orchestrator serves all sessions.
type Orchestrator struct {
	sessions    *session.Manager
	mem         memory.Gateway
	gen         gemini.Generator
	archive     history.Archive
	metrics     *observability.Metrics
	logger      *zap.Logger
	searchLimit int

	mu     sync.Mutex
	states map[string]*State
}

func NewOrchestrator(
	sessions *session.Manager,
	mem memory.Gateway,
	gen gemini.Generator,
	archive history.Archive,
	metrics *observability.Metrics,
	logger *zap.Logger,
	searchLimit int,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		sessions:    sessions,
		mem:         mem,
		gen:         gen,
		archive:     archive,
		metrics:     metrics,
		logger:      logger,
		searchLimit: searchLimit,
		states:      make(map[string]*State),
	}
}

// StateFor returns the conversation state for a session, creating it on
// first use.
func (o *Orchestrator) StateFor(sess *session.Session) *State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.states[sess.ID]; ok {
		return s
	}
	s := NewState(sess.ID, sess.Subject, sess.Email)
	o.states[sess.ID] = s
	return s
}

// Transcript returns a copy of the committed turns for a session.
func (o *Orchestrator) Transcript(sessionID string) ([]Turn, bool) {
	o.mu.Lock()
	s, ok := o.states[sessionID]
	o.mu.Unlock()
	if !ok {
		return nil, false
	}
	return s.Transcript(), true
}

// Usage returns the session's token ledger.
func (o *Orchestrator) Usage(sessionID string) (last, cumulative TokenUsage, ok bool) {
	o.mu.Lock()
	s, found := o.states[sessionID]
	o.mu.Unlock()
	if !found {
		return TokenUsage{}, TokenUsage{}, false
	}
	last, cumulative = s.Usage()
	return last, cumulative, true
}

// ResetSession clears the session's transcript and ledger.
func (o *Orchestrator) ResetSession(sessionID string) bool {
	o.mu.Lock()
	s, ok := o.states[sessionID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	s.Reset()
	if o.metrics != nil {
		o.metrics.SessionEvents.WithLabelValues("reset").Inc()
	}
	return true
}

// DropSession discards the session's conversation state. Called when the
// session ends or expires; archived history and long-term memory survive.
func (o *Orchestrator) DropSession(sessionID string) {
	o.mu.Lock()
	delete(o.states, sessionID)
	o.mu.Unlock()
}

// RunConnection serves one client connection: it consumes parsed client
// messages from inbound and emits server messages on outbound. Turns run
// sequentially; the next utterance is not read until the previous turn
// has fully settled.
func (o *Orchestrator) RunConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) error {
	state := o.StateFor(sess)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			switch m := msg.(type) {
			case protocol.UserUtterance:
				if strings.TrimSpace(m.Text) == "" {
					continue
				}
				_ = o.sessions.Touch(sess.ID)
				o.runTurn(ctx, sess, state, m.Text, outbound)
			case protocol.ClientControl:
				if m.Action != protocol.ActionReset {
					o.logger.Debug("ignoring unknown control action", zap.String("action", m.Action))
					continue
				}
				state.Reset()
				o.send(ctx, outbound, protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "conversation_reset"})
				o.send(ctx, outbound, protocol.TokenUsage{Type: protocol.TypeTokenUsage})
				if o.metrics != nil {
					o.metrics.SessionEvents.WithLabelValues("reset").Inc()
				}
			default:
				o.logger.Debug("ignoring unexpected inbound message")
			}
		}
	}
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *session.Session, state *State, text string, outbound chan<- any) {
	if !state.TryBeginTurn() {
		o.send(ctx, outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			Code:      "turn_in_flight",
			Retryable: true,
			Detail:    "a previous turn is still running",
		})
		return
	}
	defer state.EndTurn()

	turnID := uuid.NewString()
	_ = o.sessions.SetActiveTurn(sess.ID, turnID)
	defer func() { _ = o.sessions.SetActiveTurn(sess.ID, "") }()

	started := time.Now()
	o.send(ctx, outbound, protocol.TurnStarted{Type: protocol.TypeTurnStarted, TurnID: turnID})

	// The user turn commits before any network call so a failed turn
	// still leaves the utterance in the transcript.
	state.AppendTurn(RoleUser, text)
	o.archiveTurn(sess, RoleUser, text)

	facts, degraded, detail := o.recall(ctx, state, text)
	o.send(ctx, outbound, protocol.MemoryRecall{
		Type:     protocol.TypeMemoryRecall,
		TurnID:   turnID,
		Facts:    factTexts(facts),
		Degraded: degraded,
		Detail:   detail,
	})

	messages := BuildGroundedMessages(facts, state.Transcript())

	sawFirst := false
	reply, err := o.gen.StreamReply(ctx, messages, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		if !sawFirst {
			sawFirst = true
			if o.metrics != nil {
				o.metrics.ObserveFirstFragmentLatency(time.Since(started))
			}
		}
		o.send(ctx, outbound, protocol.AssistantDelta{Type: protocol.TypeAssistantDelta, TurnID: turnID, Text: fragment})
		return nil
	})
	if err != nil {
		o.failTurn(ctx, sess, state, turnID, err, outbound)
		return
	}

	// The ledger updates on every completed generation call, including
	// blocked and empty ones, before the reply is examined.
	state.ApplyUsage(TokenUsage(reply.Usage))
	last, cumulative := state.Usage()
	o.send(ctx, outbound, protocol.TokenUsage{
		Type:       protocol.TypeTokenUsage,
		TurnID:     turnID,
		Last:       protocol.TokenCounts(last),
		Cumulative: protocol.TokenCounts(cumulative),
	})
	if o.metrics != nil {
		o.metrics.Tokens.WithLabelValues("prompt").Add(float64(reply.Usage.Prompt))
		o.metrics.Tokens.WithLabelValues("response").Add(float64(reply.Usage.Response))
	}

	content := strings.TrimSpace(reply.Text)
	switch {
	case reply.SafetyBlocked:
		// The notice reaches the user only; the transcript keeps just the
		// user turn and nothing is reconciled.
		o.endTurn(ctx, outbound, turnID, protocol.ReasonSafetyBlocked, SafetyNotice)
		o.countTurn(protocol.ReasonSafetyBlocked)
		o.logger.Warn("reply blocked by safety settings",
			zap.String("session_id", sess.ID), zap.String("turn_id", turnID))
	case content == "":
		o.endTurn(ctx, outbound, turnID, protocol.ReasonEmpty, "")
		o.countTurn(protocol.ReasonEmpty)
	case strings.HasPrefix(content, "[Error"):
		// Placeholder text from the provider is surfaced but never
		// transcribed or reconciled.
		o.send(ctx, outbound, protocol.SystemEvent{
			Type:   protocol.TypeSystemEvent,
			Code:   "malformed_reply",
			Detail: content,
		})
		o.endTurn(ctx, outbound, turnID, protocol.ReasonError, content)
		o.countTurn(protocol.ReasonError)
	default:
		state.AppendTurn(RoleAssistant, content)
		o.archiveTurn(sess, RoleAssistant, content)
		o.endTurn(ctx, outbound, turnID, protocol.ReasonCompleted, content)
		o.countTurn(protocol.ReasonCompleted)
		o.reconcile(ctx, state, turnID, text, content, outbound)
	}
}

// failTurn handles a generation error: the failure is committed to the
// transcript as a placeholder, reported to the client, and the session
// returns to idle ready for the next utterance.
func (o *Orchestrator) failTurn(ctx context.Context, sess *session.Session, state *State, turnID string, err error, outbound chan<- any) {
	placeholder := errorPlaceholderPrefix + err.Error()
	state.AppendTurn(RoleAssistant, placeholder)
	o.archiveTurn(sess, RoleAssistant, placeholder)

	o.send(ctx, outbound, protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		TurnID:    turnID,
		Code:      "generation_failed",
		Source:    "gemini",
		Retryable: isRetryable(err),
		Detail:    err.Error(),
	})
	o.endTurn(ctx, outbound, turnID, protocol.ReasonError, placeholder)
	o.countTurn(protocol.ReasonError)
	if o.metrics != nil {
		o.metrics.ProviderErrors.WithLabelValues("gemini", "stream").Inc()
	}
	o.logger.Error("generation failed",
		zap.String("session_id", sess.ID), zap.String("turn_id", turnID), zap.Error(err))
}

// recall searches long-term memory. Any failure degrades the turn to
// zero facts instead of aborting it.
func (o *Orchestrator) recall(ctx context.Context, state *State, query string) (facts []memory.Fact, degraded bool, detail string) {
	facts, err := o.mem.Search(ctx, query, state.Subject(), o.searchLimit)
	if err == nil {
		return facts, false, ""
	}
	if o.metrics != nil {
		o.metrics.RetrievalDegraded.Inc()
		o.metrics.ProviderErrors.WithLabelValues("memory", "search").Inc()
	}
	o.logger.Warn("memory search degraded", zap.String("session_id", state.SessionID()), zap.Error(err))
	return nil, true, err.Error()
}

// reconcile submits the finished turn pair to the memory store. Failures
// are reported as a warning; the turn stays committed either way.
func (o *Orchestrator) reconcile(ctx context.Context, state *State, turnID, userText, assistantText string, outbound chan<- any) {
	pair := memory.TurnPair{UserText: userText, AssistantText: assistantText}
	metadata := map[string]string{"email": state.Email()}

	changes, err := o.mem.Upsert(ctx, pair, state.Subject(), metadata)
	if err != nil {
		o.send(ctx, outbound, protocol.SystemEvent{
			Type:   protocol.TypeSystemEvent,
			Code:   "memory_update_failed",
			Detail: err.Error(),
		})
		if o.metrics != nil {
			o.metrics.ProviderErrors.WithLabelValues("memory", upsertErrorCode(err)).Inc()
		}
		o.logger.Warn("memory reconciliation failed",
			zap.String("session_id", state.SessionID()), zap.String("turn_id", turnID), zap.Error(err))
		return
	}

	o.send(ctx, outbound, protocol.MemoryChanges{Type: protocol.TypeMemoryChanges, TurnID: turnID, Changes: changes})
	if o.metrics != nil {
		for _, c := range changes {
			o.metrics.MemoryChanges.WithLabelValues(string(c.Event)).Inc()
		}
	}
}

// archiveTurn persists one committed turn to durable history without
// blocking the pipeline. Failures are logged and dropped.
func (o *Orchestrator) archiveTurn(sess *session.Session, role Role, content string) {
	if o.archive == nil {
		return
	}
	turn := history.ArchivedTurn{
		Subject:   sess.Subject,
		SessionID: sess.ID,
		Role:      string(role),
		Content:   content,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := o.archive.SaveTurn(ctx, turn); err != nil {
			o.logger.Warn("archiving turn failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}()
}

func (o *Orchestrator) endTurn(ctx context.Context, outbound chan<- any, turnID, reason, content string) {
	o.send(ctx, outbound, protocol.AssistantTurnEnd{
		Type:    protocol.TypeAssistantTurnEnd,
		TurnID:  turnID,
		Reason:  reason,
		Content: content,
	})
}

func (o *Orchestrator) countTurn(outcome string) {
	if o.metrics != nil {
		o.metrics.Turns.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) send(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	case <-ctx.Done():
	}
}

func factTexts(facts []memory.Fact) []string {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		out = append(out, f.Text)
	}
	return out
}

func upsertErrorCode(err error) string {
	var status *memory.StatusError
	if errors.As(err, &status) {
		return "upsert_" + strconv.Itoa(status.Code)
	}
	return "upsert"
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var status *memory.StatusError
	if errors.As(err, &status) {
		return reliability.IsRetryableHTTPStatus(status.Code)
	}
	return false
}
