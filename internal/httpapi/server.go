// Package httpapi exposes the chat service over HTTP: a JSON API for
// auth and session management, and a WebSocket carrying the streaming
// conversation protocol.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/recall/internal/auth"
	"github.com/ent0n29/recall/internal/chat"
	"github.com/ent0n29/recall/internal/history"
	"github.com/ent0n29/recall/internal/memory"
	"github.com/ent0n29/recall/internal/observability"
	"github.com/ent0n29/recall/internal/protocol"
	"github.com/ent0n29/recall/internal/session"
)

type Server struct {
	authProvider   auth.Provider
	mem            memory.Gateway
	orch           *chat.Orchestrator
	sessions       *session.Manager
	archive        history.Archive
	metrics        *observability.Metrics
	logger         *zap.Logger
	model          string
	embeddingModel string
	upgrader       websocket.Upgrader

	mu         sync.Mutex
	authTokens map[string]auth.Session
}

type Options struct {
	// AllowAnyOrigin disables the same-host origin check on the
	// WebSocket upgrade. Development only.
	AllowAnyOrigin bool
	// Model is the generation model name reported by /v1/models.
	Model string
	// EmbeddingModel is the embedding model name reported alongside it.
	EmbeddingModel string
}

func NewServer(
	authProvider auth.Provider,
	mem memory.Gateway,
	orch *chat.Orchestrator,
	sessions *session.Manager,
	archive history.Archive,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts Options,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		authProvider:   authProvider,
		mem:            mem,
		orch:           orch,
		sessions:       sessions,
		archive:        archive,
		metrics:        metrics,
		logger:         logger,
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		authTokens:     make(map[string]auth.Session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if opts.AllowAnyOrigin {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Post("/chat/session", s.handleCreateSession)
		r.Post("/chat/session/{id}/reset", s.handleResetSession)
		r.Post("/chat/session/{id}/end", s.handleEndSession)
		r.Get("/chat/session/{id}/transcript", s.handleTranscript)
		r.Get("/chat/session/{id}/usage", s.handleUsage)
		r.Get("/chat/session/{id}/history", s.handleHistory)
		r.Get("/chat/ws", s.handleChatSocket)

		r.Get("/memories", s.handleMemories)
		r.Get("/memories/graph", s.handleMemoryGraph)
		r.Get("/models", s.handleModels)
	})
	return r
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Subject   string `json:"subject"`
	Email     string `json:"email"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.authProvider.SignUp(r.Context(), req.Email, req.Password); err != nil {
		s.respondAuthError(w, err)
		return
	}
	s.countEvent("signup")
	respondJSON(w, http.StatusCreated, map[string]string{"status": "account created"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	authSess, err := s.authProvider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondAuthError(w, err)
		return
	}

	sess := s.sessions.Create(authSess.Subject, authSess.Email)
	s.mu.Lock()
	s.authTokens[sess.ID] = authSess
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	s.countEvent("login")
	respondJSON(w, http.StatusOK, sessionResponse{SessionID: sess.ID, Subject: sess.Subject, Email: sess.Email})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.sessions.End(req.SessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.orch.DropSession(sess.ID)

	s.mu.Lock()
	authSess, hadToken := s.authTokens[sess.ID]
	delete(s.authTokens, sess.ID)
	s.mu.Unlock()
	if hadToken {
		if err := s.authProvider.SignOut(r.Context(), authSess); err != nil {
			s.logger.Warn("sign-out failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	s.countEvent("logout")
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleCreateSession opens a session without credentials. Useful with
// the mock auth provider during development.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		Email   string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" {
		respondError(w, http.StatusBadRequest, "subject is required")
		return
	}
	sess := s.sessions.Create(req.Subject, req.Email)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	s.countEvent("session_created")
	respondJSON(w, http.StatusCreated, sessionResponse{SessionID: sess.ID, Subject: sess.Subject, Email: sess.Email})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.orch.ResetSession(id) {
		if _, err := s.sessions.Get(id); err != nil {
			respondError(w, http.StatusNotFound, "unknown session")
			return
		}
	}
	_ = s.sessions.Touch(id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "conversation reset"})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.End(id); err != nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.orch.DropSession(id)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	s.countEvent("session_ended")
	respondJSON(w, http.StatusOK, map[string]string{"status": "session ended"})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	turns, _ := s.orch.Transcript(id)
	if turns == nil {
		turns = []chat.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	last, cumulative, _ := s.orch.Usage(id)
	respondJSON(w, http.StatusOK, map[string]any{"last": last, "cumulative": cumulative})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	turns, err := s.archive.RecentTurns(r.Context(), sess.Subject, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if turns == nil {
		turns = []history.ArchivedTurn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromQuery(w, r)
	if !ok {
		return
	}
	col, err := s.mem.GetAll(r.Context(), sess.Subject)
	if err != nil {
		respondError(w, http.StatusBadGateway, "memory service unavailable")
		return
	}
	facts := col.Facts
	if facts == nil {
		facts = []memory.Fact{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

func (s *Server) handleMemoryGraph(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromQuery(w, r)
	if !ok {
		return
	}
	col, err := s.mem.GetAll(r.Context(), sess.Subject)
	if err != nil {
		respondError(w, http.StatusBadGateway, "memory service unavailable")
		return
	}
	respondJSON(w, http.StatusOK, memory.BuildGraph(col.Relations, sess.Subject))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"models":          []string{s.model},
		"embedding_model": s.embeddingModel,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 64)

	go func() {
		defer close(inbound)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			msg, err := protocol.ParseClientMessage(data)
			if err != nil {
				s.logger.Debug("dropping bad client frame", zap.Error(err))
				continue
			}
			select {
			case inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				if err := conn.WriteJSON(msg); err != nil {
					s.logger.Debug("websocket write failed",
						zap.String("message_type", protocol.MessageTypeOf(msg)), zap.Error(err))
					cancel()
					return
				}
			}
		}
	}()

	s.countEvent("ws_connect")
	if err := s.orch.RunConnection(ctx, sess, inbound, outbound); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("connection ended", zap.String("session_id", sess.ID), zap.Error(err))
	}
	cancel()
	<-writerDone
	s.countEvent("ws_disconnect")
}

func (s *Server) sessionFromQuery(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.URL.Query().Get("session_id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return nil, false
	}
	return sess, true
}

func (s *Server) respondAuthError(w http.ResponseWriter, err error) {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		status := authErr.Status
		if status == 0 {
			status = http.StatusUnauthorized
		}
		respondError(w, status, authErr.Message)
		return
	}
	s.logger.Error("auth provider failure", zap.Error(err))
	respondError(w, http.StatusBadGateway, "authentication service unavailable")
}

func (s *Server) countEvent(event string) {
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
