// Package handlers implements the HTTP handlers for the MediCortex
// orchestration service: the chat endpoints (blocking and SSE streaming),
// session history, responder card discovery, and health.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/medicortex/medicortex/internal/agent"
	"github.com/medicortex/medicortex/internal/history"
	"github.com/medicortex/medicortex/internal/orchestrator"
	"github.com/medicortex/medicortex/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Pipeline *orchestrator.Pipeline
	History  history.Store
	Registry *agent.Registry
	Version  string
}

// New creates a Handlers instance with all dependencies.
func New(p *orchestrator.Pipeline, h history.Store, reg *agent.Registry, version string) *Handlers {
	return &Handlers{
		Pipeline: p,
		History:  h,
		Registry: reg,
		Version:  version,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Chat ─────────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Chat handles the blocking chat endpoint.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	log.Info().Int("message_length", len(req.Message)).Msg("received chat request")

	sessionID, historyLines, err := h.prepareSession(ctx, &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := h.Pipeline.Run(ctx, req.Message, historyLines, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.History.AppendTurn(ctx, sessionID, req.Message, result.Response, result.Thoughts); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("failed to persist turn")
	}

	respondJSON(w, http.StatusOK, models.ChatResponse{
		Response:  result.Response,
		SessionID: sessionID,
		Thinking:  result.Thoughts,
	})
}

// ChatStream handles the SSE chat endpoint. Thought events arrive as
// responders finish, token events carry the formatted answer, and the
// stream always ends with a [DONE] frame.
func (h *Handlers) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	log.Info().Int("message_length", len(req.Message)).Msg("received streaming chat request")

	emit := func(ev models.StreamEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	created := req.SessionID == ""
	sessionID, historyLines, err := h.prepareSession(ctx, &req)
	if err != nil {
		emit(models.StreamEvent{Type: models.EventError, Content: err.Error()})
		return
	}
	if created {
		emit(models.StreamEvent{Type: models.EventSessionID, Content: sessionID})
	}

	// Show immediate activity before the first responder reports back.
	emit(models.StreamEvent{Type: models.EventThought, Content: "Querying Knowledge Core..."})

	result, err := h.Pipeline.Run(ctx, req.Message, historyLines, orchestrator.Sink(emit))
	if err != nil {
		log.Error().Err(err).Msg("streaming pipeline failed")
		emit(models.StreamEvent{Type: models.EventError, Content: err.Error()})
		return
	}

	// When the aggregator produced no token stream, deliver the answer
	// as a single response event instead.
	if !result.TokensStreamed && result.Response != "" {
		emit(models.StreamEvent{Type: models.EventResponse, Content: result.Response})
	}

	if result.Response != "" {
		if err := h.History.AppendTurn(ctx, sessionID, req.Message, result.Response, result.Thoughts); err != nil {
			log.Warn().Err(err).Str("session", sessionID).Msg("failed to persist turn")
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// prepareSession resolves or creates the session and renders the prior
// turns as prompt-ready history lines.
func (h *Handlers) prepareSession(ctx context.Context, req *models.ChatRequest) (string, []string, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		session, err := h.History.CreateSession(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("create session: %w", err)
		}
		sessionID = session.ID
		return sessionID, nil, nil
	}

	past, err := h.History.Messages(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	// The in-flight message is appended so FormatContext can exclude it
	// the same way it excludes a persisted current turn.
	withCurrent := append(past, models.Message{Role: "user", Content: req.Message})
	return sessionID, history.FormatContext(withCurrent), nil
}

// ══════════════════════════════════════════════════════════════
// ── Session History ──────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListChats returns every chat session, most recently updated first.
func (h *Handlers) ListChats(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.History.ListSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

// GetChatHistory returns the messages of one session.
func (h *Handlers) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	msgs, err := h.History.Messages(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

// ══════════════════════════════════════════════════════════════
// ── Discovery & Health ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Health reports service status and the registered responder keys.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "online",
		"agents": h.Registry.Keys(),
	})
}

// AgentCards exposes every registered responder card for discovery.
func (h *Handlers) AgentCards(w http.ResponseWriter, r *http.Request) {
	cards := make(map[string]models.AgentCard)
	for _, key := range h.Registry.Keys() {
		if card, ok := h.Registry.Card(key); ok {
			cards[key] = card
		}
	}
	respondJSON(w, http.StatusOK, cards)
}

// AgentCard exposes a single responder's card.
func (h *Handlers) AgentCard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "agentName")
	card, ok := h.Registry.Card(name)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Agent '%s' not found", name))
		return
	}
	respondJSON(w, http.StatusOK, card)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
