// Package models defines the shared data types for the MediCortex
// orchestration service: the agent-to-agent protocol (envelope, response,
// capability card), the knowledge-graph types, chat sessions and messages,
// and the streaming event contract.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════
// ── Agent Protocol ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Envelope is the standard request wrapper passed from the orchestrator to
// a responder. It is created fresh per invocation and must not be mutated
// after it has been handed to a responder.
type Envelope struct {
	TraceID        string                 `json:"trace_id"`
	IdempotencyKey string                 `json:"idempotency_key"`
	SenderID       string                 `json:"sender_id"`
	ReceiverID     string                 `json:"receiver_id"`
	Timestamp      time.Time              `json:"timestamp"`
	Payload        map[string]interface{} `json:"payload"`
}

// NewEnvelope builds an envelope addressed to a responder, assigning a
// fresh idempotency key.
func NewEnvelope(traceID, sender, receiver string, payload map[string]interface{}) *Envelope {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return &Envelope{
		TraceID:        traceID,
		IdempotencyKey: uuid.NewString(),
		SenderID:       sender,
		ReceiverID:     receiver,
		Timestamp:      time.Now().UTC(),
		Payload:        payload,
	}
}

// Input returns the "input" payload field, or "" when absent.
func (e *Envelope) Input() string {
	s, _ := e.Payload["input"].(string)
	return s
}

// AgentResponse is the standard response from a responder back to the
// sender. A well-formed response never sets both Output and Error.
type AgentResponse struct {
	// EnvelopeID references the idempotency key of the request envelope.
	EnvelopeID string         `json:"envelope_id"`
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Thinking   []string       `json:"thinking,omitempty"`
	Usage      map[string]int `json:"usage,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AgentCard is the static capability manifest every responder publishes.
// Cards are immutable and live for the lifetime of the process.
type AgentCard struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	InputSchema  map[string]interface{} `json:"input_schema"`
	OutputSchema map[string]interface{} `json:"output_schema"`
	Version      string                 `json:"version"`
	Capabilities []string               `json:"capabilities"`
}

// ══════════════════════════════════════════════════════════════
// ── Knowledge Graph ──────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Concept is a node in the clinical ontology (disease, symptom, drug, ...).
type Concept struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Fact is an edge-derived tuple produced by graph traversal around an
// anchor concept. Score is assigned during ranking, never stored.
type Fact struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Relation string  `json:"relation"`
	Hop      int     `json:"hop"`
	Score    float64 `json:"score"`
}

// ══════════════════════════════════════════════════════════════
// ── Chat Sessions & Messages ─────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Session is one multi-turn conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single turn entry within a session.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Thinking  []string  `json:"thinking,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ══════════════════════════════════════════════════════════════
// ── HTTP API ─────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the non-streaming chat reply.
type ChatResponse struct {
	Response  string   `json:"response"`
	SessionID string   `json:"session_id"`
	Thinking  []string `json:"thinking,omitempty"`
}

// Stream event types emitted on /chat/stream, in arrival order. The
// terminal marker is the literal "[DONE]" data frame, not an event.
const (
	EventSessionID = "session_id"
	EventThought   = "thought"
	EventToken     = "token"
	EventResponse  = "response"
	EventError     = "error"
)

// StreamEvent is one SSE frame payload.
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}
