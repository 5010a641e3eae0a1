package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/medicortex/medicortex/internal/agent"
	"github.com/medicortex/medicortex/internal/api"
	"github.com/medicortex/medicortex/internal/api/handlers"
	"github.com/medicortex/medicortex/internal/config"
	"github.com/medicortex/medicortex/internal/history"
	"github.com/medicortex/medicortex/internal/knowledge"
	"github.com/medicortex/medicortex/internal/orchestrator"
	"github.com/medicortex/medicortex/internal/privacy"
	"github.com/medicortex/medicortex/pkg/models"
)

// stubCompleter plays all three pipeline model roles with fixed replies.
type stubCompleter struct {
	streamTokens []string
}

func (s *stubCompleter) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return `{"entity": "none"}`, nil
}

func (s *stubCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	if system == "" {
		return "FORMATTED ANSWER", nil
	}
	return `["pubmed"]`, nil
}

func (s *stubCompleter) Stream(ctx context.Context, system, user string, onToken func(string) error) (string, error) {
	var sb strings.Builder
	for _, tok := range s.streamTokens {
		sb.WriteString(tok)
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return sb.String(), err
			}
		}
	}
	return sb.String(), nil
}

// finalAnswerGen drives every responder straight to a final answer.
type finalAnswerGen struct{}

func (finalAnswerGen) Generate(ctx context.Context, prompt string, stop []string) (string, error) {
	return "Final Answer: pubmed findings", nil
}

func newTestServer(t *testing.T, chat *stubCompleter) (http.Handler, history.Store) {
	t.Helper()

	registry := agent.NewRegistry()
	registry.Register("pubmed", agent.New("pubmed", "You are a test responder.",
		models.AgentCard{Name: "pubmed", Description: "literature search"}, finalAnswerGen{}, nil, 3))

	vault := privacy.NewVault(nil)
	engine := knowledge.NewEngine(knowledge.NewMemoryStore(), "testdata/does-not-exist")
	pipeline := orchestrator.New(vault, engine, chat, registry)

	store := history.NewMemoryStore()
	h := handlers.New(pipeline, store, registry, "0.2.0")

	cfg := &config.Config{Version: "0.2.0"}
	return api.NewRouter(cfg, h), store
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	router, store := newTestServer(t, &stubCompleter{})

	rec := postJSON(t, router, "/chat", `{"message": "What causes migraines?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response != "FORMATTED ANSWER" {
		t.Errorf("Response = %q", resp.Response)
	}
	if resp.SessionID == "" {
		t.Error("SessionID missing from response")
	}

	// The turn is persisted.
	msgs, err := store.Messages(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "What causes migraines?" || msgs[1].Content != "FORMATTED ANSWER" {
		t.Errorf("persisted messages = %+v", msgs)
	}
}

func TestChatEndpoint_ReusesSession(t *testing.T) {
	router, store := newTestServer(t, &stubCompleter{})

	session, err := store.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	rec := postJSON(t, router, "/chat", `{"message": "hi", "session_id": "`+session.ID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.ChatResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionID != session.ID {
		t.Errorf("SessionID = %q, want %q", resp.SessionID, session.ID)
	}
}

func TestChatEndpoint_Validation(t *testing.T) {
	router, _ := newTestServer(t, &stubCompleter{})

	if rec := postJSON(t, router, "/chat", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}
	if rec := postJSON(t, router, "/chat", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty message: status = %d, want 400", rec.Code)
	}
}

func TestChatStreamEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &stubCompleter{streamTokens: []string{"Hello", " world"}})

	rec := postJSON(t, router, "/chat/stream", `{"message": "What causes migraines?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	var events []models.StreamEvent
	sawDone := false
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			sawDone = true
			continue
		}
		var ev models.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("bad event frame %q: %v", data, err)
		}
		events = append(events, ev)
	}

	if !sawDone {
		t.Error("stream did not end with [DONE]")
	}
	if len(events) == 0 {
		t.Fatal("no events in stream")
	}
	if events[0].Type != models.EventSessionID || events[0].Content == "" {
		t.Errorf("first event = %+v, want session_id", events[0])
	}
	if events[1].Type != models.EventThought || events[1].Content != "Querying Knowledge Core..." {
		t.Errorf("second event = %+v, want initial thought", events[1])
	}

	var tokens []string
	for _, ev := range events {
		if ev.Type == models.EventToken {
			tokens = append(tokens, ev.Content)
		}
	}
	if strings.Join(tokens, "") != "Hello world" {
		t.Errorf("token events = %v", tokens)
	}
}

func TestChatStreamEndpoint_ResponseFallback(t *testing.T) {
	// No stream tokens configured, so the answer must arrive as a single
	// response event.
	router, _ := newTestServer(t, &stubCompleter{})

	rec := postJSON(t, router, "/chat/stream", `{"message": "hi"}`)
	if !strings.Contains(rec.Body.String(), `"type":"response"`) {
		t.Errorf("stream body missing response event:\n%s", rec.Body.String())
	}
}

func TestListAndFetchChats(t *testing.T) {
	router, _ := newTestServer(t, &stubCompleter{})

	postJSON(t, router, "/chat", `{"message": "first question"}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /chats status = %d", rec.Code)
	}
	var sessions []models.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Title != "first question" {
		t.Fatalf("sessions = %+v", sessions)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats/"+sessions[0].ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /chats/{id} status = %d", rec.Code)
	}
	var msgs []models.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages = %+v", msgs)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats/unknown-session", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestHealthAndDiscovery(t *testing.T) {
	router, _ := newTestServer(t, &stubCompleter{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health struct {
		Status string   `json:"status"`
		Agents []string `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "online" || len(health.Agents) != 1 || health.Agents[0] != "pubmed" {
		t.Errorf("health = %+v", health)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/agent-cards", nil))
	var cards map[string]models.AgentCard
	if err := json.Unmarshal(rec.Body.Bytes(), &cards); err != nil {
		t.Fatalf("decode cards: %v", err)
	}
	if _, ok := cards["pubmed"]; !ok {
		t.Errorf("cards = %+v", cards)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/agent-cards/pubmed", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("card status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/agent-cards/nonexistent", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown card status = %d, want 404", rec.Code)
	}
}
