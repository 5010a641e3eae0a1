package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medicortex/medicortex/pkg/models"
)

// MemoryStore is a thread-safe in-memory Store for tests and offline
// development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]models.Message
	nextID   int64
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]models.Message),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		Title:     "New Chat",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	out := *session
	return &out, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, *sess)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *MemoryStore) Messages(_ context.Context, sessionID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	msgs := make([]models.Message, len(s.messages[sessionID]))
	copy(msgs, s.messages[sessionID])
	return msgs, nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, sessionID, userMsg, assistantMsg string, thinking []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	now := time.Now().UTC()
	s.nextID++
	s.messages[sessionID] = append(s.messages[sessionID], models.Message{
		ID:        s.nextID,
		SessionID: sessionID,
		Role:      "user",
		Content:   userMsg,
		Timestamp: now,
	})
	s.nextID++
	s.messages[sessionID] = append(s.messages[sessionID], models.Message{
		ID:        s.nextID,
		SessionID: sessionID,
		Role:      "assistant",
		Content:   assistantMsg,
		Thinking:  thinking,
		Timestamp: now,
	})

	if session.Title == "" || session.Title == "New Chat" {
		session.Title = autoTitle(userMsg)
	}
	session.UpdatedAt = now
	return nil
}

func (s *MemoryStore) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.messages, id)
			purged++
		}
	}
	return purged, nil
}
