// Package history persists chat sessions and their messages. One turn is
// always written atomically: the user message, the assistant message, and
// the session metadata update commit together or not at all.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medicortex/medicortex/pkg/models"
)

// titleRuneLimit bounds the auto-generated session title.
const titleRuneLimit = 30

// historyTurnLimit is how many past turns feed the pipeline's history
// context.
const historyTurnLimit = 10

// Store is the chat history surface consumed by the pipeline and the API.
type Store interface {
	// CreateSession creates an empty session and returns it.
	CreateSession(ctx context.Context) (*models.Session, error)
	// GetSession fetches a session by id.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	// ListSessions returns all sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]models.Session, error)
	// Messages returns a session's messages in chronological order.
	Messages(ctx context.Context, sessionID string) ([]models.Message, error)
	// AppendTurn atomically appends the user message and the assistant
	// reply (with its reasoning trace), sets the session title from the
	// first user message if still unset, and bumps updated_at.
	AppendTurn(ctx context.Context, sessionID, userMsg, assistantMsg string, thinking []string) error
	// DeleteSessionsBefore removes sessions whose last activity is older
	// than cutoff, along with their messages, returning how many
	// sessions were purged.
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// autoTitle derives a session title from the first user message.
func autoTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleRuneLimit {
		return message
	}
	return string(runes[:titleRuneLimit]) + "..."
}

// FormatContext renders the last turns of a conversation for prompt
// injection, excluding the current in-flight user message.
func FormatContext(messages []models.Message) []string {
	if len(messages) == 0 {
		return nil
	}
	past := messages[:len(messages)-1]
	if len(past) > historyTurnLimit {
		past = past[len(past)-historyTurnLimit:]
	}
	lines := make([]string, 0, len(past))
	for _, m := range past {
		lines = append(lines, fmt.Sprintf("%s: %s", capitalize(m.Role), m.Content))
	}
	return lines
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
