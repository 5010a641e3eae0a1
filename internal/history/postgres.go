package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/medicortex/medicortex/pkg/models"
)

// PostgresStore persists chat history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings, and applies the schema.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("history connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history migrate: %w", err)
	}

	log.Info().Msg("💾 chat history store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id         UUID PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT 'New Chat',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id         BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			thinking   JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, id);
		CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated ON chat_sessions (updated_at DESC);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) CreateSession(ctx context.Context) (*models.Session, error) {
	session := &models.Session{ID: uuid.NewString(), Title: "New Chat"}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_sessions (id) VALUES ($1) RETURNING created_at, updated_at`,
		session.ID,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = $1`,
		sessionID,
	).Scan(&session.ID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return &session, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var result []models.Session
	for rows.Next() {
		var session models.Session
		if err := rows.Scan(&session.ID, &session.Title, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		result = append(result, session)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, thinking, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var result []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Thinking, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// AppendTurn writes the full turn in one transaction so a failure
// mid-pipeline never leaves a dangling user message.
func (s *PostgresStore) AppendTurn(ctx context.Context, sessionID, userMsg, assistantMsg string, thinking []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin turn: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_messages (session_id, role, content) VALUES ($1, 'user', $2)`,
		sessionID, userMsg); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}

	if thinking == nil {
		thinking = []string{}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_messages (session_id, role, content, thinking) VALUES ($1, 'assistant', $2, $3)`,
		sessionID, assistantMsg, thinking); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chat_sessions
		 SET updated_at = NOW(),
		     title = CASE WHEN title = 'New Chat' THEN $2 ELSE title END
		 WHERE id = $1`,
		sessionID, autoTitle(userMsg)); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	return tx.Commit(ctx)
}

// DeleteSessionsBefore purges sessions idle since cutoff. Messages go
// with them via the foreign key cascade.
func (s *PostgresStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chat_sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// HealthCheck verifies database connectivity.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
