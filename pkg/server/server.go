// Package server provides the public entry point for initializing the
// MediCortex orchestration server.
//
// This package exists in pkg/ (not internal/) so deployments can embed the
// assembled handler behind their own listeners or middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8001", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medicortex/medicortex/internal/agent"
	"github.com/medicortex/medicortex/internal/api"
	"github.com/medicortex/medicortex/internal/api/handlers"
	"github.com/medicortex/medicortex/internal/config"
	"github.com/medicortex/medicortex/internal/history"
	"github.com/medicortex/medicortex/internal/knowledge"
	"github.com/medicortex/medicortex/internal/llm"
	"github.com/medicortex/medicortex/internal/orchestrator"
	"github.com/medicortex/medicortex/internal/privacy"
	"github.com/medicortex/medicortex/internal/retention"
	"github.com/medicortex/medicortex/internal/telemetry"
)

// Server holds the initialized MediCortex service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// History is the chat persistence layer, Postgres-backed when
	// DATABASE_URL is set and in-memory otherwise.
	History history.Store

	// Registry exposes the registered responders.
	Registry *agent.Registry

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush
	// telemetry.
	ShutdownFunc func(context.Context) error

	engine  *knowledge.Engine
	pgStore *history.PostgresStore
}

// New initializes all components from environment configuration and
// returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Chat history: Postgres when configured, in-memory otherwise.
	var historyStore history.Store
	var pgStore *history.PostgresStore
	if cfg.Database.URL != "" {
		pgStore, err = history.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("init postgres history: %w", err)
		}
		historyStore = pgStore
	} else {
		historyStore = history.NewMemoryStore()
		log.Info().Msg("✅ In-memory chat history initialized")
	}

	// Privacy vault. Without a recognizer endpoint redaction is a
	// passthrough.
	var recognizer privacy.Recognizer
	if cfg.Privacy.RecognizerURL != "" {
		recognizer = privacy.NewHTTPRecognizer(cfg.Privacy.RecognizerURL)
		log.Info().Str("endpoint", cfg.Privacy.RecognizerURL).Msg("✅ PII recognizer initialized")
	} else {
		log.Warn().Msg("🔕 No PII recognizer configured, redaction disabled")
	}
	vault := privacy.NewVault(recognizer)

	// Knowledge core: graph store plus local embedding assets.
	var graphStore knowledge.Store
	if cfg.Knowledge.GraphURL != "" {
		graphStore = knowledge.NewArangoStore(
			cfg.Knowledge.GraphURL,
			cfg.Knowledge.GraphDatabase,
			cfg.Knowledge.GraphUser,
			cfg.Knowledge.GraphPassword,
		)
		log.Info().Str("endpoint", cfg.Knowledge.GraphURL).Msg("✅ Knowledge graph store initialized")
	} else {
		graphStore = knowledge.NewMemoryStore()
		log.Warn().Msg("🔕 No knowledge graph configured, using empty in-memory store")
	}
	engine := knowledge.NewEngine(graphStore, cfg.Knowledge.AssetDir)

	// Models: one chat model for routing and formatting, one medical
	// responder model for the reasoning loops.
	chat := llm.NewChat(cfg.LLM)
	responderModel := llm.NewMedGemma(cfg.LLM.ResponderURL, cfg.LLM.ResponderMaxTokens, cfg.LLM.ResponderTimeout)

	registry := agent.NewDefaultRegistry(responderModel)
	log.Info().Strs("agents", registry.Keys()).Msg("✅ Responder registry initialized")

	pipeline := orchestrator.New(vault, engine, chat, registry)

	if cfg.Retention.Days > 0 {
		janitor := retention.NewJanitor(historyStore, time.Duration(cfg.Retention.Days)*24*time.Hour)
		go janitor.Run(ctx)
	}

	h := handlers.New(pipeline, historyStore, registry, cfg.Version)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		History:      historyStore,
		Registry:     registry,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
		engine:       engine,
		pgStore:      pgStore,
	}, nil
}

// Close releases the embedding matrix mapping and the database pool.
func (s *Server) Close() {
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close knowledge engine")
		}
	}
	if s.pgStore != nil {
		s.pgStore.Close()
	}
}
