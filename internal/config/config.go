package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the MediCortex orchestration service.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	LLM       LLMConfig
	Privacy   PrivacyConfig
	Knowledge KnowledgeConfig
	Retention RetentionConfig
}

type DatabaseConfig struct {
	// URL is the Postgres connection string for chat history.
	// Empty selects the in-memory store.
	URL string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type LLMConfig struct {
	// OpenAI-compatible endpoint used by the extract / route / aggregate
	// stages of the pipeline.
	APIKey  string
	BaseURL string
	Model   string

	// Responder model (MedGemma /predict endpoint) used by the
	// specialized agents' reasoning loops.
	ResponderURL       string
	ResponderMaxTokens int
	ResponderTimeout   time.Duration
}

type PrivacyConfig struct {
	// RecognizerURL is the entity-recognizer sidecar base URL.
	// Empty disables redaction (text passes through unchanged).
	RecognizerURL string
}

type KnowledgeConfig struct {
	// GraphURL is the ArangoDB HTTP endpoint for the clinical ontology,
	// e.g. "http://localhost:8529". Empty disables graph lookups.
	GraphURL      string
	GraphDatabase string
	GraphUser     string
	GraphPassword string

	// AssetDir contains maps.json and vectors.npy.
	AssetDir string
}

type RetentionConfig struct {
	// Days is how long idle chat sessions are kept before the janitor
	// purges them. Zero disables retention.
	Days int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("MEDICORTEX_PORT", 8001),
		Version: envStr("MEDICORTEX_VERSION", "0.2.0"),
		Database: DatabaseConfig{
			URL: envStr("DATABASE_URL", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "medicortex-orchestrator"),
		},
		LLM: LLMConfig{
			APIKey:             envStr("OPENAI_API_KEY", ""),
			BaseURL:            envStr("OPENAI_BASE_URL", ""),
			Model:              envStr("MEDICORTEX_ROUTER_MODEL", "gpt-4o-mini"),
			ResponderURL:       envStr("MEDICORTEX_RESPONDER_URL", "http://localhost:8000/predict"),
			ResponderMaxTokens: envInt("MEDICORTEX_RESPONDER_MAX_TOKENS", 512),
			ResponderTimeout:   envDuration("MEDICORTEX_RESPONDER_TIMEOUT", 10*time.Second),
		},
		Privacy: PrivacyConfig{
			RecognizerURL: envStr("MEDICORTEX_RECOGNIZER_URL", ""),
		},
		Knowledge: KnowledgeConfig{
			GraphURL:      envStr("MEDICORTEX_GRAPH_URL", ""),
			GraphDatabase: envStr("MEDICORTEX_GRAPH_DB", "clinical_ontology"),
			GraphUser:     envStr("MEDICORTEX_GRAPH_USER", "root"),
			GraphPassword: envStr("MEDICORTEX_GRAPH_PASSWORD", ""),
			AssetDir:      envStr("MEDICORTEX_ASSET_DIR", "assets"),
		},
		Retention: RetentionConfig{
			Days: envInt("MEDICORTEX_RETENTION_DAYS", 0),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
