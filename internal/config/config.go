// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./croupier.yaml or ~/.croupier/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Chat backend: model, base URL, API key, timeouts
//   - Embedder: model, base URL, API key
//   - Storage: PostgreSQL connection (see storage.go)
//   - Pipeline: history retention, retrieval limits, prompt thresholds
//   - Content: prompt/knowledge/promotions paths, audit log destinations
//
// Sensitive values (API keys) come from environment variables only and are
// never written back to disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidHistoryLimit indicates the history retention limit is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")

	// ErrInvalidSearchLimit indicates the retrieval result limit is out of range.
	ErrInvalidSearchLimit = errors.New("invalid search limit")

	// ErrInvalidThreshold indicates the similarity threshold is outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

const (
	// DefaultHistoryLimit is the maximum number of turns retained per
	// conversation (the rolling window H).
	DefaultHistoryLimit = 20

	// MaxHistoryLimit bounds the retention window to prevent unbounded
	// context growth.
	MaxHistoryLimit = 500

	// DefaultSearchLimit is the default number of nearest neighbors fetched
	// per retrieval.
	DefaultSearchLimit = 8

	// DefaultSimilarityThreshold discards retrieval results scoring below it.
	DefaultSimilarityThreshold = 0.7

	// DefaultPromptDupThreshold is the history length above which the system
	// prompt is repeated after the history block.
	DefaultPromptDupThreshold = 5

	// DefaultFallbackMessage is returned to the user whenever the generation
	// pipeline fails. It must read like a human operator, never like an error.
	DefaultFallbackMessage = "Our operator is offline right now, please bear with us."
)

// Config stores application configuration.
type Config struct {
	// Chat backend (DeepSeek or any OpenAI-compatible endpoint)
	ChatModel   string `mapstructure:"chat_model"`
	ChatBaseURL string `mapstructure:"chat_base_url"`
	ChatAPIKey  string `mapstructure:"chat_api_key"` // SENSITIVE: env only

	// Embedding backend
	EmbedderModel   string `mapstructure:"embedder_model"`
	EmbedderBaseURL string `mapstructure:"embedder_base_url"`
	EmbedderAPIKey  string `mapstructure:"embedder_api_key"` // SENSITIVE: env only

	// Pipeline tuning
	HistoryLimit         int     `mapstructure:"history_limit"`          // retention window H
	HistoryWindowMinutes int     `mapstructure:"history_window_minutes"` // recency window for generation context
	SearchLimit          int     `mapstructure:"search_limit"`
	SimilarityThreshold  float64 `mapstructure:"similarity_threshold"`
	PromptDupThreshold   int     `mapstructure:"prompt_dup_threshold"`
	RebuildOnChange      bool    `mapstructure:"rebuild_on_change"`

	// Content paths
	PromptsDir     string `mapstructure:"prompts_dir"`
	KnowledgeDir   string `mapstructure:"knowledge_dir"`
	PromotionsFile string `mapstructure:"promotions_file"`

	// Audit log destinations (empty disables the sink)
	AuditChatLog   string `mapstructure:"audit_chat_log"`
	AuditVectorLog string `mapstructure:"audit_vector_log"`

	// User-visible failure message
	FallbackMessage string `mapstructure:"fallback_message"`

	// RequestTimeoutSeconds bounds each outbound backend call.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`

	// HTTP server
	Addr string `mapstructure:"addr"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`
}

// RequestTimeout returns the per-call backend timeout as a Duration. Zero or
// negative seconds fall back to the llm package default.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// HistoryWindow returns the recency window for history fetches as a Duration.
// Zero or negative minutes disable the window.
func (c *Config) HistoryWindow() time.Duration {
	if c.HistoryWindowMinutes <= 0 {
		return 0
	}
	return time.Duration(c.HistoryWindowMinutes) * time.Minute
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("croupier")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".croupier"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL takes precedence over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Chat backend defaults (DeepSeek)
	v.SetDefault("chat_model", "deepseek-chat")
	v.SetDefault("chat_base_url", "https://api.deepseek.com")

	// Embedder defaults (OpenAI)
	v.SetDefault("embedder_model", "text-embedding-3-small")
	v.SetDefault("embedder_base_url", "https://api.openai.com/v1")

	// Pipeline defaults
	v.SetDefault("history_limit", DefaultHistoryLimit)
	v.SetDefault("history_window_minutes", 60)
	v.SetDefault("search_limit", DefaultSearchLimit)
	v.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("prompt_dup_threshold", DefaultPromptDupThreshold)
	v.SetDefault("rebuild_on_change", true)

	// Content paths
	v.SetDefault("prompts_dir", "prompts")
	v.SetDefault("knowledge_dir", "kb")
	v.SetDefault("promotions_file", filepath.Join("prompts", "promotions.txt"))

	// Audit logs
	v.SetDefault("audit_chat_log", filepath.Join("logs", "chat_audit.log"))
	v.SetDefault("audit_vector_log", filepath.Join("logs", "vector_search.log"))

	v.SetDefault("fallback_message", DefaultFallbackMessage)
	v.SetDefault("request_timeout_seconds", 30)

	// HTTP server
	v.SetDefault("addr", "127.0.0.1:3400")

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "croupier")
	v.SetDefault("postgres_password", "croupier_dev_password")
	v.SetDefault("postgres_db_name", "croupier")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds sensitive environment variables explicitly.
// Secrets are only ever read from the environment:
//   - DEEPSEEK_API_KEY: chat completion backend
//   - OPENAI_API_KEY: embedding backend
//   - POSTGRES_PASSWORD: database password
func bindEnvVariables(v *viper.Viper) {
	// Errors from BindEnv only occur with zero arguments; ignore.
	_ = v.BindEnv("chat_api_key", "DEEPSEEK_API_KEY")
	_ = v.BindEnv("embedder_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("postgres_password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("addr", "CROUPIER_ADDR")
}
