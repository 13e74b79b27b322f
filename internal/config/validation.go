package config

import "fmt"

// Validate checks configuration values that every mode of the application
// depends on. Fails fast with a sentinel-wrapped error so callers can use
// errors.Is.
func (c *Config) Validate() error {
	if c.HistoryLimit < 1 || c.HistoryLimit > MaxHistoryLimit {
		return fmt.Errorf("%w: history_limit must be between 1 and %d, got %d",
			ErrInvalidHistoryLimit, MaxHistoryLimit, c.HistoryLimit)
	}

	if c.SearchLimit < 1 || c.SearchLimit > 100 {
		return fmt.Errorf("%w: search_limit must be between 1 and 100, got %d",
			ErrInvalidSearchLimit, c.SearchLimit)
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be within [0, 1], got %g",
			ErrInvalidThreshold, c.SimilarityThreshold)
	}

	if c.PromptDupThreshold < 1 {
		return fmt.Errorf("%w: prompt_dup_threshold must be at least 1, got %d",
			ErrInvalidHistoryLimit, c.PromptDupThreshold)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: postgres_port must be within 1-65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: postgres_db_name must not be empty", ErrInvalidPostgresDBName)
	}

	return nil
}

// ValidateBackends checks that API keys for the external backends are
// present. Separated from Validate so commands that never call a backend
// (for example printing the version) still work without keys.
func (c *Config) ValidateBackends() error {
	if c.ChatAPIKey == "" {
		return fmt.Errorf("%w: set DEEPSEEK_API_KEY", ErrMissingAPIKey)
	}
	if c.EmbedderAPIKey == "" {
		return fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}
