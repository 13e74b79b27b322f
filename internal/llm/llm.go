// Package llm wraps the OpenAI-compatible backends the agent depends on:
// chat completions (DeepSeek) for generation and classification, and the
// OpenAI embeddings API for vector search.
//
// Both clients are thin: they translate between the pipeline's Message type
// and the SDK's parameter unions, enforce a per-call timeout, and apply a
// proactive rate limit so a burst of conversations cannot exhaust the
// backend quota.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// Role identifies the author of a message in a chat exchange.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry in an assembled context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Sentinel errors for backend calls.
var (
	// ErrEmptyResponse indicates the backend answered but produced no text.
	ErrEmptyResponse = errors.New("empty response from backend")
)

// DefaultCallTimeout bounds a single chat completion call.
const DefaultCallTimeout = 30 * time.Second

// Config contains the parameters for a chat completion client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Timeout bounds each call. Zero uses DefaultCallTimeout.
	Timeout time.Duration

	// Limiter throttles outbound calls. Nil installs a default of
	// 10 req/s with a burst of 30.
	Limiter *rate.Limiter

	Logger *slog.Logger
}

// Client calls an OpenAI-compatible chat completions endpoint.
// Safe for concurrent use.
type Client struct {
	api     openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a chat completion client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:     openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
		limiter: limiter,
		logger:  logger,
	}
}

// CompleteOption adjusts a single completion call.
type CompleteOption func(*completeConfig)

type completeConfig struct {
	maxTokens   int64
	temperature float64
	hasMaxTok   bool
	hasTemp     bool
}

// WithMaxTokens caps the number of tokens the backend may generate.
func WithMaxTokens(n int) CompleteOption {
	return func(c *completeConfig) {
		c.maxTokens = int64(n)
		c.hasMaxTok = true
	}
}

// WithTemperature sets the sampling temperature for the call.
func WithTemperature(t float64) CompleteOption {
	return func(c *completeConfig) {
		c.temperature = t
		c.hasTemp = true
	}
}

// Complete sends the ordered message sequence to the backend and returns the
// generated text. A response with no choices or blank content yields
// ErrEmptyResponse. Each call is a single attempt bounded by the configured
// timeout; retries are the caller's policy, not the client's.
func (c *Client) Complete(ctx context.Context, messages []Message, opts ...CompleteOption) (string, error) {
	var cfg completeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toUnionMessages(messages),
	}
	if cfg.hasMaxTok {
		params.MaxTokens = openai.Int(cfg.maxTokens)
	}
	if cfg.hasTemp {
		params.Temperature = openai.Float(cfg.temperature)
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(callCtx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("chat completion finished",
		"model", c.model,
		"messages", len(messages),
		"elapsed", time.Since(start))

	return text, nil
}

// toUnionMessages converts pipeline messages to the SDK parameter union.
// Unknown roles are sent as user messages rather than dropped.
func toUnionMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
