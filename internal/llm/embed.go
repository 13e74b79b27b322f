package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// embedBatchSize is the number of inputs sent per embeddings request.
// The API accepts far more, but smaller batches keep individual requests
// below proxy body limits for long knowledge-base lines.
const embedBatchSize = 100

// defaultEmbedTimeout bounds a single embeddings request.
const defaultEmbedTimeout = 30 * time.Second

// EmbeddingClient calls the OpenAI embeddings endpoint.
// Safe for concurrent use.
type EmbeddingClient struct {
	api     openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewEmbeddingClient creates an embeddings client.
func NewEmbeddingClient(cfg Config) *EmbeddingClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
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

	return &EmbeddingClient{
		api:     openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
		limiter: limiter,
		logger:  logger,
	}
}

// Embed returns the embedding vector for a single text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in request-sized batches, preserving input order.
// The returned slice always has exactly one vector per input text.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch := texts[start:end]

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.api.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(c.model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}

		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding batch [%d:%d]: got %d vectors for %d inputs",
				start, end, len(resp.Data), len(batch))
		}

		for _, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for i, f := range d.Embedding {
				vec[i] = float32(f)
			}
			vectors = append(vectors, vec)
		}
	}

	c.logger.Debug("embedded texts", "model", c.model, "count", len(texts))
	return vectors, nil
}
