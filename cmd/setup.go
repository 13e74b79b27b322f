package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ormelin/croupier/db"
	"github.com/ormelin/croupier/internal/assemble"
	"github.com/ormelin/croupier/internal/audit"
	"github.com/ormelin/croupier/internal/config"
	"github.com/ormelin/croupier/internal/database"
	"github.com/ormelin/croupier/internal/knowledge"
	"github.com/ormelin/croupier/internal/llm"
	"github.com/ormelin/croupier/internal/log"
	"github.com/ormelin/croupier/internal/orchestrator"
	"github.com/ormelin/croupier/internal/prompt"
	"github.com/ormelin/croupier/internal/store"
	"github.com/ormelin/croupier/internal/translate"
)

// app bundles everything a command needs after wiring.
type app struct {
	cfg    *config.Config
	logger log.Logger
	pool   *pgxpool.Pool

	conversations *store.Store
	knowledge     *knowledge.Store
	indexer       *knowledge.Indexer
	orchestrator  *orchestrator.Orchestrator
}

// setup loads configuration, migrates and connects the database, and wires
// the pipeline. Callers must Close the returned app.
func setup(ctx context.Context, verbose bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateBackends(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	chatClient := llm.NewClient(llm.Config{
		APIKey:  cfg.ChatAPIKey,
		BaseURL: cfg.ChatBaseURL,
		Model:   cfg.ChatModel,
		Timeout: cfg.RequestTimeout(),
		Logger:  logger.With("component", "chat"),
	})
	embedder := llm.NewEmbeddingClient(llm.Config{
		APIKey:  cfg.EmbedderAPIKey,
		BaseURL: cfg.EmbedderBaseURL,
		Model:   cfg.EmbedderModel,
		Timeout: cfg.RequestTimeout(),
		Logger:  logger.With("component", "embedder"),
	})

	conversations := store.New(store.NewPGQuerier(pool), pool, cfg.HistoryLimit,
		logger.With("component", "store"))
	knowledgeStore := knowledge.New(knowledge.NewPGQuerier(pool), pool, embedder,
		cfg.SearchLimit, cfg.SimilarityThreshold, logger.With("component", "knowledge"))
	indexer := knowledge.NewIndexer(knowledgeStore, embedder, cfg.KnowledgeDir,
		cfg.PromotionsFile, logger.With("component", "indexer"))

	prompts := prompt.NewLibrary(cfg.PromptsDir, cfg.PromotionsFile,
		logger.With("component", "prompt"))
	classifier := translate.New(chatClient, logger.With("component", "classifier"))

	var chatAudit, vectorAudit audit.Sink = audit.NopSink{}, audit.NopSink{}
	if cfg.AuditChatLog != "" {
		chatAudit = audit.NewFileSink(cfg.AuditChatLog, logger.With("component", "audit"))
	}
	if cfg.AuditVectorLog != "" {
		vectorAudit = audit.NewFileSink(cfg.AuditVectorLog, logger.With("component", "audit"))
	}

	orch := orchestrator.New(orchestrator.Config{
		Store:           conversations,
		Classifier:      classifier,
		Searcher:        knowledgeStore,
		Prompts:         prompts,
		Completer:       chatClient,
		Assembler:       assemble.New(cfg.PromptDupThreshold),
		ChatAudit:       chatAudit,
		VectorAudit:     vectorAudit,
		HistoryWindow:   cfg.HistoryWindow(),
		FallbackMessage: cfg.FallbackMessage,
		Logger:          logger.With("component", "orchestrator"),
	})

	return &app{
		cfg:           cfg,
		logger:        logger,
		pool:          pool,
		conversations: conversations,
		knowledge:     knowledgeStore,
		indexer:       indexer,
		orchestrator:  orch,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
