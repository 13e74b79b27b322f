package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ormelin/croupier/api"
)

var serveVerbose bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server.

On startup the knowledge corpus is indexed (skipped when unchanged), then
the server accepts chat requests until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, serveVerbose)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.RebuildOnChange {
		stats, err := a.indexer.IndexCorpus(ctx, false)
		if err != nil {
			// The agent can still answer casual chat and history-only
			// questions without an index.
			a.logger.Error("indexing knowledge corpus", "error", err)
		} else if !stats.Skipped {
			a.logger.Info("knowledge corpus ready", "files", stats.Files, "snippets", stats.Snippets)
		}
	}

	server := api.NewServer(a.orchestrator, a.conversations, a.pool, a.logger.With("component", "api"))
	if err := server.Run(ctx, a.cfg.Addr); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}
