package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	indexForce   bool
	indexVerbose bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the knowledge index",
	Long: `Build or refresh the knowledge index from the configured knowledge
directory. Unchanged files are skipped unless --force is given.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIndex(cmd.Context())
	},
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "rebuild even when files are unchanged")
	indexCmd.Flags().BoolVarP(&indexVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context) error {
	a, err := setup(ctx, indexVerbose)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.indexer.IndexCorpus(ctx, indexForce)
	if err != nil {
		return fmt.Errorf("indexing knowledge corpus: %w", err)
	}

	if stats.Skipped {
		fmt.Println("Knowledge corpus unchanged, nothing to do.")
		return nil
	}
	fmt.Printf("Indexed %d snippets from %d files.\n", stats.Snippets, stats.Files)
	return nil
}
