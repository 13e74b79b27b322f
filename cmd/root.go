// Package cmd implements the croupier command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "croupier",
	Short: "Croupier - retrieval-backed casino support agent",
	Long: `Croupier is a conversational support agent for an online casino.
It answers customer questions from an embedded knowledge base, keeps a
bounded history per conversation, and speaks through configurable personas.

Run "croupier serve" to start the HTTP API, or "croupier ask" for a
one-shot question from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
