package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormelin/croupier/internal/persona"
	"github.com/ormelin/croupier/internal/store"
)

func userTurnParams(conversationID int64, message string, p persona.Persona) store.InsertTurnParams {
	return store.InsertTurnParams{
		ConversationID: conversationID,
		Role:           store.RoleUser,
		Content:        message,
		Persona:        p,
	}
}

var (
	askConversation int64
	askPersona      string
	askVerbose      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask the agent a one-shot question",
	Long: `Ask the agent a one-shot question from the terminal. The exchange is
recorded in the given conversation, so repeated asks build up history like a
real chat.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().Int64Var(&askConversation, "conversation", 1, "conversation id to use")
	askCmd.Flags().StringVar(&askPersona, "persona", "", "switch the conversation's persona first (business, bella, ben)")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, message string) error {
	a, err := setup(ctx, askVerbose)
	if err != nil {
		return err
	}
	defer a.Close()

	if askPersona != "" {
		p, err := persona.Parse(askPersona)
		if err != nil {
			return err
		}
		if err := a.conversations.SetPersona(ctx, askConversation, p); err != nil {
			return fmt.Errorf("setting persona: %w", err)
		}
	}

	state, err := a.conversations.State(ctx, askConversation)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if _, err := a.conversations.RecordTurn(ctx, userTurnParams(askConversation, message, state.Persona)); err != nil {
		return fmt.Errorf("recording question: %w", err)
	}

	result, err := a.orchestrator.Generate(ctx, askConversation, message)
	if err != nil {
		return fmt.Errorf("generating reply: %w", err)
	}

	fmt.Printf("[%s] %s\n", result.Persona, result.Text)
	return nil
}
