package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/studyrag-go/internal/logging"
)

// NewAskCmd constructs the `studyrag ask` command, which answers one question
// from the student's ingested material and records the turn.
func NewAskCmd() *cobra.Command {
	var owner, chatID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your ingested material",
		Long: `Answer a question using only the material the student has ingested.

The question and answer are appended to the conversation given by --chat.
Without --chat a new conversation is created and its id is printed so
follow-up questions can continue it.

Examples:
  studyrag ask --owner alice "what does the mitochondria do?"
  studyrag ask --owner alice --chat 3f1c... "and the ribosome?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			flush, err := setupTracing(ctx, settings, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer flush()

			st, err := buildStack(ctx, settings, needs{embedder: true, vectors: true, conversations: true, completer: true}, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.Close()

			asst, err := st.assistant(settings)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if chatID == "" {
				conv, err := st.convs.Create(ctx, owner, "")
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				chatID = conv.ID
				fmt.Fprintf(out, "chat: %s\n\n", chatID)
			}

			ans, err := asst.Answer(ctx, owner, chatID, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Fprintln(out, ans.Text)
			if len(ans.Sources) > 0 {
				fmt.Fprintf(out, "\nsources: %s\n", strings.Join(dedupe(ans.Sources), ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Student (owner) id whose material is searched")
	cmd.Flags().StringVar(&chatID, "chat", "", "Conversation id to continue (default: start a new one)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

// dedupe returns labels with repeats removed, keeping first-seen order.
func dedupe(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}
