package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/studyrag-go/internal/logging"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// NewChatCmd constructs the `studyrag chat` command group for managing
// conversations.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Create, list and inspect conversations",
	}
	cmd.AddCommand(newChatNewCmd(), newChatListCmd(), newChatHistoryCmd())
	return cmd
}

func newChatNewCmd() *cobra.Command {
	var owner, title string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, settings, needs{conversations: true}, logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("chat new: %w", err)
			}
			defer st.Close()

			conv, err := st.convs.Create(ctx, owner, title)
			if err != nil {
				return fmt.Errorf("chat new: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Student (owner) id")
	cmd.Flags().StringVar(&title, "title", "", "Conversation title (default: "+rag.DefaultConversationTitle+")")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newChatListCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a student's conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, settings, needs{conversations: true}, logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("chat list: %w", err)
			}
			defer st.Close()

			convs, err := st.convs.List(ctx, owner)
			if err != nil {
				return fmt.Errorf("chat list: %w", err)
			}
			return printConversations(cmd.OutOrStdout(), convs)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Student (owner) id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newChatHistoryCmd() *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a conversation's messages in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, settings, needs{conversations: true}, logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("chat history: %w", err)
			}
			defer st.Close()

			msgs, err := st.convs.History(ctx, chatID)
			if err != nil {
				return fmt.Errorf("chat history: %w", err)
			}
			printMessages(cmd.OutOrStdout(), msgs)
			return nil
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "", "Conversation id")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func printConversations(w io.Writer, convs []rag.Conversation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCREATED")
	for _, c := range convs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Title, c.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printMessages(w io.Writer, msgs []rag.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s\n%s\n\n", m.CreatedAt.Local().Format(time.DateTime), m.Role, m.Content)
	}
}
