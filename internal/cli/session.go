package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"pawbot/internal/session"
)

// NewSessionCmd creates the session command.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect conversation histories",
		Long:  `Show, list the epochs of, and reset stored conversations.`,
	}

	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionEpochsCmd())
	cmd.AddCommand(newSessionResetCmd())

	return cmd
}

func newSessionShowCmd() *cobra.Command {
	var (
		epoch      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show a conversation history",
		Long:  `Display the messages of the latest epoch, or of --epoch.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			comps, err := cliCtx.GetComponents()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			id := args[0]

			if epoch < 0 {
				epochs, err := comps.Store.Epochs(ctx, id)
				if err != nil {
					return err
				}
				if len(epochs) == 0 {
					return fmt.Errorf("conversation %s: %w", id, session.ErrNotFound)
				}
				epoch = epochs[len(epochs)-1]
			}

			sess, err := comps.Store.LoadEpoch(ctx, id, epoch)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sess)
			}
			printSession(cmd.OutOrStdout(), sess)
			return nil
		},
	}

	cmd.Flags().IntVarP(&epoch, "epoch", "e", -1, "epoch to show (default: latest)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func newSessionEpochsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "epochs <conversation-id>",
		Short: "List the stored epochs of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			comps, err := cliCtx.GetComponents()
			if err != nil {
				return err
			}
			epochs, err := comps.Store.Epochs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(epochs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No history.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EPOCH\tMESSAGES")
			for _, e := range epochs {
				sess, err := comps.Store.LoadEpoch(cmd.Context(), args[0], e)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d\t%d\n", e, len(sess.Messages))
			}
			return w.Flush()
		},
	}
}

func newSessionResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <conversation-id>",
		Short: "Start a new epoch for a conversation",
		Long:  `Equivalent to the user sending /clear. Earlier epochs stay stored.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			comps, err := cliCtx.GetComponents()
			if err != nil {
				return err
			}
			sess, err := comps.Assistant.Reset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s reset, now at epoch %d\n", sess.ConversationID, sess.Epoch)
			return nil
		},
	}
}

func printSession(out io.Writer, sess *session.Session) {
	fmt.Fprintf(out, "Conversation: %s\n", sess.ConversationID)
	fmt.Fprintf(out, "Epoch:        %d\n", sess.Epoch)
	if sess.Pending != nil {
		fmt.Fprintf(out, "Awaiting:     search for %q (%d unclear replies)\n", sess.Pending.Query, sess.Pending.Attempts)
	}
	fmt.Fprintln(out)
	for _, m := range sess.Messages {
		fmt.Fprintf(out, "[%s] %s\n", m.Role, truncate(m.Content, 500))
	}
}

// truncate shortens s to at most maxRunes runes.
func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxRunes-3]) + "..."
}
