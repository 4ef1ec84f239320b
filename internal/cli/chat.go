package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pawbot/internal/assistant"
)

// turnFunc runs one turn; a nil reply means the message was ignored.
type turnFunc func(ctx context.Context, text string) (*assistant.Reply, error)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	var (
		sessionID string
		userID    string
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant",
		Long: `Send a message to the assistant and print the reply.

By default the assistant runs in-process against the local database and
knowledge base. With --url the message goes to a running server instead
(started with 'pawbot serve').

If no message is provided as an argument, an interactive chat starts.`,
		Example: `  # Send a single message
  pawbot chat "Во сколько вы открываетесь?"

  # Continue a specific conversation
  pawbot chat --session 42 "А в воскресенье?"

  # Talk to a running server
  pawbot chat --url http://127.0.0.1:18790

  # Interactive chat
  pawbot chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			if userID == "" {
				userID = sessionID
			}

			var turn turnFunc
			if serverURL != "" {
				turn = remoteTurn(&http.Client{Timeout: 5 * time.Minute}, serverURL, sessionID, userID)
			} else {
				comps, err := cliCtx.GetComponents()
				if err != nil {
					return err
				}
				turn = func(ctx context.Context, text string) (*assistant.Reply, error) {
					return comps.Assistant.Handle(ctx, assistant.Inbound{
						ConversationID: sessionID,
						UserID:         userID,
						Text:           text,
						Private:        true,
					})
				}
			}

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return sendMessage(cmd.Context(), out, turn, strings.Join(args, " "))
			}
			return runInteractiveChat(cmd.Context(), cmd.InOrStdin(), out, turn, isTerminal(cmd.InOrStdin()))
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "cli", "conversation ID")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (defaults to the conversation ID)")
	cmd.Flags().StringVar(&serverURL, "url", "", "pawbot server URL; empty runs the assistant in-process")

	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func sendMessage(ctx context.Context, out io.Writer, turn turnFunc, text string) error {
	reply, err := turn(ctx, text)
	if reply != nil {
		printReply(out, reply)
	}
	return err
}

func printReply(out io.Writer, reply *assistant.Reply) {
	if reply.Notice != "" {
		fmt.Fprintf(out, "[%s]\n", reply.Notice)
	}
	for _, part := range reply.Parts {
		fmt.Fprintln(out, part)
	}
	if reply.Attachment != "" {
		fmt.Fprintf(out, "📎 %s\n", reply.Attachment)
	}
}

func runInteractiveChat(ctx context.Context, in io.Reader, out io.Writer, turn turnFunc, interactive bool) error {
	if interactive {
		fmt.Fprintln(out, "Pawbot Interactive Chat")
		fmt.Fprintln(out, "-----------------------")
		fmt.Fprintln(out, "Type 'exit' or 'quit' to end the session")
		fmt.Fprintln(out, "Type '/clear' to start a new conversation")
		fmt.Fprintln(out)
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "You: ")
		}
		if !scanner.Scan() {
			if interactive {
				fmt.Fprintln(out)
			}
			return scanner.Err()
		}

		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			return nil
		}

		reply, err := turn(ctx, message)
		if reply != nil {
			printReply(out, reply)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		if interactive {
			fmt.Fprintln(out)
		}
	}
}

// remoteTurn posts messages to the conversation endpoint of a server.
func remoteTurn(client *http.Client, serverURL, sessionID, userID string) turnFunc {
	endpoint := strings.TrimRight(serverURL, "/") +
		"/api/v1/conversations/" + url.PathEscape(sessionID) + "/messages"

	return func(ctx context.Context, text string) (*assistant.Reply, error) {
		body, err := json.Marshal(map[string]any{"text": text, "user_id": userID})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w\nIs the server running? Start it with: pawbot serve", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}

		var msg struct {
			Reply         *assistant.Reply `json:"reply"`
			AttachmentURL string           `json:"attachment_url"`
			Error         *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
			return nil, fmt.Errorf("server returned status %d: %w", resp.StatusCode, err)
		}
		if msg.Reply != nil && msg.AttachmentURL != "" {
			msg.Reply.Attachment = strings.TrimRight(serverURL, "/") + msg.AttachmentURL
		}
		if msg.Error != nil {
			return msg.Reply, fmt.Errorf("server error %s: %s", msg.Error.Code, msg.Error.Message)
		}
		return msg.Reply, nil
	}
}
