package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/realtime"
	"github.com/spf13/cobra"
)

type messageView struct {
	ID        int64                   `json:"id"`
	SessionID string                  `json:"session_id"`
	Role      string                  `json:"role"`
	Content   string                  `json:"content"`
	Metadata  *domain.MessageMetadata `json:"metadata,omitempty"`
	CreatedAt string                  `json:"created_at"`
}

type messagePageView struct {
	Items   []messageView `json:"items"`
	Cursor  string        `json:"cursor,omitempty"`
	HasMore bool          `json:"has_more"`
}

func ChatCmd() *cobra.Command {
	var (
		message string
		follow  bool
	)

	cmd := &cobra.Command{
		Use:   "chat <session-id>",
		Short: "Send a message and read the answer",
		Long: `Sends a message to a chat session and prints the grounded answer
with its source citations. With --follow, stays connected and prints
messages as they arrive, including those from other clients.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			sessionID := args[0]

			if message != "" {
				if err := runChatSend(cmd, api, sessionID, message); err != nil {
					return err
				}
			}
			if follow {
				return runChatFollow(cmd, api, sessionID)
			}
			if message == "" {
				return fmt.Errorf("nothing to do: pass --message, --follow, or both")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Message to send")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream session messages until interrupted")

	cmd.AddCommand(chatHistoryCmd())

	return cmd
}

func runChatSend(cmd *cobra.Command, api *APIClient, sessionID, content string) error {
	resp, err := api.Post("/sessions/"+sessionID+"/messages", map[string]string{"content": content})
	if err != nil {
		return err
	}

	var answer messageView
	if err := json.Unmarshal(resp.Data, &answer); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if asJSON(cmd) {
		return printJSON(answer)
	}
	printMessage(answer.Role, answer.Content, answer.Metadata)
	return nil
}

func runChatFollow(cmd *cobra.Command, api *APIClient, sessionID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream := realtime.NewStreamClient(api.BaseURL(), api.APIKey(), sessionID)
	stream.OnState = func(state realtime.ClientState, attempt int) {
		switch state {
		case realtime.ClientStateStreaming:
			fmt.Fprintln(os.Stderr, "connected, streaming messages (Ctrl+C to stop)")
		case realtime.ClientStateBackoff:
			fmt.Fprintf(os.Stderr, "connection lost, retrying (attempt %d)\n", attempt)
		}
	}

	err := stream.Follow(ctx, func(ev realtime.Event) {
		if asJSON(cmd) {
			data, merr := json.Marshal(ev)
			if merr == nil {
				fmt.Println(string(data))
			}
			return
		}
		printMessage(ev.Role, ev.Content, ev.Metadata)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func chatHistoryCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "List session messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			query := url.Values{}
			query.Set("limit", fmt.Sprintf("%d", limit))
			if cursor != "" {
				query.Set("cursor", cursor)
			}
			resp, err := api.Get("/sessions/" + args[0] + "/messages?" + query.Encode())
			if err != nil {
				return err
			}

			var page messagePageView
			if err := json.Unmarshal(resp.Data, &page); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if asJSON(cmd) {
				return printJSON(page)
			}
			for _, m := range page.Items {
				printMessage(m.Role, m.Content, m.Metadata)
			}
			if page.HasMore && page.Cursor != "" {
				fmt.Printf("\nMore messages available. Use --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of messages")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func printMessage(role, content string, meta *domain.MessageMetadata) {
	fmt.Printf("[%s] %s\n", role, content)
	if meta == nil || len(meta.Sources) == 0 {
		return
	}
	fmt.Println("  sources:")
	for _, s := range meta.Sources {
		fmt.Printf("    %s (chunk %d, score %.2f)\n", s.Filename, s.ChunkPosition, s.Score)
	}
}
