package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type sessionView struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at"`
}

func SessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/sessions")
			if err != nil {
				return err
			}

			var sessions []sessionView
			if err := json.Unmarshal(resp.Data, &sessions); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if asJSON(cmd) {
				return printJSON(sessions)
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions found")
				return nil
			}
			for _, s := range sessions {
				title := s.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("  %s  %s  %s\n", s.ID, s.CreatedAt, title)
			}
			return nil
		},
	}

	cmd.AddCommand(sessionsCreateCmd())

	return cmd
}

func sessionsCreateCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var body interface{}
			if title != "" {
				body = map[string]string{"title": title}
			}
			resp, err := api.Post("/sessions", body)
			if err != nil {
				return err
			}

			var session sessionView
			if err := json.Unmarshal(resp.Data, &session); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if asJSON(cmd) {
				return printJSON(session)
			}
			fmt.Printf("Session created: %s\n", session.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Optional session title")

	return cmd
}
