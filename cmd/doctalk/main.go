package main

import (
	"fmt"
	"os"

	"github.com/doctalk-ai/doctalk/internal/cli"
	"github.com/doctalk-ai/doctalk/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "doctalk",
		Short: "DocTalk CLI - Chat with your documents",
		Long: `DocTalk CLI uploads documents and chats with them over the DocTalk API.

Environment variables:
  DOCTALK_API_KEY   API token for authentication (required)
  DOCTALK_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API token for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.LoginCmd())
	rootCmd.AddCommand(client.LogoutCmd())
	rootCmd.AddCommand(client.UploadCmd())
	rootCmd.AddCommand(client.DocsCmd())
	rootCmd.AddCommand(client.SessionsCmd())
	rootCmd.AddCommand(client.ChatCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
