package main

import (
	"fmt"
	"os"

	"github.com/doctalk-ai/doctalk/internal/cli"
	"github.com/doctalk-ai/doctalk/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "doctalkd",
		Short: "DocTalk daemon and admin CLI",
		Long:  "DocTalk daemon for running the API server, the ingestion worker, and managing users and API tokens",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.UserCmd())
	rootCmd.AddCommand(admin.TokenCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
