package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// LoginCmd stores the API token and server URL in the global config.
func LoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save API credentials",
		Long:  "Validate and store the API token and server URL for later commands",
		RunE:  runLogin,
	}

	cmd.Flags().String("token", "", "API token (required)")
	cmd.Flags().String("url", defaultAPIURL, "API base URL")
	cmd.MarkFlagRequired("token")

	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	token, _ := cmd.Flags().GetString("token")
	url, _ := cmd.Flags().GetString("url")

	if !IsValidAPIKey(token) {
		return fmt.Errorf("invalid token format (expected 'dct_<64 hex chars>')")
	}

	api, err := NewAPIClientWithConfig(token, url)
	if err != nil {
		return err
	}

	// A canary request validates the credential before we persist it.
	if _, err := api.Get("/sessions"); err != nil {
		return fmt.Errorf("token validation failed: %w", err)
	}

	if err := SaveGlobalConfig(&GlobalConfig{APIKey: token, APIURL: url}); err != nil {
		return err
	}

	configPath, _ := GetConfigPath()
	fmt.Printf("Credentials saved to %s\n", configPath)
	return nil
}

// LogoutCmd removes stored credentials.
func LogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return err
			}
			fmt.Println("Credentials removed")
			return nil
		},
	}
}
