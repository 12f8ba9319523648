package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doctalk-ai/doctalk/internal/repository"
	"github.com/doctalk-ai/doctalk/internal/service"
)

func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
		Long:  "Create and revoke API tokens",
	}

	cmd.AddCommand(TokenCreateCmd())
	cmd.AddCommand(TokenRevokeCmd())

	return cmd
}

func TokenCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API token",
		Long:  "Create a new API token for a user",
		RunE:  runTokenCreate,
	}

	cmd.Flags().StringP("email", "e", "", "User email (required)")
	cmd.Flags().StringP("name", "n", "", "Token name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(userRepo, tokenRepo, uuidGen)

	plaintext, err := authSvc.CreateToken(ctx, email, name)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"email": email,
			"name":  name,
			"token": plaintext,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Token created for %s\n", email)
		fmt.Printf("Token Name: %s\n", name)
		fmt.Printf("Token: %s\n", plaintext)
		fmt.Println("\n⚠️  Save this token now. You won't be able to see it again!")
	}

	return nil
}

func TokenRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API token",
		Long:  "Revoke an API token by its ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runTokenRevoke,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tokenID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tokenRepo := repository.NewTokenRepository(pool)
	if err := tokenRepo.Revoke(ctx, tokenID); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":      tokenID,
			"revoked": true,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Token %s revoked successfully\n", tokenID)
	}

	return nil
}
