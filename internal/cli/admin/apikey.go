package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/vectorgate/internal/config"
	"github.com/cloo-solutions/vectorgate/internal/repository"
	"github.com/cloo-solutions/vectorgate/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create, list, and revoke API keys",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyListCmd())
	cmd.AddCommand(APIKeyRevokeCmd())

	return cmd
}

func APIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Create a new API key for a calling application",
		RunE:  runAPIKeyCreate,
	}

	cmd.Flags().StringP("name", "n", "", "API key name (required)")
	cmd.Flags().String("output", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name, _ := cmd.Flags().GetString("name")
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	keyRepo := repository.NewAPIKeyRepository(pool)
	authSvc := service.NewAuthService(keyRepo, &service.DefaultUUIDGenerator{})

	plaintext, err := authSvc.CreateAPIKey(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	key, err := authSvc.GetAPIKeyByToken(ctx, plaintext)
	if err != nil {
		return fmt.Errorf("failed to retrieve created key: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(map[string]interface{}{
			"id":    key.ID,
			"name":  name,
			"token": plaintext,
		})
	}

	fmt.Printf("API key created\n")
	fmt.Printf("Key ID: %s\n", key.ID)
	fmt.Printf("Key Name: %s\n", name)
	fmt.Printf("Token: %s\n", plaintext)
	fmt.Println("\n⚠️  Save this token now. You won't be able to see it again!")
	return nil
}

func APIKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Long:  "List all API keys, newest first",
		RunE:  runAPIKeyList,
	}

	cmd.Flags().String("output", "text", "Output format (text or json)")

	return cmd
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	keys, err := repository.NewAPIKeyRepository(pool).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	if outputFormat == "json" {
		rows := make([]map[string]interface{}, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, map[string]interface{}{
				"id":         key.ID,
				"name":       key.Name,
				"created_at": key.CreatedAt,
				"revoked_at": key.RevokedAt,
				"revoked":    key.IsRevoked(),
			})
		}
		return printJSON(rows)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found")
		return nil
	}
	for _, key := range keys {
		status := "active"
		if key.IsRevoked() {
			status = "revoked"
		}
		fmt.Printf("  %s: %s (%s, created: %s)\n",
			key.ID, key.Name, status, key.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func APIKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Long:  "Revoke an API key by its ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyRevoke,
	}

	cmd.Flags().String("output", "text", "Output format (text or json)")

	return cmd
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	keyID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.NewAPIKeyRepository(pool).Revoke(ctx, keyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(map[string]interface{}{
			"id":      keyID,
			"revoked": true,
		})
	}

	fmt.Printf("API key %s revoked\n", keyID)
	return nil
}
