package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ayushjava07/DripX/internal/config"
	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/logger"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const commandTimeout = 30 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.GetLogger().Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "apikeys",
		Short: "Manage DripX API keys",
		Long: `Manage the API keys guarding the DripX HTTP API.

Requires MongoDB configuration through ENV:
  MONGODB_URI                MongoDB connection string
  MONGODB_DATABASE           Database name
  MONGODB_APIKEY_COLLECTION  API keys collection name`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			return logger.Initialize(&logger.Config{
				Level:       cfg.Logging.Level,
				Environment: cfg.Logging.Environment,
				OutputPaths: []string{"stderr"},
			})
		},
	}

	root.AddCommand(
		newInitCommand(),
		newIssueCommand(),
		newListCommand(),
		newRevokeCommand(),
		newHealthCommand(),
	)
	return root
}

// withStore connects to MongoDB, runs fn and disconnects
func withStore(cmd *cobra.Command, fn func(ctx context.Context, client *mongo.Client, cfg *config.Config) error) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	client, err := services.ConnectMongo(ctx, &cfg.MongoDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.GetLogger().Warn("Failed to disconnect from MongoDB", zap.Error(err))
		}
	}()

	return fn(ctx, client, cfg)
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the indexes of the API key collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, client *mongo.Client, cfg *config.Config) error {
				auth := services.NewAuthService(client, &cfg.MongoDB)
				defer auth.Close()

				if err := auth.EnsureIndexes(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexes ready on %s.%s\n", cfg.MongoDB.Database, cfg.MongoDB.APIKeyCollection)
				return nil
			})
		},
	}
}

func newIssueCommand() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue <name>",
		Short: "Issue a new API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, client *mongo.Client, cfg *config.Config) error {
				auth := services.NewAuthService(client, &cfg.MongoDB)
				defer auth.Close()

				key, err := auth.IssueAPIKey(ctx, args[0], ttl)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Issued API key for %s\n", key.Name)
				fmt.Fprintf(out, "  key: %s\n", key.Key)
				if key.ExpiresAt != nil {
					fmt.Fprintf(out, "  expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime of the key; 0 never expires")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, client *mongo.Client, cfg *config.Config) error {
				auth := services.NewAuthService(client, &cfg.MongoDB)
				defer auth.Close()

				keys, err := auth.ListAPIKeys(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tACTIVE\tCREATED\tEXPIRES\tLAST USED")
				for _, key := range keys {
					fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
						key.Name, key.Active, key.CreatedAt.Format(time.RFC3339),
						formatOptionalTime(key.ExpiresAt), formatOptionalTime(key.LastUsed))
				}
				return w.Flush()
			})
		},
	}
}

func newRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <name>",
		Short: "Deactivate every API key with the given name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, client *mongo.Client, cfg *config.Config) error {
				auth := services.NewAuthService(client, &cfg.MongoDB)
				defer auth.Close()

				n, err := auth.RevokeAPIKeys(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d API key(s) named %s\n", n, args[0])
				return nil
			})
		},
	}
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check MongoDB connectivity and the API key indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, client *mongo.Client, cfg *config.Config) error {
				checker := services.NewDatabaseHealthChecker(client, &cfg.MongoDB)

				healthy := true
				for _, check := range []*services.HealthCheck{checker.CheckHealth(ctx), checker.CheckIndexes(ctx)} {
					mark := "ok"
					if check.Status != services.HealthStatusHealthy {
						mark = "FAIL"
						healthy = false
					}
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s (%v)\n", mark, check.Service, check.Message, check.ResponseTime)
				}

				if !healthy {
					return fmt.Errorf("database health check failed")
				}
				return nil
			})
		},
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
