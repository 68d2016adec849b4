// Package main provides the mnemosyne CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/richinex/mnemosyne/bridge"
	"github.com/richinex/mnemosyne/config"
	"github.com/richinex/mnemosyne/internal/logging"
	"github.com/richinex/mnemosyne/registry"
	"github.com/richinex/mnemosyne/server"
	"github.com/richinex/mnemosyne/storage"
	"github.com/richinex/mnemosyne/store"
	"github.com/richinex/mnemosyne/tools"
)

var (
	// Global flags; empty means use environment/default.
	datasetsRoot string
	logLevel     string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "mnemosyne",
		Short: "MCP knowledge-search server backed by FAISS datasets",
		Long: `An MCP server exposing vector-similarity search over registered
knowledge datasets. Datasets are discovered from manifest files on
disk; the actual search computation is delegated to an external
Python bridge process.`,
	}

	rootCmd.PersistentFlags().StringVar(&datasetsRoot, "datasets-root", "", "Datasets directory (overrides MNEMOSYNE_DATASETS_ROOT)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides MNEMOSYNE_LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(datasetsCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(queriesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSettings builds settings and applies flag overrides.
func loadSettings() (config.Settings, error) {
	settings, err := config.New()
	if err != nil {
		return config.Settings{}, err
	}
	if datasetsRoot != "" {
		settings.Datasets.Root = datasetsRoot
	}
	if logLevel != "" {
		settings.Log.Level = logLevel
	}
	return settings, nil
}

func newBridgeClient(settings config.Settings, logger *zap.Logger) *bridge.Client {
	return bridge.NewClient(
		settings.Bridge.Python,
		settings.Bridge.Script,
		bridge.WithSearchTimeout(settings.Bridge.SearchTimeout),
		bridge.WithCheckTimeout(settings.Bridge.CheckTimeout),
		bridge.WithLogger(logger),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve tool calls over stdio (MCP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			logger, err := logging.New(settings.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := newBridgeClient(settings, logger)

			// Startup health check is advisory: a broken bridge should
			// not prevent list_datasets from serving.
			if health, err := client.HealthCheck(ctx); err != nil {
				logger.Warn("bridge health check failed", zap.Error(err))
			} else if !health.Healthy() {
				logger.Warn("bridge reports unhealthy", zap.String("detail", health.Error))
			} else {
				logger.Info("bridge healthy", zap.String("python", health.PythonVersion))
			}

			reg := registry.New(settings.Datasets.Root,
				registry.WithIndexValidator(client),
				registry.WithLogger(logger))
			if err := reg.Load(ctx); err != nil {
				return err
			}

			cache := store.NewCache(client, logger)

			searchTool := tools.NewSearchTool(reg, cache, logger)
			if settings.Log.QueryLogPath != "" {
				queryLog, err := storage.OpenQueryLog(settings.Log.QueryLogPath)
				if err != nil {
					return err
				}
				defer queryLog.Close()
				searchTool.WithRecorder(queryLog)
			}

			toolRegistry := tools.NewRegistry()
			if err := toolRegistry.Register(searchTool); err != nil {
				return err
			}
			if err := toolRegistry.Register(tools.NewListDatasetsTool(reg)); err != nil {
				return err
			}

			logger.Info("serving on stdio",
				zap.String("datasets_root", settings.Datasets.Root),
				zap.Strings("tools", toolRegistry.Names()))

			return server.New(os.Stdin, os.Stdout, toolRegistry, logger).Run(ctx)
		},
	}
}

func datasetsCmd() *cobra.Command {
	var showErrors bool

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Load the dataset registry and print its contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			logger, err := logging.New(settings.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client := newBridgeClient(settings, logger)
			reg := registry.New(settings.Datasets.Root,
				registry.WithIndexValidator(client),
				registry.WithLogger(logger))
			if err := reg.Load(cmd.Context()); err != nil {
				return err
			}

			stats := reg.Stats()
			fmt.Printf("Datasets under %s: %d total, %d ready, %d failed\n",
				settings.Datasets.Root, stats.Total, stats.Ready, stats.Errors)

			for _, dataset := range reg.List() {
				fmt.Printf("  %-20s %s (topK=%d)\n", dataset.ID, dataset.Name, dataset.DefaultTopK)
				fmt.Printf("  %-20s index: %s\n", "", dataset.IndexPath)
			}

			if showErrors {
				for _, failure := range reg.ListErrors() {
					fmt.Printf("  [error] %s: %s\n", failure.Path, failure.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showErrors, "errors", false, "Also print datasets that failed to load")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the search bridge is functional",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			logger, err := logging.New(settings.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client := newBridgeClient(settings, logger)
			health, err := client.HealthCheck(cmd.Context())
			if err != nil {
				return fmt.Errorf("bridge health check failed: %w", err)
			}

			fmt.Printf("status: %s\n", health.Status)
			if health.PythonVersion != "" {
				fmt.Printf("python: %s\n", health.PythonVersion)
			}
			for name, state := range health.Dependencies {
				fmt.Printf("  %s: %s\n", name, state)
			}
			if !health.Healthy() {
				return fmt.Errorf("bridge unhealthy: %s", health.Error)
			}
			return nil
		},
	}
}

func queriesCmd() *cobra.Command {
	var dataset string
	var limit int

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Print recent entries from the query log",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if settings.Log.QueryLogPath == "" {
				return fmt.Errorf("query logging is disabled; set MNEMOSYNE_QUERY_LOG")
			}

			queryLog, err := storage.OpenQueryLog(settings.Log.QueryLogPath)
			if err != nil {
				return err
			}
			defer queryLog.Close()

			var records []storage.QueryRecord
			if dataset != "" {
				records, err = queryLog.RecentForDataset(cmd.Context(), dataset, limit)
			} else {
				records, err = queryLog.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			for _, rec := range records {
				ts := time.Unix(rec.CreatedAt, 0).Format(time.RFC3339)
				fmt.Printf("%s  %-12s %-5s %4d results %6dms  %q\n",
					ts, rec.DatasetID, rec.Status, rec.ResultCount, rec.DurationMs, rec.Query)
				if rec.Error != "" {
					fmt.Printf("    error: %s\n", rec.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Only show queries for this dataset id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records to show")
	return cmd
}
