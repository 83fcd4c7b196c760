package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/timecapsule/internal/app"
	"github.com/MrSnakeDoc/timecapsule/internal/config"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
	"github.com/MrSnakeDoc/timecapsule/internal/postgres"
	"github.com/MrSnakeDoc/timecapsule/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "timecapsule",
		Short:         "Time capsule journaling backend",
		Long:          "Stores sealed capsules, notifies recipients when they unlock, and suggests journaling prompts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = version.String()

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ timecapsule: %v\n", err)
		os.Exit(1)
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the unlock sweep and storage GC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.New(cfg.LogLevel, cfg.PrettyLog)
			defer func() { _ = log.Sync() }()

			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one unlock sweep and exit",
		Long:  "Runs exactly one unlock notification sweep, for cron or other external schedulers, and prints its report as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.New(cfg.LogLevel, cfg.PrettyLog)
			defer func() { _ = log.Sync() }()

			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Sweep(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func migrateCmd() *cobra.Command {
	var (
		databaseURL string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("CAPSULE_DATABASE_URL"), "Postgres URL (defaults to $CAPSULE_DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level")

	requireURL := func() error {
		if databaseURL == "" {
			return fmt.Errorf("--database-url or CAPSULE_DATABASE_URL is required")
		}
		return nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireURL(); err != nil {
				return err
			}
			return postgres.Migrate(databaseURL, logger.New(logLevel, true))
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the latest migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireURL(); err != nil {
				return err
			}
			return postgres.Rollback(databaseURL, steps, logger.New(logLevel, true))
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert")

	cmd.AddCommand(up, down)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
