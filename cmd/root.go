package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/enroll/internal/config"
	"github.com/andresmejia3/enroll/internal/ingest"
	"github.com/andresmejia3/enroll/internal/store"
	"github.com/andresmejia3/enroll/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	// cfg is resolved once per invocation: defaults, .env, environment, then flags
	cfg *config.Config
	// logger is the structured process logger shared by subcommands
	logger *slog.Logger
	// DB is the optional journal; nil when no connection string is configured
	DB *store.Store
	// dbURL is the connection string flag
	dbURL string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "enroll",
	Short:   "Curate a known-faces database with duplicate and blacklist screening",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		override(cmd, "db", &cfg.DatabaseURL, dbURL)
		logger = config.NewLogger(cfg.Environment, os.Stderr)

		if cfg.DatabaseURL == "" {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to journal database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// The main context may already be cancelled by Ctrl+C; Close still has to reach the server.
			DB.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL journal connection string (journal disabled when empty)")
}

// override copies a flag value over the configured one when the user set it.
func override[T any](cmd *cobra.Command, name string, dst *T, v T) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		*dst = v
	}
}

// journal returns DB as an ingest.Journal, or a nil interface when disabled.
func journal() ingest.Journal {
	if DB == nil {
		return nil
	}
	return DB
}

func newSupervisor() *worker.Supervisor {
	return worker.NewSupervisor(worker.Config{
		Python:      cfg.Python,
		Script:      cfg.WorkerScript,
		Model:       cfg.Model,
		ReadTimeout: cfg.WorkerTimeout,
	}, logger)
}

func newBar(max int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
