package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/botrelay/internal/control"
	"github.com/vietddude/botrelay/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "botrelay",
	Short: "Chat-bot lookup relay",
	Long: `botrelay relays lookup commands to upstream chat bots, waits for their
multi-message replies and serves a single structured answer over HTTP.`,
	Run: runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig loads .env and the YAML config, then initializes logging.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return cfg
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	// Initialize Relay
	app, err := control.NewRelay(cfg, control.Options{})
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start relay", "error", err)
		os.Exit(1)
	}

	slog.Info("Relay started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
