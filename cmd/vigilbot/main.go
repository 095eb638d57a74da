// Command vigilbot runs a supervised long-polling Telegram bot.
//
// Exit codes follow the supervisor outcome: 0 clean shutdown, 1 fatal
// (bad credentials), 2 retries exhausted, 3 handler load exhausted.
package main

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

	"github.com/prilive-com/vigil"
	"github.com/prilive-com/vigil/botclient"
	"github.com/prilive-com/vigil/cmd/vigilbot/config"
	"github.com/prilive-com/vigil/cmd/vigilbot/handlers"
	"github.com/prilive-com/vigil/tg"
)

var (
	debug    bool
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:          "vigilbot",
	Short:        "Supervised long-polling Telegram bot",
	Long:         "vigilbot connects to the Telegram Bot API over long polling under a resilient connection supervisor: transient failures are retried with linear capped backoff, credential rejections stop the process immediately.",
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// main owns the final os.Exit so deferred cleanup in run always unwinds.
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run(cmd *cobra.Command, args []string) error {
	// .env never overrides real environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := cfg.Level()
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)

	logger.Info("vigilbot starting",
		"admins", cfg.Admins,
		"max_retries", cfg.MaxRetries,
		"base_delay", cfg.BaseDelay,
	)

	clientCfg := botclient.DefaultConfig()
	clientCfg.Token = tg.SecretToken(cfg.Token)
	clientCfg.PollTimeout = cfg.PollTimeout
	clientCfg.PollLimit = cfg.PollLimit
	clientCfg.MaxErrors = cfg.PollMaxErrors
	if cfg.APIBaseURL != "" {
		clientCfg.BaseURL = cfg.APIBaseURL
	}

	client, err := botclient.New(clientCfg, botclient.WithLogger(logger))
	if err != nil {
		return err
	}

	registry := handlers.NewRegistry(client, cfg.Admins, logger)

	opts := []vigil.Option{
		vigil.WithLogger(logger),
		vigil.WithMaxRetries(cfg.MaxRetries),
		vigil.WithBaseDelay(cfg.BaseDelay),
		vigil.WithCapFactor(cfg.CapFactor),
		vigil.WithStartupHook(func(ctx context.Context) error {
			logger.Info("bot online")
			return nil
		}),
		vigil.WithShutdownHook(func(ctx context.Context) error {
			logger.Info("bot offline")
			return nil
		}),
	}
	if cfg.Preflight {
		opts = append(opts, vigil.WithPreflight())
	}

	sup, err := vigil.New(client, registry, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome := sup.Run(ctx)
	exitCode = outcome.ExitCode()
	if exitCode != 0 {
		logger.Error("vigilbot aborted",
			"outcome", outcome.String(),
			"exit_code", exitCode,
		)
		return nil
	}
	logger.Info("vigilbot stopped")
	return nil
}
