package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"githubrank/config"
	"githubrank/logger"
	"githubrank/service"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "githubrank",
	Short: "Track a star ranked leaderboard of GitHub repositories",
	Long: `githubrank samples the public GitHub repository listing, stores the
detail of every repository it finds and keeps a leaderboard of the most
starred ones, with the previous position of each entry.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".env", "env file to load settings from")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

// loadConfig reads the config file and environment, honoring --log-level
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.Load(cfgFile); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// withService loads config, sets up logging and the service, runs fn and
// tears everything down again.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service, cfg *config.Config, log *zap.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.Initialize(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	svc, err := service.NewService(cfg, log)
	if err != nil {
		log.Error("Failed to initialize service", zap.Error(err))
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error("Error during service shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return fn(ctx, svc, cfg, log)
}
