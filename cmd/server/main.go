package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatrelay/internal/broadcast"
	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/metrics"
	"github.com/Tyrowin/chatrelay/internal/registry"
	"github.com/Tyrowin/chatrelay/internal/server"
)

var (
	envFile        string
	port           string
	logLevel       string
	allowedOrigins []string
)

var rootCmd = &cobra.Command{
	Use:          "chatrelay",
	Short:        "Real-time WebSocket chat relay",
	Long:         `chatrelay accepts WebSocket clients on /ws and relays every chat message, join and departure to all connected clients.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "optional .env file loaded before reading the environment")
	rootCmd.Flags().StringVar(&port, "port", "", "listen address, overrides SERVER_PORT")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides LOG_LEVEL")
	rootCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origins", nil, "allowed WebSocket origins, overrides ALLOWED_ORIGINS")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	envErr := godotenv.Load(envFile)

	cfg := server.NewConfigFromEnv()
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("allowed-origins") {
		cfg.AllowedOrigins = allowedOrigins
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("Failed to load env file", zap.String("path", envFile), zap.Error(envErr))
	}

	logger.Info("Starting chat relay...")

	promReg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(promReg)
	clock := clockwork.NewRealClock()

	engine := broadcast.NewEngine(
		registry.New(clock),
		broadcast.WithClock(clock),
		broadcast.WithLogger(logger.Named("broadcast")),
		broadcast.WithMetrics(relayMetrics),
	)
	srv := server.NewServer(cfg, engine, logger.Named("server"), promReg, relayMetrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	}

	if err := srv.Shutdown(srv.Config().ShutdownTimeout); err != nil {
		logger.Error("Shutdown did not complete cleanly", zap.Error(err))
		return err
	}
	return nil
}
