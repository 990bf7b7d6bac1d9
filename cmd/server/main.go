package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/auth"
	"chat-relay/infrastructure/http/server"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, serves until a signal arrives and lets the
// deferred cleanups release Badger before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	conversations, err := repositories.NewConversationRepository(db, logger, config.LimitMessages)
	if err != nil {
		return exitRuntime, fmt.Errorf("conversation store: %w", err)
	}
	defer func() { _ = conversations.Close() }()
	users := repositories.NewUserRepository(db, logger)

	reset, err := users.ResetOnline(ctx)
	if err != nil {
		return exitRuntime, fmt.Errorf("presence reset: %w", err)
	}
	if reset > 0 {
		logger.Info("Cleared stale online flags", "count", reset)
	}

	// 3. Core services
	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	tokens := auth.NewTokenService(config.JWTSecret, config.AuthTokenDuration)
	presence := services.NewPresenceService(config.BufferSize, metrics, logger)
	moderator, err := buildModerator(config, logger)
	if err != nil {
		return exitConfig, err
	}
	delivery := services.NewDeliveryService(conversations, users, registry, metrics, logger).
		WithModerator(moderator).
		WithNotifyTimeout(config.SinkTimeout)
	chatService := services.NewChatService(conversations, users, tokens, registry, delivery, presence, metrics, logger).
		WithSendLimit(config.SendRate, config.SendBurst)
	authService := services.NewAuthService(users, tokens, presence, logger)

	var inspect fiber.Handler
	if logger.Enabled(ctx, slog.LevelDebug) {
		inspect = internal.InspectHandler(db, repositories.Describe)
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, internal.StoreMapper)
	}

	// 4. Supervision
	sup := workers.NewSupervisor(logger, config.RestartInterval).
		OnRestart(func(workerName string) {
			metrics.WorkerRestarts.WithLabelValues(workerName).Inc()
		})
	sup.Add(
		workers.NewPresenceFanout(logger, presence.Events(), registry, metrics, config.SinkTimeout),
		workers.NewConnectionMonitor(logger, registry, metrics, config.PongWait),
		workers.NewChannelCapacityWorker(logger, []workers.NamedChannel{
			{Name: "presence", Channel: presence.Events()},
		}, metrics, config.PongWait),
	)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 6. HTTP & WebSocket server
	httpServer := server.NewServer(logger, chatService, authService, users, tokens, metrics, server.Options{
		ConnectionBufferSize: config.ConnectionBufferSize,
		WriteTimeout:         config.WriteTimeout,
		PongWait:             config.PongWait,
		PingPeriod:           config.PingPeriod(),
		MaxMessageSize:       config.MaxMessageSize,
		Inspect:              inspect,
	})

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting chat relay", "address", config.Address(), "at", time.Now().UTC())
		if err := httpServer.Listen(config.Address()); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		sup.Stop()
		return exitRuntime, err
	}

	// 8. Final Cleanup
	logger.Info("Shutting down gracefully...")
	if err := httpServer.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

// buildModerator returns nil, which censors nothing, when no word list is configured.
func buildModerator(config internal.Config, logger *slog.Logger) (*moderation.Moderator, error) {
	if config.CensoredWordsDir == "" {
		return nil, nil
	}
	dict, err := moderation.LoadDictionary(os.DirFS(config.CensoredWordsDir), ".")
	if err != nil {
		return nil, fmt.Errorf("censored words: %w", err)
	}
	logger.Info("Censored words loaded", "words", len(dict.Words), "languages", dict.Languages)
	return moderation.NewModerator(dict.Words, config.CensorRune(), logger)
}
