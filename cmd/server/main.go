package main

import (
	"context"
	"errors"
	"fmt"
	"huddle/auth"
	"huddle/infrastructure/rest"
	"huddle/infrastructure/ws"
	"huddle/internal"
	"huddle/moderation"
	"huddle/repositories"
	"huddle/runtime"
	"huddle/runtime/workers"
	"huddle/services"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/shirou/gopsutil/process"
)

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

func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	messageRepository, err := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		if err := messageRepository.Release(); err != nil {
			logger.Warn("Failed to release message sequence", "error", err)
		}
	}()
	membershipRepository := repositories.NewMembershipRepository(db, logger)
	callRepository := repositories.NewCallRepository(db, logger)
	messageIndex := repositories.NewMessageIndex(blugeWriter, logger)

	// 3. Moderation
	dictionary, err := moderation.DefaultDictionary()
	if err != nil {
		return exitRuntime, err
	}
	moderator, err := moderation.NewModerator(dictionary.Words, charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
	}
	logger.Debug("Moderation dictionary loaded", "words", len(dictionary.Words), "languages", dictionary.Languages)

	// 4. Real-time core
	tokenManager := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	orchestrator := runtime.NewOrchestrator(logger, workers.NewSupervisor(logger, config.RestartInterval),
		runtime.Collaborators{
			Verifier:  tokenManager,
			Messages:  messageRepository,
			Members:   membershipRepository,
			Statuses:  repositories.NewStatusRepository(db),
			Calls:     callRepository,
			Index:     messageIndex,
			Moderator: moderator,
		},
		runtime.Settings{
			BufferSize:       config.BufferSize,
			NumberOfWorkers:  config.NumberOfWorkers,
			ProbeInterval:    config.ProbeInterval,
			RingTimeout:      config.RingTimeout,
			HandshakeTimeout: config.HandshakeTimeout,
			MaxContentLength: config.MaxContentLength,
		})
	orchestrator.Start(ctx)

	// 5. HTTP surface
	wsHandler := ws.NewHandler(orchestrator, logger, ws.Settings{
		AllowedOrigins: config.Origins(),
		SendBuffer:     config.ConnectionBufferSize,
		WriteTimeout:   config.WriteTimeout,
		MaxMessageSize: config.MaxMessageSize,
	})
	handler := rest.NewHandler(
		services.NewCallService(orchestrator.Loop(), orchestrator.Coordinator(), callRepository),
		services.NewChatService(messageRepository, membershipRepository, messageIndex, logger),
		tokenManager,
		health(orchestrator),
		wsHandler,
		logger,
	)
	server := &http.Server{
		Addr:              config.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", server.Addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errChan:
		code = exitRuntime
	}

	// 7. Graceful shutdown: stop accepting requests, then stop the core.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")
	return code, err
}

// health reports the live counters of the core and a sample of the process.
func health(orchestrator *runtime.Orchestrator) rest.HealthFunc {
	self, _ := process.NewProcess(int32(os.Getpid()))
	return func(ctx context.Context) (any, error) {
		stats, err := orchestrator.Stats(ctx)
		if err != nil {
			return nil, err
		}
		details := map[string]any{"core": stats}
		if usage, ok := workers.SampleProcess(self); ok {
			details["process"] = usage
		}
		return details, nil
	}
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
