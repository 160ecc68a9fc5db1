package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"meet-relay/auth"
	"meet-relay/domain"
	infragrpc "meet-relay/infrastructure/grpc"
	"meet-relay/infrastructure/websocket"
	"meet-relay/internal"
	"meet-relay/moderation"
	"meet-relay/repositories"
	"meet-relay/runtime"
	"meet-relay/runtime/workers"
	"meet-relay/services"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, serves until a signal or a server failure, then shuts down.
// Keeping it apart from main lets every defer (badger in particular) run before exiting.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
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
	if logger.Enabled(ctx, slog.LevelDebug) {
		debugPort := 8081
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", debugPort, endpoint))
		database.StartDebugServer(db, debugPort, endpoint, repositories.InspectMapper)
	}

	// 3. Collaborators
	directory := repositories.NewDirectoryRepository(db)
	messageRepository := repositories.NewMessageRepository(db, logger)
	tokens := auth.NewTokenManager(config.JwtSecret, config.AuthTokenDuration)
	access := services.NewAccessService(logger, tokens, directory, directory)

	var censor services.Censor
	if config.ModerationEnabled {
		moderator, err := buildModerator(logger, charReplacement)
		if err != nil {
			return exitConfig, err
		}
		censor = moderator
	}
	chatService := services.NewChatService(logger, messageRepository, directory, censor, services.ChatConfig{
		HistoryLimit:     config.HistoryLimit,
		MaxContentLength: config.MaxContentLength,
		EditWindow:       config.EditWindow,
	})

	// 4. Features
	signalingHub := runtime.NewHub(logger, domain.FeatureSignaling, config.SinkTimeout)
	chatHub := runtime.NewHub(logger, domain.FeatureChat, config.SinkTimeout)
	media := runtime.NewMediaStore()
	signaling := services.NewLifecycle(logger, signalingHub, access,
		services.NewSignalingRouter(logger, signalingHub, media, directory, directory))
	chat := services.NewLifecycle(logger, chatHub, access,
		services.NewChatRouter(logger, chatHub, chatService))

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewPresenceReporter(logger, config.StatsInterval, signalingHub, chatHub),
		workers.NewActivityHeartbeat(logger, directory, config.ActivityInterval, signalingHub.Registry, chatHub.Registry),
	)
	go sup.Run(ctx)

	errChan := make(chan error, 2)

	// 6. WebSocket server
	wsServer := websocket.NewServer(logger, websocket.ServerConfig{
		Pump: websocket.PumpConfig{
			BufferSize:     config.ConnectionBufferSize,
			WriteWait:      config.WriteWait,
			PongWait:       config.PongWait,
			MaxMessageSize: config.MaxMessageSize,
		},
		AllowedOrigins: config.Origins(),
	}, signaling, chat)
	httpServer := wsServer.NewHTTPServer(config.Address())
	go func() {
		logger.Info("Starting websocket server", "address", httpServer.Addr,
			"signaling", websocket.SignalingPath, "chat", websocket.ChatPath, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("websocket server error: %w", err)
		}
	}()

	// 7. gRPC health
	listener, err := net.Listen("tcp", config.HealthAddress())
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", config.HealthAddress(), err)
	}
	health := infragrpc.NewHealthServer(logger)
	health.SetServing(infragrpc.SignalingService, true)
	health.SetServing(infragrpc.ChatService, true)
	go func() {
		logger.Info("Starting gRPC health server", "address", listener.Addr().String())
		if err := health.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful shutdown: stop accepting, close live sessions, then stop the workers.
	logger.Info("Shutting down gracefully...")
	health.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	signaling.Shutdown(shutdownCtx)
	chat.Shutdown(shutdownCtx)
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

func buildModerator(logger *slog.Logger, charReplacement rune) (*moderation.Moderator, error) {
	data, err := moderation.NewCensoredLoader(moderation.Dictionaries).LoadAll(moderation.DictionariesDir)
	if err != nil {
		return nil, fmt.Errorf("censored words loading failed: %w", err)
	}
	logger.Info("Moderation enabled", "languages", data.Languages, "words", len(data.Words))
	return moderation.NewModerator(data.Words, charReplacement, logger)
}
