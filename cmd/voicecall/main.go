package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/adapters/api"
	"github.com/MareskoY/tutor-ai/adapters/audio"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/internal/call"
	"github.com/MareskoY/tutor-ai/internal/config"
	"github.com/MareskoY/tutor-ai/internal/control"
	"github.com/MareskoY/tutor-ai/internal/realtime"
)

func main() {
	cfg := config.LoadClient()

	// Initialize logger
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if cfg.UserToken == "" {
		logger.Fatal("TUTOR_USER_TOKEN is required")
	}
	chatType := entities.ChatType(cfg.ChatType)
	if !chatType.Valid() {
		logger.Fatal("Unknown chat type", zap.String("chatType", cfg.ChatType))
	}
	chatID := cfg.ChatID
	if chatID == "" {
		chatID = uuid.New().String()
		logger.Info("CHAT_ID is not set, starting a new chat", zap.String("chatID", chatID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize adapters
	apiClient := api.NewClient(cfg.APIURL, cfg.UserToken, cfg.HTTPTimeout, logger)
	credentials := api.NewCredentialClient(apiClient, chatID, chatType, cfg.Voice)
	records := api.NewCallRecordClient(apiClient, chatType, logger)
	transcripts := api.NewTranscriptClient(apiClient)

	manager, err := realtime.NewManager(
		audio.NewOggMicrophone(cfg.MicOggPath, false, logger),
		audio.NewOggSpeaker(cfg.SpeakerOggPath, logger),
		realtime.Options{
			BaseURL:            cfg.RealtimeURL,
			Model:              cfg.RealtimeModel,
			ICEServers:         []string{cfg.STUNServer},
			HTTPClient:         &http.Client{Timeout: cfg.HTTPTimeout},
			InitialInstruction: cfg.InitialInstruction,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize realtime manager", zap.Error(err))
	}

	coordinator := call.NewCoordinator(credentials, records, transcripts, call.NewManagerOpener(manager), call.Options{
		ChatID:       chatID,
		Voice:        cfg.Voice,
		TickInterval: cfg.TickInterval,
		FlushEvery:   cfg.FlushEvery,
	}, logger)
	coordinator.RegisterFunction(realtime.ToolDefinition{
		Name:        "getCurrentTime",
		Description: "Returns the current local date and time of the student",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		now := time.Now()
		return map[string]string{"time": now.Format(time.RFC3339), "zone": now.Location().String()}, nil
	})

	server := control.NewServer(coordinator, logger)
	go server.Run(ctx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server.InitRoutes(e)

	go func() {
		if err := e.Start("127.0.0.1:" + cfg.ControlPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the control server", zap.Error(err))
		}
	}()

	logger.Info("Voice call client started",
		zap.String("controlPort", cfg.ControlPort),
		zap.String("chatID", chatID),
		zap.String("chatType", string(chatType)))

	<-ctx.Done()
	logger.Info("Voice call client is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// the final flush runs inside Stop
	if err := coordinator.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop call", zap.Error(err))
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Control server forced to shutdown", zap.Error(err))
	}

	logger.Info("Voice call client exited")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
