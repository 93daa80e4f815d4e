package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/adapters/llm"
	"github.com/MareskoY/tutor-ai/adapters/memory"
	"github.com/MareskoY/tutor-ai/adapters/mongo"
	"github.com/MareskoY/tutor-ai/adapters/openai"
	"github.com/MareskoY/tutor-ai/adapters/postgres"
	"github.com/MareskoY/tutor-ai/domain/repositories"
	"github.com/MareskoY/tutor-ai/internal/api"
	"github.com/MareskoY/tutor-ai/internal/auth"
	"github.com/MareskoY/tutor-ai/internal/config"
	"github.com/MareskoY/tutor-ai/internal/ratelimit"
	"github.com/MareskoY/tutor-ai/usecase"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a user token for the given user id and exit")
	tokenTTL := flag.Duration("token-ttl", 0, "lifetime of an issued token (default 7 days)")
	flag.Parse()

	cfg := config.LoadServer()

	// Initialize logger
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("Invalid JWT configuration", zap.Error(err))
	}

	if *issueToken != "" {
		token, err := tokens.GenerateUserToken(*issueToken, *tokenTTL)
		if err != nil {
			logger.Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize adapters
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize rate limiter", zap.Error(err))
	}

	minter, err := openai.NewSessionMinter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session minter", zap.Error(err))
	}

	var model repositories.LargeLanguageModel
	if cfg.GeminiAPIKey != "" {
		model, err = llm.NewGeminiLLM(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Gemini", zap.Error(err))
		}
	} else {
		logger.Info("GEMINI_API_KEY is not set, using mock summaries")
		model = llm.NewMockLLM()
	}

	// Initialize usecase services
	streamService := usecase.NewStreamService(store.Users(), minter, limiter, cfg.RealtimeModel, cfg.DefaultVoice, logger)
	callService := usecase.NewCallService(store, model, logger)
	userService := usecase.NewUserService(store.Users(), logger)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{Timeout: cfg.RequestTimeout}))

	// Initialize API routes
	api.InitRoutes(e, tokens, streamService, callService, userService, logger)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Tutor API started",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("redisLimiter", cfg.RedisURL != ""))

	<-ctx.Done()
	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}

	logger.Info("Server exited")
}

func openStore(ctx context.Context, cfg config.Server, logger *zap.Logger) (repositories.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return memory.NewStore(), nil
	case "mongo":
		client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		return mongo.NewStore(ctx, client, logger)
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresURL, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newLimiter(ctx context.Context, cfg config.Server, logger *zap.Logger) (ratelimit.Limiter, error) {
	if cfg.RedisURL == "" {
		return ratelimit.NewMemoryLimiter(cfg.CredentialPerMin, time.Minute), nil
	}
	client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	logger.Info("Using Redis rate limiter")
	return ratelimit.NewRedisLimiter(client, cfg.CredentialPerMin, time.Minute), nil
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
