package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mhpenta/weaver"
	"github.com/mhpenta/weaver/internal/config"
	"github.com/mhpenta/weaver/internal/logger"
	"github.com/mhpenta/weaver/internal/server"
	"github.com/mhpenta/weaver/lifecycle"
	"github.com/mhpenta/weaver/notify"
	"github.com/mhpenta/weaver/provider/gemini"
	"github.com/mhpenta/weaver/provider/openai"
	"github.com/mhpenta/weaver/ratelimiter"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	zap.L().Info("Starting weaver", zap.String("env", cfg.AppEnv), zap.String("provider", cfg.Image.Provider))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	gen, err := newGenerator(ctx, cfg)
	cancel()
	if err != nil {
		zap.L().Fatal("Failed to create image provider", zap.Error(err))
	}

	opts := []weaver.ManagerOption{weaver.WithLogger(zapLogger)}
	if cfg.Image.Model != "" {
		opts = append(opts, weaver.WithDefaultModel(weaver.Model(cfg.Image.Model)))
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := pingRedis(redisClient); err != nil {
			zap.L().Warn("Redis unreachable, shared rate limiter will fail open", zap.Error(err))
		}
		if limiter := sharedLimiter(gen, redisClient, zapLogger); limiter != nil {
			opts = append(opts, weaver.WithSharedRateLimiter(limiter))
			zap.L().Info("Using Redis rate limiter", zap.String("addr", cfg.Redis.Addr))
		}
	}

	manager := weaver.NewManager(gen, opts...)

	action := weaver.NewAction(manager,
		weaver.WithActionTimeout(cfg.Generation.Timeout),
		weaver.WithActionLogger(zapLogger),
		weaver.WithOutcomeObserver(server.ObserveOutcome),
	)

	bus := notify.NewBus(notify.WithLogger(zapLogger))

	srvHandler := server.New(action, manager, bus, zapLogger, server.Options{
		Timeout:        cfg.Generation.Timeout,
		Debounce:       cfg.Generation.DebounceInterval,
		Progress:       lifecycle.DefaultProgressConfig(),
		AllowedOrigins: cfg.GetAllowedOrigins(),
		Development:    cfg.IsDevelopment(),
		Metrics:        true,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     srvHandler.Router(),
		ReadTimeout: 15 * time.Second,
		// generation requests can take as long as the generation timeout
		WriteTimeout: cfg.Generation.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	// hijacked websocket connections are not closed by Shutdown
	srvHandler.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	bus.Close()
	if err := manager.Close(); err != nil {
		zap.L().Error("Error closing providers", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			zap.L().Error("Error closing Redis client", zap.Error(err))
		}
	}

	zap.L().Info("Server exiting")
}

func newGenerator(ctx context.Context, cfg *config.Config) (weaver.ImageGenerator, error) {
	switch strings.ToLower(cfg.Image.Provider) {
	case string(weaver.ProviderGeminiAPI):
		return gemini.New(ctx, &weaver.ProviderConfig{
			Provider: weaver.ProviderGeminiAPI,
			APIKey:   cfg.Image.GeminiAPIKey,
		})
	case string(weaver.ProviderOpenAI):
		return openai.New(&weaver.ProviderConfig{
			Provider: weaver.ProviderOpenAI,
			APIKey:   cfg.Image.OpenAIAPIKey,
			BaseURL:  cfg.Image.OpenAIBaseURL,
		})
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Image.Provider)
}

// sharedLimiter sizes the Redis limiter from the provider's default model.
// It returns nil when the model declares no limits.
func sharedLimiter(gen weaver.ImageGenerator, client redis.UniversalClient, zapLogger *zap.Logger) ratelimiter.Limiter {
	var limits weaver.RateLimits
	if models := gen.Models(); len(models) > 0 {
		limits = models[0].RateLimits
	}
	if limits.TokensPerMinute <= 0 || limits.RequestsPerMinute <= 0 {
		return nil
	}
	return ratelimiter.NewRedisLimiter(client, "weaver:ratelimit",
		limits.TokensPerMinute, limits.RequestsPerMinute, zapLogger)
}

func pingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
