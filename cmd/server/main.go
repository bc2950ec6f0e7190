// Package main provides the entry point for the Oracle API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/oracle/internal/api"
	"github.com/thebtf/oracle/internal/assistant"
	"github.com/thebtf/oracle/internal/cache"
	"github.com/thebtf/oracle/internal/config"
	"github.com/thebtf/oracle/internal/db"
	gormdb "github.com/thebtf/oracle/internal/db/gorm"
	"github.com/thebtf/oracle/internal/llm"
	"github.com/thebtf/oracle/internal/resilience"
)

var Version = "dev"

// startupRetry waits for a database that comes up after the server.
var startupRetry = resilience.RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
	MaxElapsed:      2 * time.Minute,
}

// resources are the backend handles closed on shutdown.
type resources struct {
	store *gormdb.Store
	cache cache.InsightCache
	mu    sync.Mutex
}

func (r *resources) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close insight cache")
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	config.Set(cfg)
	setupLogging(cfg)

	log.Info().
		Str("version", Version).
		Str("settings", config.SettingsPath()).
		Msg("Starting Oracle API server")

	svc := api.NewService(Version, cfg)
	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The database may still be starting; health routes answer meanwhile.
	res := &resources{}
	go func() {
		backend, err := initBackend(ctx, cfg, res)
		if err != nil {
			log.Error().Err(err).Msg("Backend initialization failed")
			svc.SetInitError(err)
			return
		}
		svc.Attach(backend)
	}()

	if err := config.Watch(ctx, config.SettingsPath(), func(next *config.Config) {
		config.Set(next)
		svc.ApplyConfig(next)
	}); err != nil {
		log.Warn().Err(err).Msg("Settings hot reload disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	res.close()

	log.Info().Msg("Server shutdown complete")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// initBackend connects the database and the insight cache, then builds the
// assistant over them.
func initBackend(ctx context.Context, cfg *config.Config, res *resources) (*api.Backend, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	var store *gormdb.Store
	err := resilience.Retry(ctx, startupRetry, "open_database", func(context.Context) error {
		var err error
		store, err = gormdb.NewStore(gormdb.Config{
			DSN:      cfg.DatabaseURL,
			MaxConns: cfg.MaxConns,
			LogLevel: logger.Warn,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	insightCache := cache.InsightCache(cache.Noop{})
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.InsightCacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, weekly insights are not cached")
		} else {
			insightCache = r
		}
	}

	res.mu.Lock()
	res.store, res.cache = store, insightCache
	res.mu.Unlock()

	client, err := llm.New(llm.Config{
		BaseURL:       cfg.LLMBaseURL,
		APIKey:        cfg.OpenRouterAPIKey,
		Model:         cfg.Model,
		SiteURL:       cfg.SiteURL,
		AppName:       cfg.AppName,
		Timeout:       cfg.LLMTimeout,
		MaxConcurrent: cfg.LLMMaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	if cfg.OpenRouterAPIKey == "" {
		log.Warn().Msg("OPENROUTER_API_KEY not set, LLM-backed routes will return 503")
	}

	photos := gormdb.NewPhotoStore(store)
	timelines := db.NewOptimizedClient(photos, db.DefaultOptimizedConfig())

	asst, err := assistant.New(assistant.Deps{
		Photos:    photos,
		Timelines: timelines,
		Chats:     gormdb.NewChatStore(store),
		DeepDives: gormdb.NewDeepDiveStore(store),
		Insights:  gormdb.NewInsightStore(store),
		Cache:     insightCache,
		LLM:       client,
	}, assistant.Config{
		ChatModel:       cfg.Model,
		VisionModel:     cfg.VisionModel,
		ChatTokenBudget: cfg.ChatTokenBudget,
	}, cfg.PhotoSelection())
	if err != nil {
		return nil, fmt.Errorf("create assistant: %w", err)
	}

	return &api.Backend{
		Assistant: asst,
		Timelines: timelines,
		DB:        store,
		LLM:       client,
	}, nil
}
