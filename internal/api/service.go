// Package api serves the Oracle HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/oracle/internal/assistant"
	"github.com/thebtf/oracle/internal/config"
	"github.com/thebtf/oracle/internal/db"
	gormdb "github.com/thebtf/oracle/internal/db/gorm"
	"github.com/thebtf/oracle/internal/photobatch"
	"github.com/thebtf/oracle/internal/resilience"
)

const (
	// DefaultHTTPTimeout is the timeout for ordinary requests.
	DefaultHTTPTimeout = 30 * time.Second

	// LLMHTTPTimeout is the timeout for requests that wait on the LLM.
	LLMHTTPTimeout = 3 * time.Minute
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports connection pool health. The gorm store implements it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) *gormdb.HealthInfo
}

// BreakerReporter exposes a circuit breaker's state.
type BreakerReporter interface {
	BreakerMetrics() resilience.BreakerMetrics
}

// Backend is everything the data routes need. It is attached once the
// database is reachable.
type Backend struct {
	Assistant *assistant.Service
	Timelines *db.OptimizedClient
	DB        Pinger
	LLM       BreakerReporter
}

// Service is the HTTP front of Oracle. Health routes answer immediately;
// data routes return 503 until a Backend is attached.
type Service struct {
	startTime time.Time
	backend   atomic.Pointer[Backend]
	initError atomic.Pointer[error]
	selection atomic.Pointer[photobatch.Config]
	router    *chi.Mux
	server    *http.Server
	limiter   *PerClientRateLimiter
	origins   *OriginList
	cfg       *config.Config
	version   string
	wg        sync.WaitGroup
}

// NewService creates the service and its routes.
func NewService(version string, cfg *config.Config) *Service {
	s := &Service{
		version:   version,
		cfg:       cfg,
		router:    chi.NewRouter(),
		limiter:   NewPerClientRateLimiter(float64(cfg.RateLimitPerMinute), cfg.RateLimitBurst),
		origins:   NewOriginList(cfg.CORSOrigins),
		startTime: time.Now(),
	}
	selection := cfg.PhotoSelection()
	s.selection.Store(&selection)
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Attach installs the backend and marks the service ready.
func (s *Service) Attach(b *Backend) {
	s.backend.Store(b)
	log.Info().Msg("Backend attached, service ready")
}

// SetInitError records a failed backend initialization.
func (s *Service) SetInitError(err error) {
	s.initError.Store(&err)
}

func (s *Service) getInitError() error {
	if p := s.initError.Load(); p != nil {
		return *p
	}
	return nil
}

// ApplyConfig applies a reloaded configuration: the CORS allow-list and the
// photo selector limits. Settings that need a restart are left alone.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.origins.Set(cfg.CORSOrigins)

	selection := cfg.PhotoSelection()
	if err := selection.Validate(); err != nil {
		log.Error().Err(err).Msg("Rejected photo selection settings from reload")
		return
	}
	s.selection.Store(&selection)
	if b := s.backend.Load(); b != nil {
		if err := b.Assistant.SetSelection(selection); err != nil {
			log.Error().Err(err).Msg("Rejected photo selection settings from reload")
			return
		}
	}
	log.Info().
		Int("max_photos", cfg.MaxPhotos).
		Int("reserved_recent", cfg.ReservedRecent).
		Int("reserved_baseline", cfg.ReservedBaseline).
		Msg("Configuration reloaded")
}

// Handler returns the root HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(SecurityHeaders(s.origins))
	s.router.Use(MaxBodySize(s.cfg.MaxBodyBytes))
	s.router.Use(RequireJSONContentType)
}

func (s *Service) setupRoutes() {
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(DefaultHTTPTimeout))
		r.Get("/health", s.handleHealth)
		r.Get("/api/health", s.handleHealth)
		r.Get("/api/ready", s.handleReady)
		r.Get("/api/stats", s.handleStats)

		// Stateless selection needs no database.
		r.Post("/api/photos/select", s.handleSelectPhotos)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(DefaultHTTPTimeout))
			r.Post("/api/photo-sessions", s.handleCreatePhotoSession)
			r.Post("/api/photo-sessions/{id}/photos", s.handleAddPhotos)
			r.Get("/api/photo-sessions/{id}/timeline", s.handleTimeline)
			r.Get("/api/conversations/{id}/messages", s.handleGetMessages)
			r.Get("/api/insights/weekly/{user_id}", s.handleGetLatestInsights)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(LLMHTTPTimeout))
			r.Use(PerClientRateLimitMiddleware(s.limiter))
			r.Post("/api/photo-sessions/{id}/analyze", s.handleAnalyzePhotos)
			r.Post("/api/chat", s.handleChat)
			r.Post("/api/deep-dive/start", s.handleStartDeepDive)
			r.Post("/api/deep-dive/{id}/answer", s.handleAnswerDeepDive)
			r.Post("/api/deep-dive/{id}/complete", s.handleCompleteDeepDive)
			r.Post("/api/insights/weekly", s.handleWeeklyInsights)
		})
	})
}

// Start starts the HTTP server in the background.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Str("addr", s.cfg.Addr()).Str("version", s.version).Msg("HTTP server started")
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Service) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		if err = s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}
	s.wg.Wait()
	log.Info().Msg("HTTP server stopped")
	return err
}
