package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thebtf/oracle/internal/resilience"
	"github.com/thebtf/oracle/pkg/models"
)

// TimelineData is everything needed to build a session timeline.
type TimelineData struct {
	Session  *models.PhotoSession
	Photos   []models.PhotoRecord
	Analyses []models.AnalysisRecord
}

// OptimizedConfig tunes an OptimizedClient.
type OptimizedConfig struct {
	Retry            resilience.RetryPolicy
	CacheTTL         time.Duration
	CacheSize        int
	BreakerThreshold int64
	BreakerReset     time.Duration
}

// DefaultOptimizedConfig returns settings suited to the managed Postgres.
func DefaultOptimizedConfig() OptimizedConfig {
	return OptimizedConfig{
		Retry:            resilience.DefaultRetryPolicy(),
		CacheTTL:         5 * time.Second,
		CacheSize:        500,
		BreakerThreshold: 5,
		BreakerReset:     30 * time.Second,
	}
}

// OptimizedClient wraps a PhotoReader with concurrent fetching, request
// coalescing, retry and a circuit breaker.
type OptimizedClient struct {
	reader    PhotoReader
	breaker   *resilience.CircuitBreaker
	timelines *resilience.Coalescer[*TimelineData]
	retry     resilience.RetryPolicy
}

// NewOptimizedClient creates an OptimizedClient over reader.
func NewOptimizedClient(reader PhotoReader, cfg OptimizedConfig) *OptimizedClient {
	return &OptimizedClient{
		reader:    reader,
		breaker:   resilience.NewCircuitBreaker("database", cfg.BreakerThreshold, cfg.BreakerReset),
		timelines: resilience.NewCoalescer[*TimelineData](cfg.CacheTTL, cfg.CacheSize),
		retry:     cfg.Retry,
	}
}

// SessionTimelineData fetches a session with its photos and analyses.
// The three reads run concurrently; identical in-flight requests share one fetch.
func (c *OptimizedClient) SessionTimelineData(ctx context.Context, sessionID string) (*TimelineData, error) {
	return c.timelines.Do(ctx, "timeline:"+sessionID, func(ctx context.Context) (*TimelineData, error) {
		data := &TimelineData{}
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return c.call(gctx, "get_photo_session", func(ctx context.Context) (err error) {
				data.Session, err = c.reader.GetPhotoSession(ctx, sessionID)
				return err
			})
		})
		g.Go(func() error {
			return c.call(gctx, "get_session_photos", func(ctx context.Context) (err error) {
				data.Photos, err = c.reader.GetSessionPhotos(ctx, sessionID)
				return err
			})
		})
		g.Go(func() error {
			return c.call(gctx, "get_session_analyses", func(ctx context.Context) (err error) {
				data.Analyses, err = c.reader.GetSessionAnalyses(ctx, sessionID)
				return err
			})
		})

		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("fetch session timeline %s: %w", sessionID, err)
		}
		return data, nil
	})
}

// PhotosByIDs fetches photos through the breaker and retry policy.
func (c *OptimizedClient) PhotosByIDs(ctx context.Context, ids []string) ([]models.PhotoRecord, error) {
	var photos []models.PhotoRecord
	err := c.call(ctx, "get_photos_by_ids", func(ctx context.Context) (err error) {
		photos, err = c.reader.GetPhotosByIDs(ctx, ids)
		return err
	})
	return photos, err
}

// Invalidate drops the cached timeline of sessionID after a write.
func (c *OptimizedClient) Invalidate(sessionID string) {
	c.timelines.Forget("timeline:" + sessionID)
}

// call runs fn with retry inside the circuit breaker. ErrNotFound is
// neither retried nor counted against the breaker.
func (c *OptimizedClient) call(ctx context.Context, name string, fn func(context.Context) error) error {
	var notFound error
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		err := resilience.Retry(ctx, c.retry, name, func(ctx context.Context) error {
			err := fn(ctx)
			if errors.Is(err, ErrNotFound) {
				return resilience.Permanent(err)
			}
			return err
		})
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return notFound
}

// OptimizedStats reports the resilience state of an OptimizedClient.
type OptimizedStats struct {
	Breaker   resilience.BreakerMetrics  `json:"breaker"`
	Timelines resilience.CoalescerStats `json:"timelines"`
}

// Stats returns breaker and coalescer statistics.
func (c *OptimizedClient) Stats() OptimizedStats {
	return OptimizedStats{
		Breaker:   c.breaker.Metrics(),
		Timelines: c.timelines.Stats(),
	}
}
