// Package assistant implements the Oracle flows: chat, photo analysis and
// timelines, deep-dive interviews and weekly insights.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/oracle/internal/cache"
	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/internal/llm"
	"github.com/thebtf/oracle/internal/photobatch"
)

const (
	// DefaultHistoryLimit is the number of recent messages loaded as chat context.
	DefaultHistoryLimit = 50

	// MaxImagesPerAnalysis caps the images sent in one vision request.
	MaxImagesPerAnalysis = 5

	// MaxDeepDiveQuestions is the number of questions after which a deep
	// dive is ready for its final analysis.
	MaxDeepDiveQuestions = 6
)

// ErrInvalidState is returned when an operation does not fit the current
// state of a deep dive.
var ErrInvalidState = errors.New("invalid state")

// ValidationError reports an unusable request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// Completer is the LLM surface the assistant needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Config tunes the assistant.
type Config struct {
	ChatModel       string
	VisionModel     string
	ChatTokenBudget int
	HistoryLimit    int
}

// Deps are the collaborators of a Service. Cache may be nil.
type Deps struct {
	Photos    db.PhotoStore
	Timelines *db.OptimizedClient
	Chats     db.ChatStore
	DeepDives db.DeepDiveStore
	Insights  db.InsightStore
	Cache     cache.InsightCache
	LLM       Completer
}

// Service runs the assistant flows. It is safe for concurrent use.
type Service struct {
	photos    db.PhotoStore
	timelines *db.OptimizedClient
	chats     db.ChatStore
	deepDives db.DeepDiveStore
	insights  db.InsightStore
	cache     cache.InsightCache
	llm       Completer

	selector atomic.Pointer[photobatch.Selector]

	selections metric.Int64Counter
	omitted    metric.Int64Counter

	now func() time.Time
	cfg Config
}

// New creates a Service using selection for photo timelines.
func New(deps Deps, cfg Config, selection photobatch.Config) (*Service, error) {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}

	s := &Service{
		photos:    deps.Photos,
		timelines: deps.Timelines,
		chats:     deps.Chats,
		deepDives: deps.DeepDives,
		insights:  deps.Insights,
		cache:     deps.Cache,
		llm:       deps.LLM,
		now:       time.Now,
		cfg:       cfg,
	}
	if err := s.SetSelection(selection); err != nil {
		return nil, err
	}

	meter := otel.Meter("github.com/thebtf/oracle/internal/assistant")
	var err error
	if s.selections, err = meter.Int64Counter("oracle.photos.selections",
		metric.WithDescription("Photo selections computed")); err != nil {
		return nil, fmt.Errorf("create selection counter: %w", err)
	}
	if s.omitted, err = meter.Int64Counter("oracle.photos.omitted",
		metric.WithDescription("Photos left out of selections")); err != nil {
		return nil, fmt.Errorf("create omitted counter: %w", err)
	}
	return s, nil
}

// SetSelection replaces the photo selector configuration. In-flight
// selections keep the selector they started with.
func (s *Service) SetSelection(cfg photobatch.Config) error {
	sel, err := photobatch.NewSelector(cfg)
	if err != nil {
		return err
	}
	s.selector.Store(sel)
	return nil
}

// Selector returns the current photo selector.
func (s *Service) Selector() *photobatch.Selector {
	return s.selector.Load()
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// completeJSON sends a request expecting a JSON object back and decodes it into dst.
func (s *Service) completeJSON(ctx context.Context, req llm.Request, dst any) (*llm.Response, error) {
	req.JSONMode = true
	resp, err := s.llm.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := llm.DecodeJSON(resp.Content, dst); err != nil {
		return nil, fmt.Errorf("parse model reply: %w", err)
	}
	return resp, nil
}
