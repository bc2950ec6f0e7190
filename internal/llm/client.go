// Package llm is a client for OpenAI-compatible chat-completion APIs such as
// OpenRouter.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/thebtf/oracle/internal/resilience"
)

const (
	defaultTimeout       = 90 * time.Second
	defaultMaxConcurrent = 4
	errorSnippetBytes    = 512
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("llm: api key not configured")

// APIError is a non-2xx response from the completion API.
type APIError struct {
	Model      string
	Body       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completion API error (model=%s, status=%d): %s", e.Model, e.StatusCode, e.Body)
}

// Retryable reports whether the failure is on the provider side.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Message is one chat message. Images are sent as image_url content parts.
type Message struct {
	Role    string
	Content string
	Images  []string
}

type contentPart struct {
	ImageURL *imageURL `json:"image_url,omitempty"`
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// MarshalJSON encodes plain messages with string content and messages with
// images as a content part array.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Images) == 0 {
		return json.Marshal(struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{m.Role, m.Content})
	}

	parts := make([]contentPart, 0, len(m.Images)+1)
	if m.Content != "" {
		parts = append(parts, contentPart{Type: "text", Text: m.Content})
	}
	for _, url := range m.Images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
	}
	return json.Marshal(struct {
		Role    string        `json:"role"`
		Content []contentPart `json:"content"`
	}{m.Role, parts})
}

// Request is a chat-completion request. An empty Model uses the client default.
type Request struct {
	Temperature *float64
	Model       string
	Messages    []Message
	MaxTokens   int
	JSONMode    bool
}

// Response is the first choice of a completion.
type Response struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

type completionRequest struct {
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Config configures a Client.
type Config struct {
	HTTPClient       *http.Client
	BaseURL          string
	APIKey           string
	Model            string
	SiteURL          string // sent as HTTP-Referer
	AppName          string // sent as X-Title
	Timeout          time.Duration
	MaxConcurrent    int
	BreakerThreshold int64
	BreakerReset     time.Duration
}

// Client calls {BaseURL}/chat/completions with bounded concurrency and a
// circuit breaker. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	sem      *semaphore.Weighted
	breaker  *resilience.CircuitBreaker
	requests metric.Int64Counter
	failures metric.Int64Counter
	tokens   metric.Int64Counter
	duration metric.Float64Histogram
	cfg      Config
}

// New creates a Client. Missing optional settings get defaults.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("create llm client: empty base URL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	meter := otel.Meter("github.com/thebtf/oracle/internal/llm")
	c := &Client{
		http:    httpClient,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		breaker: resilience.NewCircuitBreaker("llm", cfg.BreakerThreshold, cfg.BreakerReset),
		cfg:     cfg,
	}

	var err error
	if c.requests, err = meter.Int64Counter("oracle.llm.requests",
		metric.WithDescription("Chat-completion requests sent")); err != nil {
		return nil, fmt.Errorf("create llm request counter: %w", err)
	}
	if c.failures, err = meter.Int64Counter("oracle.llm.failures",
		metric.WithDescription("Chat-completion requests that failed")); err != nil {
		return nil, fmt.Errorf("create llm failure counter: %w", err)
	}
	if c.tokens, err = meter.Int64Counter("oracle.llm.tokens",
		metric.WithDescription("Tokens consumed by chat completions")); err != nil {
		return nil, fmt.Errorf("create llm token counter: %w", err)
	}
	if c.duration, err = meter.Float64Histogram("oracle.llm.duration",
		metric.WithDescription("Chat-completion latency"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create llm duration histogram: %w", err)
	}

	return c, nil
}

// DefaultModel returns the model used when a Request names none.
func (c *Client) DefaultModel() string {
	return c.cfg.Model
}

// Complete sends req and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("complete: no messages")
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	attrs := metric.WithAttributes(attribute.String("model", model))

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for llm slot: %w", err)
	}
	defer c.sem.Release(1)

	c.requests.Add(ctx, 1, attrs)
	start := time.Now()

	var (
		resp      *Response
		clientErr error
	)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.send(ctx, model, req)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			// Our request was bad; the provider is healthy.
			clientErr = err
			return nil
		}
		return err
	})
	if err == nil {
		err = clientErr
	}

	c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		c.failures.Add(ctx, 1, attrs)
		log.Warn().Err(err).Str("model", model).Dur("elapsed", time.Since(start)).Msg("Completion failed")
		return nil, err
	}

	c.tokens.Add(ctx, int64(resp.PromptTokens+resp.CompletionTokens), attrs)
	log.Debug().
		Str("model", resp.Model).
		Int("prompt_tokens", resp.PromptTokens).
		Int("completion_tokens", resp.CompletionTokens).
		Dur("elapsed", time.Since(start)).
		Msg("Completion finished")
	return resp, nil
}

func (c *Client) send(ctx context.Context, model string, req Request) (*Response, error) {
	payload := completionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.SiteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	}
	if c.cfg.AppName != "" {
		httpReq.Header.Set("X-Title", c.cfg.AppName)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send completion request to %s: %w", c.cfg.BaseURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, errorSnippetBytes))
		return nil, &APIError{Model: model, StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out completionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode completion response from %s: %w", c.cfg.BaseURL, err)
	}
	if out.Error != nil {
		return nil, &APIError{Model: model, StatusCode: http.StatusBadGateway, Body: out.Error.Message}
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("completion API returned no choices (model=%s)", model)
	}

	if out.Model == "" {
		out.Model = model
	}
	return &Response{
		Content:          out.Choices[0].Message.Content,
		Model:            out.Model,
		FinishReason:     out.Choices[0].FinishReason,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}, nil
}

// BreakerMetrics returns the state of the client's circuit breaker.
func (c *Client) BreakerMetrics() resilience.BreakerMetrics {
	return c.breaker.Metrics()
}
