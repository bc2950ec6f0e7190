package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/oracle/internal/db"
	gormdb "github.com/thebtf/oracle/internal/db/gorm"
	"github.com/thebtf/oracle/internal/resilience"
)

// writeJSON writes data as JSON with a 200 status.
func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// decodeBody decodes the JSON request body into dst. An empty body is an
// error unless optional is set.
func decodeBody(r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	case errors.Is(err, io.EOF):
		return badRequest("request body is required")
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return badRequest("invalid JSON body: " + err.Error())
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest(name + " must be a non-negative integer")
	}
	return n, nil
}

// requireReady returns 503 until a backend is attached.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.backend.Load() == nil {
			if err := s.getInitError(); err != nil {
				writeErrorMessage(w, http.StatusServiceUnavailable, "service initialization failed")
				return
			}
			writeErrorMessage(w, http.StatusServiceUnavailable, "service initializing")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth answers even while the backend initializes. Use /api/ready
// for readiness.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.backend.Load() != nil {
		status = "ready"
	} else if s.getInitError() != nil {
		status = "error"
	}
	writeJSON(w, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// handleReady returns 200 only when the backend is attached and the
// database answers a ping.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	b := s.backend.Load()
	if b == nil {
		msg := "service initializing"
		if s.getInitError() != nil {
			msg = "service initialization failed"
		}
		writeErrorMessage(w, http.StatusServiceUnavailable, msg)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := b.DB.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Readiness ping failed")
		writeErrorMessage(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

// StatsResponse reports the resilience state of the service.
type StatsResponse struct {
	Database  *db.OptimizedStats         `json:"database,omitempty"`
	DBHealth  *gormdb.HealthInfo         `json:"db_health,omitempty"`
	LLM       *resilience.BreakerMetrics `json:"llm,omitempty"`
	RateLimit RateLimitStats             `json:"rate_limit"`
	Uptime    int64                      `json:"uptime_seconds"`
	Ready     bool                       `json:"ready"`
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		RateLimit: s.limiter.Stats(),
		Uptime:    int64(time.Since(s.startTime).Seconds()),
	}
	if b := s.backend.Load(); b != nil {
		resp.Ready = true
		if b.Timelines != nil {
			stats := b.Timelines.Stats()
			resp.Database = &stats
		}
		if hc, ok := b.DB.(HealthChecker); ok {
			resp.DBHealth = hc.HealthCheck(r.Context())
		}
		if b.LLM != nil {
			m := b.LLM.BreakerMetrics()
			resp.LLM = &m
		}
	}
	writeJSON(w, resp)
}
