package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thebtf/oracle/internal/assistant"
	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/internal/llm"
	"github.com/thebtf/oracle/internal/photobatch"
	"github.com/thebtf/oracle/internal/resilience"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		name   string
		status int
	}{
		{name: "input shape", err: &photobatch.InputShapeError{Index: 2, Field: "uploaded_at"}, status: http.StatusUnprocessableEntity},
		{name: "selector config", err: &photobatch.ConfigurationError{Field: "max_photos", Reason: "too small"}, status: http.StatusBadRequest},
		{name: "validation", err: &assistant.ValidationError{Field: "user_id", Reason: "is required"}, status: http.StatusBadRequest},
		{name: "bad request", err: badRequest("limit must be a non-negative integer"), status: http.StatusBadRequest},
		{name: "body too large", err: &http.MaxBytesError{Limit: 10}, status: http.StatusRequestEntityTooLarge},
		{name: "wrapped not found", err: fmt.Errorf("get session x: %w", db.ErrNotFound), status: http.StatusNotFound},
		{name: "duplicate", err: db.ErrDuplicate, status: http.StatusConflict},
		{name: "stale update", err: fmt.Errorf("update deep dive x: %w", db.ErrConflict), status: http.StatusConflict},
		{name: "invalid state", err: fmt.Errorf("answer: %w", assistant.ErrInvalidState), status: http.StatusConflict},
		{name: "circuit open", err: resilience.ErrCircuitOpen, status: http.StatusServiceUnavailable},
		{name: "llm not configured", err: llm.ErrNotConfigured, status: http.StatusServiceUnavailable},
		{name: "provider error", err: &llm.APIError{StatusCode: 500, Body: "boom"}, status: http.StatusBadGateway},
		{name: "no json", err: fmt.Errorf("parse model reply: %w", llm.ErrNoJSON), status: http.StatusBadGateway},
		{name: "deadline", err: fmt.Errorf("complete: %w", context.DeadlineExceeded), status: http.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("disk on fire"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)

	rec := httptest.NewRecorder()
	writeError(rec, req, errors.New("password=hunter2"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	writeError(rec, req, &assistant.ValidationError{Field: "user_id", Reason: "is required"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "user_id")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
