package api

import (
	"context"
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/oracle/internal/assistant"
	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/internal/llm"
	"github.com/thebtf/oracle/internal/photobatch"
	"github.com/thebtf/oracle/internal/resilience"
)

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// badRequestError is a malformed request body or query parameter.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var (
		shapeErr   *photobatch.InputShapeError
		configErr  *photobatch.ConfigurationError
		validErr   *assistant.ValidationError
		badReq     *badRequestError
		tooLarge   *http.MaxBytesError
		upstreamEr *llm.APIError
	)
	switch {
	case errors.As(err, &shapeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &configErr), errors.As(err, &validErr), errors.As(err, &badReq):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrDuplicate), errors.Is(err, db.ErrConflict), errors.Is(err, assistant.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, llm.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstreamEr), errors.Is(err, llm.ErrNoJSON):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError logs err and replies with its mapped status. Internal errors
// are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()

	ev := log.Debug()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	ev.Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("Request failed")

	writeErrorMessage(w, status, msg)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: msg}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
