package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thebtf/oracle/internal/assistant"
)

// AnswerRequest is the body of a deep-dive answer.
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// CompleteRequest is the optional body of a deep-dive completion.
type CompleteRequest struct {
	Model string `json:"model,omitempty"`
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.backend.Load().Assistant.Chat(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Service) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := s.backend.Load().Assistant.Messages(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"messages": msgs})
}

func (s *Service) handleStartDeepDive(w http.ResponseWriter, r *http.Request) {
	var req assistant.StartDeepDiveRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	step, err := s.backend.Load().Assistant.StartDeepDive(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, step)
}

func (s *Service) handleAnswerDeepDive(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	step, err := s.backend.Load().Assistant.AnswerDeepDive(r.Context(), chi.URLParam(r, "id"), req.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, step)
}

func (s *Service) handleCompleteDeepDive(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.backend.Load().Assistant.CompleteDeepDive(r.Context(), chi.URLParam(r, "id"), req.Model)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, session)
}

func (s *Service) handleWeeklyInsights(w http.ResponseWriter, r *http.Request) {
	var req assistant.WeeklyInsightsRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	insight, err := s.backend.Load().Assistant.WeeklyInsights(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, insight)
}

func (s *Service) handleGetLatestInsights(w http.ResponseWriter, r *http.Request) {
	insight, err := s.backend.Load().Assistant.LatestWeeklyInsight(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, insight)
}
