package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thebtf/oracle/internal/assistant"
	"github.com/thebtf/oracle/internal/photobatch"
	"github.com/thebtf/oracle/pkg/models"
)

// SelectPhotosRequest is the body of a stateless selection.
type SelectPhotosRequest struct {
	Photos    []models.PhotoRecord    `json:"photos"`
	Analyses  []models.AnalysisRecord `json:"analyses,omitempty"`
	MaxPhotos int                     `json:"max_photos,omitempty"`
}

// AddPhotosRequest is the body of a photo registration.
type AddPhotosRequest struct {
	Photos []models.PhotoRecord `json:"photos"`
}

// handleSelectPhotos runs the selector over posted photos. It works without
// a backend, using the configured selection limits.
func (s *Service) handleSelectPhotos(w http.ResponseWriter, r *http.Request) {
	var req SelectPhotosRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.MaxPhotos < 0 {
		writeError(w, r, badRequest("max_photos must not be negative"))
		return
	}

	var (
		result *models.SelectionResult
		err    error
	)
	if b := s.backend.Load(); b != nil {
		result, err = b.Assistant.SelectPhotos(r.Context(), req.Photos, req.Analyses, req.MaxPhotos)
	} else {
		result, err = s.selectWithoutBackend(req)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (s *Service) selectWithoutBackend(req SelectPhotosRequest) (*models.SelectionResult, error) {
	cfg := *s.selection.Load()
	if req.MaxPhotos > 0 {
		cfg = cfg.WithMaxPhotos(req.MaxPhotos)
	}
	sel, err := photobatch.NewSelector(cfg)
	if err != nil {
		return nil, err
	}
	return sel.Select(req.Photos, req.Analyses)
}

func (s *Service) handleCreatePhotoSession(w http.ResponseWriter, r *http.Request) {
	var req assistant.CreateSessionRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.backend.Load().Assistant.CreatePhotoSession(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, session)
}

func (s *Service) handleAddPhotos(w http.ResponseWriter, r *http.Request) {
	var req AddPhotosRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	photos, err := s.backend.Load().Assistant.AddPhotos(r.Context(), chi.URLParam(r, "id"), req.Photos)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"photos": photos})
}

// handleTimeline returns the selection over a stored session. The
// max_photos query parameter overrides the configured cap.
func (s *Service) handleTimeline(w http.ResponseWriter, r *http.Request) {
	maxPhotos, err := queryInt(r, "max_photos")
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.backend.Load().Assistant.Timeline(r.Context(), chi.URLParam(r, "id"), maxPhotos)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (s *Service) handleAnalyzePhotos(w http.ResponseWriter, r *http.Request) {
	var req assistant.AnalyzeRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	analysis, err := s.backend.Load().Assistant.AnalyzePhotos(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, analysis)
}
