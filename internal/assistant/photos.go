package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/internal/llm"
	"github.com/thebtf/oracle/internal/photobatch"
	"github.com/thebtf/oracle/pkg/models"
)

// CreateSessionRequest opens a photo session for a condition.
type CreateSessionRequest struct {
	UserID        string `json:"user_id"`
	ConditionName string `json:"condition_name"`
	Description   string `json:"description,omitempty"`
}

// CreatePhotoSession opens a new photo session.
func (s *Service) CreatePhotoSession(ctx context.Context, req CreateSessionRequest) (*models.PhotoSession, error) {
	if err := required("user_id", req.UserID); err != nil {
		return nil, err
	}
	if err := required("condition_name", req.ConditionName); err != nil {
		return nil, err
	}

	session := &models.PhotoSession{
		UserID:        req.UserID,
		ConditionName: strings.TrimSpace(req.ConditionName),
		Description:   req.Description,
		CreatedAt:     s.timestamp(),
	}
	if err := s.photos.CreatePhotoSession(ctx, session); err != nil {
		return nil, err
	}
	log.Info().Str("session_id", session.ID).Str("user_id", session.UserID).Msg("Photo session created")
	return session, nil
}

// AddPhotos registers already-stored photos with a session. A blank
// uploaded_at is set to the current time.
func (s *Service) AddPhotos(ctx context.Context, sessionID string, photos []models.PhotoRecord) ([]models.PhotoRecord, error) {
	if len(photos) == 0 {
		return nil, &ValidationError{Field: "photos", Reason: "at least one photo is required"}
	}

	records := make([]models.PhotoRecord, len(photos))
	for i, p := range photos {
		if strings.TrimSpace(p.StorageURL) == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("photos[%d].storage_url", i), Reason: "is required"}
		}
		if strings.TrimSpace(p.UploadedAt) == "" {
			p.UploadedAt = s.timestamp()
		} else if _, ok := photobatch.ParseTimestamp(p.UploadedAt); !ok {
			return nil, &ValidationError{Field: fmt.Sprintf("photos[%d].uploaded_at", i), Reason: "is not a recognised timestamp"}
		}
		if p.QualityScore != nil && (*p.QualityScore < 0 || *p.QualityScore > 100) {
			return nil, &ValidationError{Field: fmt.Sprintf("photos[%d].quality_score", i), Reason: "must be between 0 and 100"}
		}
		p.SessionID = sessionID
		records[i] = p
	}

	stored, err := s.photos.AddPhotos(ctx, sessionID, records)
	if err != nil {
		return nil, err
	}
	s.timelines.Invalidate(sessionID)

	log.Info().Str("session_id", sessionID).Int("count", len(stored)).Msg("Photos added")
	return stored, nil
}

// SelectPhotos runs the selector over caller-supplied photos and analyses.
// A positive maxPhotos overrides the configured cap.
func (s *Service) SelectPhotos(ctx context.Context, photos []models.PhotoRecord, analyses []models.AnalysisRecord, maxPhotos int) (*models.SelectionResult, error) {
	sel, err := s.selectorFor(maxPhotos)
	if err != nil {
		return nil, err
	}
	result, err := sel.Select(photos, analyses)
	if err != nil {
		return nil, err
	}
	s.recordSelection(ctx, result)
	return result, nil
}

// Timeline returns the bounded selection over a stored session.
func (s *Service) Timeline(ctx context.Context, sessionID string, maxPhotos int) (*models.SelectionResult, error) {
	sel, err := s.selectorFor(maxPhotos)
	if err != nil {
		return nil, err
	}

	data, err := s.timelines.SessionTimelineData(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := sel.Select(data.Photos, data.Analyses)
	if err != nil {
		return nil, fmt.Errorf("select timeline photos for %s: %w", sessionID, err)
	}
	s.recordSelection(ctx, result)
	return result, nil
}

func (s *Service) selectorFor(maxPhotos int) (*photobatch.Selector, error) {
	sel := s.Selector()
	if maxPhotos == 0 || maxPhotos == sel.Config().MaxPhotos {
		return sel, nil
	}
	return photobatch.NewSelector(sel.Config().WithMaxPhotos(maxPhotos))
}

func (s *Service) recordSelection(ctx context.Context, result *models.SelectionResult) {
	info := result.SelectionInfo
	attrs := metric.WithAttributes(attribute.String("method", info.SelectionMethod))
	s.selections.Add(ctx, 1, attrs)
	s.omitted.Add(ctx, int64(info.TotalPhotos-info.PhotosShown), attrs)
}

// AnalyzeRequest selects the photos to analyse. Without PhotoIDs the
// baseline and the most recent photos of the session timeline are used.
type AnalyzeRequest struct {
	PhotoIDs []string `json:"photo_ids,omitempty"`
	Model    string   `json:"model,omitempty"`
}

type analysisReply struct {
	PrimaryAssessment  string   `json:"primary_assessment"`
	VisualObservations []string `json:"visual_observations"`
	RedFlags           []string `json:"red_flags"`
	Recommendations    []string `json:"recommendations"`
	Trend              string   `json:"trend"`
	ComparisonSummary  string   `json:"comparison_summary"`
	Confidence         float64  `json:"confidence"`
}

// AnalyzePhotos sends up to MaxImagesPerAnalysis photos to the vision model,
// compares the result with the session's previous analysis and stores it.
func (s *Service) AnalyzePhotos(ctx context.Context, sessionID string, req AnalyzeRequest) (*models.AnalysisRecord, error) {
	if len(req.PhotoIDs) > MaxImagesPerAnalysis {
		return nil, &ValidationError{
			Field:  "photo_ids",
			Reason: fmt.Sprintf("at most %d photos can be analysed at once", MaxImagesPerAnalysis),
		}
	}

	data, err := s.timelines.SessionTimelineData(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	photos, err := s.analysisPhotos(ctx, sessionID, data, req.PhotoIDs)
	if err != nil {
		return nil, err
	}

	prev, err := s.photos.GetLatestAnalysis(ctx, sessionID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("load previous analysis: %w", err)
	}

	model := req.Model
	if model == "" {
		model = s.cfg.VisionModel
	}

	var reply analysisReply
	_, err = s.completeJSON(ctx, llm.Request{
		Model: model,
		Messages: []llm.Message{
			{
				Role:    models.RoleSystem,
				Content: fmt.Sprintf(photoAnalysisPrompt, data.Session.ConditionName, previousAnalysisContext(prev)),
			},
			{
				Role:    models.RoleUser,
				Content: describePhotos(photos),
				Images:  imageURLs(photos),
			},
		},
	}, &reply)
	if err != nil {
		return nil, fmt.Errorf("analyse photos: %w", err)
	}

	record := &models.AnalysisRecord{
		SessionID: sessionID,
		PhotoIDs:  photoIDs(photos),
		AnalysisData: models.AnalysisData{
			PrimaryAssessment:  reply.PrimaryAssessment,
			VisualObservations: reply.VisualObservations,
			RedFlags:           nonBlank(reply.RedFlags),
			Recommendations:    reply.Recommendations,
		},
		ConfidenceScore: min(max(reply.Confidence, 0), 100),
		CreatedAt:       s.timestamp(),
	}
	if prev != nil {
		record.Comparison = &models.Comparison{
			Trend:   models.ParseTrend(reply.Trend),
			Summary: reply.ComparisonSummary,
		}
	}

	if err := s.photos.StoreAnalysis(ctx, record); err != nil {
		return nil, err
	}
	s.timelines.Invalidate(sessionID)

	ev := log.Info()
	if len(record.AnalysisData.RedFlags) > 0 {
		ev = log.Warn().Strs("red_flags", record.AnalysisData.RedFlags)
	}
	ev.Str("session_id", sessionID).
		Str("trend", string(record.TrendOrUnknown())).
		Int("photos", len(photos)).
		Msg("Photos analysed")

	return record, nil
}

// analysisPhotos resolves the photos for one analysis call.
func (s *Service) analysisPhotos(ctx context.Context, sessionID string, data *db.TimelineData, ids []string) ([]models.PhotoRecord, error) {
	if len(ids) > 0 {
		photos, err := s.timelines.PhotosByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]struct{}, len(photos))
		for _, p := range photos {
			if p.SessionID != sessionID {
				continue
			}
			byID[p.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				return nil, &ValidationError{Field: "photo_ids", Reason: fmt.Sprintf("photo %s is not part of session %s", id, sessionID)}
			}
		}
		return photos, nil
	}

	if len(data.Photos) == 0 {
		return nil, &ValidationError{Field: "photos", Reason: "session has no photos to analyse"}
	}
	result, err := s.Selector().Select(data.Photos, data.Analyses)
	if err != nil {
		return nil, fmt.Errorf("select photos for analysis: %w", err)
	}
	return analysisBatch(result.SelectedPhotos), nil
}

// analysisBatch keeps the baseline and the most recent photos so a single
// call can still judge change over the whole session.
func analysisBatch(selected []models.PhotoRecord) []models.PhotoRecord {
	if len(selected) <= MaxImagesPerAnalysis {
		return selected
	}
	batch := make([]models.PhotoRecord, 0, MaxImagesPerAnalysis)
	batch = append(batch, selected[0])
	return append(batch, selected[len(selected)-(MaxImagesPerAnalysis-1):]...)
}

func describePhotos(photos []models.PhotoRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d photos, oldest first:\n", len(photos))
	for i, p := range photos {
		fmt.Fprintf(&b, "%d. taken %s", i+1, p.UploadedAt)
		if p.HasFollowupNotes() {
			fmt.Fprintf(&b, ", note: %s", strings.TrimSpace(p.FollowupNotes))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func imageURLs(photos []models.PhotoRecord) []string {
	urls := make([]string, 0, len(photos))
	for _, p := range photos {
		if p.StorageURL != "" {
			urls = append(urls, p.StorageURL)
		}
	}
	return urls
}

func photoIDs(photos []models.PhotoRecord) []string {
	ids := make([]string, len(photos))
	for i, p := range photos {
		ids[i] = p.ID
	}
	return ids
}

func nonBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
