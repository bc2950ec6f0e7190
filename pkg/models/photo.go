package models

import "strings"

// PhotoRecord is a single photo uploaded to a tracking session.
// Records are immutable once created.
type PhotoRecord struct {
	QualityScore  *float64 `json:"quality_score,omitempty"`
	ID            string   `json:"id"`
	SessionID     string   `json:"session_id,omitempty"`
	UploadedAt    string   `json:"uploaded_at"`
	FollowupNotes string   `json:"followup_notes,omitempty"`
	StorageURL    string   `json:"storage_url,omitempty"`
	Category      string   `json:"category,omitempty"`
}

// HasFollowupNotes reports whether the uploader left a non-blank note.
func (p *PhotoRecord) HasFollowupNotes() bool {
	return strings.TrimSpace(p.FollowupNotes) != ""
}

// Trend describes how a condition changed compared to the previous analysis.
type Trend string

const (
	TrendWorsening Trend = "worsening"
	TrendStable    Trend = "stable"
	TrendImproving Trend = "improving"
	TrendUnknown   Trend = "unknown"
)

// ParseTrend normalizes free-form model output to a known Trend.
func ParseTrend(s string) Trend {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "worsening", "worse", "deteriorating", "progressing":
		return TrendWorsening
	case "improving", "better", "healing", "resolving":
		return TrendImproving
	case "stable", "unchanged", "same":
		return TrendStable
	}
	return TrendUnknown
}

// AnalysisData is the body of an AI photo analysis.
type AnalysisData struct {
	PrimaryAssessment  string   `json:"primary_assessment,omitempty"`
	VisualObservations []string `json:"visual_observations,omitempty"`
	RedFlags           []string `json:"red_flags,omitempty"`
	Recommendations    []string `json:"recommendations,omitempty"`
}

// Comparison holds the change against the session's previous analysis.
type Comparison struct {
	Trend   Trend  `json:"trend"`
	Summary string `json:"summary,omitempty"`
}

// AnalysisRecord is an AI analysis covering one or more photos.
type AnalysisRecord struct {
	Comparison      *Comparison  `json:"comparison,omitempty"`
	ID              string       `json:"id,omitempty"`
	SessionID       string       `json:"session_id,omitempty"`
	CreatedAt       string       `json:"created_at,omitempty"`
	PhotoIDs        []string     `json:"photo_ids"`
	AnalysisData    AnalysisData `json:"analysis_data"`
	ConfidenceScore float64      `json:"confidence_score"`
}

// TrendOrUnknown returns the comparison trend, or TrendUnknown when absent.
func (a *AnalysisRecord) TrendOrUnknown() Trend {
	if a.Comparison == nil || a.Comparison.Trend == "" {
		return TrendUnknown
	}
	return a.Comparison.Trend
}

// Selection methods reported in SelectionInfo.
const (
	SelectionMethodAll    = "all_photos"
	SelectionMethodScored = "scored"
)

// OmittedPeriod is a contiguous run of the timeline with no photo in the
// selection. Dates are calendar days in each record's own UTC offset, while
// runs follow the absolute upload order. With mixed offsets a period's dates
// can therefore read earlier than a selected photo that precedes it.
type OmittedPeriod struct {
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	PhotosOmitted int    `json:"photos_omitted"`
}

// SelectionInfo explains how a photo selection was built.
type SelectionInfo struct {
	SelectionMethod    string          `json:"selection_method"`
	SelectionReasoning []string        `json:"selection_reasoning"`
	OmittedPeriods     []OmittedPeriod `json:"omitted_periods"`
	TotalPhotos        int             `json:"total_photos"`
	PhotosShown        int             `json:"photos_shown"`
}

// SelectionResult is the output of one bounded photo selection.
type SelectionResult struct {
	SelectedPhotos []PhotoRecord `json:"selected_photos"`
	SelectionInfo  SelectionInfo `json:"selection_info"`
}

// PhotoSession groups the photos of one tracked condition.
type PhotoSession struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	ConditionName string `json:"condition_name"`
	Description   string `json:"description,omitempty"`
	CreatedAt     string `json:"created_at"`
	LastPhotoAt   string `json:"last_photo_at,omitempty"`
}
