package photobatch

import (
	"math"

	"github.com/thebtf/oracle/pkg/models"
)

// ScoreComponents is the breakdown of a candidate's importance score.
type ScoreComponents struct {
	Temporal      float64 `json:"temporal"`
	Quality       float64 `json:"quality"`
	LowConfidence float64 `json:"low_confidence"`
	RedFlags      float64 `json:"red_flags"`
	Worsening     float64 `json:"worsening"`
	UserFlagged   float64 `json:"user_flagged"`
	Total         float64 `json:"total"`
}

// Priority reports whether any signal other than temporal spacing contributed.
func (c ScoreComponents) Priority() bool {
	return c.LowConfidence > 0 || c.RedFlags > 0 || c.Worsening > 0 || c.UserFlagged > 0
}

// temporalScore rewards candidates close to evenly spaced positions.
//
// The pool is cut into slots buckets of width pool/slots. A candidate scores
// maxScore at its bucket centre and half of it at a bucket edge, so one
// candidate per bucket tends to win and the chosen photos spread across the
// timeline.
func temporalScore(index, poolSize, slots int, maxScore float64) float64 {
	if slots <= 0 || poolSize <= 0 {
		return 0
	}
	if slots >= poolSize {
		return maxScore
	}

	spacing := float64(poolSize) / float64(slots)
	bucket := math.Floor(float64(index) / spacing)
	centre := (bucket + 0.5) * spacing
	distance := math.Abs(float64(index) - centre)
	return maxScore * (1 - distance/spacing)
}

// score computes the importance of one middle-pool candidate.
// linked is the first analysis covering the photo, or nil.
func (w Weights) score(photo *models.PhotoRecord, index, poolSize, slots int, linked *models.AnalysisRecord) ScoreComponents {
	c := ScoreComponents{
		Temporal: temporalScore(index, poolSize, slots, w.TemporalMax),
	}

	if photo.QualityScore != nil {
		c.Quality = *photo.QualityScore * w.QualityFactor
	}

	if linked != nil {
		if linked.ConfidenceScore < w.LowConfidenceThreshold {
			c.LowConfidence = w.LowConfidence
		}
		if len(linked.AnalysisData.RedFlags) > 0 {
			c.RedFlags = w.RedFlags
		}
		if linked.TrendOrUnknown() == models.TrendWorsening {
			c.Worsening = w.Worsening
		}
	}

	if photo.HasFollowupNotes() {
		c.UserFlagged = w.UserFlagged
	}

	c.Total = c.Temporal + c.Quality + c.LowConfidence + c.RedFlags + c.Worsening + c.UserFlagged
	return c
}

// indexAnalyses maps photo IDs to the first analysis (by input order) covering them.
func indexAnalyses(analyses []models.AnalysisRecord) map[string]*models.AnalysisRecord {
	if len(analyses) == 0 {
		return nil
	}
	idx := make(map[string]*models.AnalysisRecord)
	for i := range analyses {
		for _, id := range analyses[i].PhotoIDs {
			if _, ok := idx[id]; !ok {
				idx[id] = &analyses[i]
			}
		}
	}
	return idx
}
