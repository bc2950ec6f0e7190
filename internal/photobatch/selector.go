package photobatch

import (
	"fmt"
	"strings"

	"github.com/thebtf/oracle/pkg/models"
)

// Selector picks at most Config.MaxPhotos photos from a session.
// A Selector holds only its immutable config and is safe for concurrent use.
type Selector struct {
	cfg Config
}

// NewSelector validates cfg and returns a Selector.
func NewSelector(cfg Config) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Selector{cfg: cfg}, nil
}

// Config returns the selector's configuration.
func (s *Selector) Config() Config {
	return s.cfg
}

// ScoredPhoto is a middle-pool candidate with its score breakdown.
type ScoredPhoto struct {
	PhotoID    string          `json:"photo_id"`
	UploadedAt string          `json:"uploaded_at"`
	Components ScoreComponents `json:"components"`
	PoolIndex  int             `json:"pool_index"`
	Selected   bool            `json:"selected"`
}

// selection is the internal outcome shared by Select and Explain.
type selection struct {
	ordered []entry
	chosen  []bool
	scored  []ScoredPhoto
	slots   int
}

// Select returns the bounded selection for photos.
//
// analyses may be nil, in which case only temporal, quality and follow-up
// signals are scored. The inputs are never modified.
func (s *Selector) Select(photos []models.PhotoRecord, analyses []models.AnalysisRecord) (*models.SelectionResult, error) {
	if err := validatePhotos(photos); err != nil {
		return nil, err
	}

	sel := s.run(photos, analyses)

	selected := make([]models.PhotoRecord, 0, min(len(photos), s.cfg.MaxPhotos))
	for i, e := range sel.ordered {
		if sel.chosen[i] {
			selected = append(selected, *e.photo)
		}
	}

	info := models.SelectionInfo{
		TotalPhotos: len(photos),
		PhotosShown: len(selected),
	}
	if len(photos) <= s.cfg.MaxPhotos {
		info.SelectionMethod = models.SelectionMethodAll
		info.SelectionReasoning = allPhotosReasoning(len(photos), s.cfg.MaxPhotos)
		info.OmittedPeriods = []models.OmittedPeriod{}
	} else {
		info.SelectionMethod = models.SelectionMethodScored
		info.SelectionReasoning = s.reasoning(sel)
		info.OmittedPeriods = omittedPeriods(sel.ordered, sel.chosen)
	}

	return &models.SelectionResult{
		SelectedPhotos: selected,
		SelectionInfo:  info,
	}, nil
}

// Explain returns the score breakdown of every middle-pool candidate in
// chronological order. It is empty when all photos fit within the cap.
func (s *Selector) Explain(photos []models.PhotoRecord, analyses []models.AnalysisRecord) ([]ScoredPhoto, error) {
	if err := validatePhotos(photos); err != nil {
		return nil, err
	}
	return s.run(photos, analyses).scored, nil
}

// run performs the selection. Callers must validate photos first.
func (s *Selector) run(photos []models.PhotoRecord, analyses []models.AnalysisRecord) selection {
	ordered := chronological(photos)
	total := len(ordered)
	chosen := make([]bool, total)

	if total <= s.cfg.MaxPhotos {
		for i := range chosen {
			chosen[i] = true
		}
		return selection{ordered: ordered, chosen: chosen}
	}

	baseline := min(s.cfg.ReservedBaseline, total)
	recentStart := max(total-s.cfg.ReservedRecent, baseline)
	for i := 0; i < baseline; i++ {
		chosen[i] = true
	}
	for i := recentStart; i < total; i++ {
		chosen[i] = true
	}

	slots := s.cfg.MaxPhotos - s.cfg.reservedSlots()
	pool := ordered[baseline:recentStart]
	sel := selection{ordered: ordered, chosen: chosen, slots: slots}
	if len(pool) == 0 {
		return sel
	}

	linked := indexAnalyses(analyses)
	scores := make([]ScoreComponents, len(pool))
	for i, e := range pool {
		scores[i] = s.cfg.Weights.score(e.photo, i, len(pool), slots, linked[e.photo.ID])
	}

	if slots > 0 {
		for rank, idx := range rankByScore(scores) {
			if rank >= slots {
				break
			}
			chosen[baseline+idx] = true
		}
	}

	sel.scored = make([]ScoredPhoto, len(pool))
	for i, e := range pool {
		sel.scored[i] = ScoredPhoto{
			PhotoID:    e.photo.ID,
			UploadedAt: e.photo.UploadedAt,
			Components: scores[i],
			PoolIndex:  i,
			Selected:   chosen[baseline+i],
		}
	}
	return sel
}

// reasoning describes each phase of a scored selection.
func (s *Selector) reasoning(sel selection) []string {
	total := len(sel.ordered)
	baseline := min(s.cfg.ReservedBaseline, total)
	recentStart := max(total-s.cfg.ReservedRecent, baseline)

	var steps []string
	switch {
	case baseline == 1:
		steps = append(steps, fmt.Sprintf("Included baseline photo from %s", sel.ordered[0].day))
	case baseline > 1:
		steps = append(steps, fmt.Sprintf("Included %d baseline photos from %s to %s",
			baseline, sel.ordered[0].day, sel.ordered[baseline-1].day))
	}

	if recent := total - recentStart; recent > 0 {
		steps = append(steps, fmt.Sprintf("Included %d most recent photos from %s to %s",
			recent, sel.ordered[recentStart].day, sel.ordered[total-1].day))
	}

	if sel.slots <= 0 {
		steps = append(steps, "No capacity left for photos between baseline and recent photos")
		return steps
	}

	picked, priority := 0, 0
	for _, sp := range sel.scored {
		if sp.Selected {
			picked++
			if sp.Components.Priority() {
				priority++
			}
		}
	}
	steps = append(steps, fmt.Sprintf("Selected %d of %d intermediate photos by importance score", picked, len(sel.scored)))
	if priority > 0 {
		steps = append(steps, fmt.Sprintf("Prioritized %d photos with red flags, worsening trends, uncertain analyses or follow-up notes", priority))
	}
	return steps
}

func allPhotosReasoning(total, maxPhotos int) []string {
	if total == 0 {
		return []string{"No photos in session"}
	}
	return []string{fmt.Sprintf("All %d photos fit within the limit of %d", total, maxPhotos)}
}

// validatePhotos rejects records missing an id or upload timestamp and
// records repeating an id.
func validatePhotos(photos []models.PhotoRecord) error {
	seen := make(map[string]struct{}, len(photos))
	for i := range photos {
		id := strings.TrimSpace(photos[i].ID)
		if id == "" {
			return &InputShapeError{Index: i, Field: "id"}
		}
		if strings.TrimSpace(photos[i].UploadedAt) == "" {
			return &InputShapeError{Index: i, Field: "uploaded_at"}
		}
		if _, dup := seen[id]; dup {
			return &InputShapeError{Index: i, Field: "id", Duplicate: true}
		}
		seen[id] = struct{}{}
	}
	return nil
}
