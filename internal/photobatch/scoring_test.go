package photobatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thebtf/oracle/pkg/models"
)

func TestTemporalScore(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		pool     int
		slots    int
		expected float64
	}{
		{"no slots", 3, 10, 0, 0},
		{"negative slots", 3, 10, -1, 0},
		{"empty pool", 0, 0, 4, 0},
		{"slots cover pool", 2, 5, 5, 100},
		{"slots exceed pool", 0, 5, 9, 100},
		{"bucket centre", 5, 10, 1, 100},
		{"bucket edge", 0, 10, 1, 50},
		{"second bucket centre", 7, 10, 2, 90},
		{"quarter way", 1, 4, 1, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, temporalScore(tt.index, tt.pool, tt.slots, 100), 0.0001)
		})
	}
}

func TestTemporalScore_Bounds(t *testing.T) {
	for pool := 1; pool <= 60; pool++ {
		for slots := 1; slots < pool; slots++ {
			for i := 0; i < pool; i++ {
				got := temporalScore(i, pool, slots, 100)
				assert.GreaterOrEqual(t, got, 50.0, "pool=%d slots=%d i=%d", pool, slots, i)
				assert.LessOrEqual(t, got, 100.0, "pool=%d slots=%d i=%d", pool, slots, i)
			}
		}
	}
}

func TestWeightsScore(t *testing.T) {
	w := DefaultWeights()
	quality := 60.0

	tests := []struct {
		name     string
		photo    models.PhotoRecord
		linked   *models.AnalysisRecord
		expected ScoreComponents
	}{
		{
			name:     "bare photo",
			photo:    models.PhotoRecord{ID: "a"},
			expected: ScoreComponents{Temporal: 100, Total: 100},
		},
		{
			name:     "quality only",
			photo:    models.PhotoRecord{ID: "a", QualityScore: &quality},
			expected: ScoreComponents{Temporal: 100, Quality: 30, Total: 130},
		},
		{
			name:  "confident stable analysis",
			photo: models.PhotoRecord{ID: "a"},
			linked: &models.AnalysisRecord{
				ConfidenceScore: 70,
				Comparison:      &models.Comparison{Trend: models.TrendStable},
			},
			expected: ScoreComponents{Temporal: 100, Total: 100},
		},
		{
			name:  "every signal",
			photo: models.PhotoRecord{ID: "a", QualityScore: &quality, FollowupNotes: "new spot"},
			linked: &models.AnalysisRecord{
				ConfidenceScore: 40,
				AnalysisData:    models.AnalysisData{RedFlags: []string{"asymmetry"}},
				Comparison:      &models.Comparison{Trend: models.TrendWorsening},
			},
			expected: ScoreComponents{
				Temporal:      100,
				Quality:       30,
				LowConfidence: 50,
				RedFlags:      100,
				Worsening:     80,
				UserFlagged:   75,
				Total:         435,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.score(&tt.photo, 0, 3, 3, tt.linked)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.expected.LowConfidence+tt.expected.RedFlags+tt.expected.Worsening+tt.expected.UserFlagged > 0, got.Priority())
		})
	}
}

func TestIndexAnalyses(t *testing.T) {
	assert.Nil(t, indexAnalyses(nil))

	analyses := []models.AnalysisRecord{
		{ID: "first", PhotoIDs: []string{"a", "b"}},
		{ID: "second", PhotoIDs: []string{"b", "c"}},
	}
	idx := indexAnalyses(analyses)

	assert.Equal(t, "first", idx["a"].ID)
	assert.Equal(t, "first", idx["b"].ID)
	assert.Equal(t, "second", idx["c"].ID)
	assert.Nil(t, idx["d"])
}

func TestOmittedPeriods_SameDayPhotos(t *testing.T) {
	photos := []models.PhotoRecord{
		{ID: "1", UploadedAt: "2024-01-01T08:00:00Z"},
		{ID: "2", UploadedAt: "2024-01-01T20:00:00Z"},
		{ID: "3", UploadedAt: "2024-01-02T08:00:00Z"},
		{ID: "4", UploadedAt: "2024-01-03T08:00:00Z"},
		{ID: "5", UploadedAt: "2024-01-03T09:00:00Z"},
		{ID: "6", UploadedAt: "2024-01-04T08:00:00Z"},
	}
	ordered := chronological(photos)
	chosen := []bool{true, false, false, false, false, true}

	assert.Equal(t, []models.OmittedPeriod{{StartDate: "2024-01-02", EndDate: "2024-01-03", PhotosOmitted: 3}},
		omittedPeriods(ordered, chosen))
}

func TestDayOf_KeepsRecordedOffset(t *testing.T) {
	at, ok := parseUploadedAt("2024-03-10T23:30:00-05:00")
	assert.True(t, ok)
	assert.Equal(t, "2024-03-10", dayOf("2024-03-10T23:30:00-05:00", at, ok))

	_, ok = parseUploadedAt("yesterday-ish")
	assert.False(t, ok)
	assert.Equal(t, "yesterday-", dayOf("yesterday-ish", at, false))
}
