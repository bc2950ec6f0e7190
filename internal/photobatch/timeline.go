package photobatch

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/thebtf/oracle/pkg/models"
)

// timestampLayouts are the upload timestamp formats seen from the photo store.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// entry is a photo positioned on the session timeline.
type entry struct {
	at     time.Time
	day    string
	photo  *models.PhotoRecord
	input  int
	parsed bool
}

// ParseTimestamp parses an upload timestamp in any layout the selector
// accepts. ok is false when no layout matches.
func ParseTimestamp(s string) (time.Time, bool) {
	return parseUploadedAt(s)
}

// parseUploadedAt parses an upload timestamp. ok is false when no layout matches.
func parseUploadedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dayOf returns the calendar date portion of an upload timestamp.
// Parsed timestamps keep the date in their own offset, matching the
// date written in the record.
func dayOf(raw string, at time.Time, parsed bool) string {
	if parsed {
		return at.Format(time.DateOnly)
	}
	raw = strings.TrimSpace(raw)
	if len(raw) > len(time.DateOnly) {
		return raw[:len(time.DateOnly)]
	}
	return raw
}

// chronological returns the photos sorted ascending by upload time.
// Unparseable timestamps sort before every parsed one; ties keep input order.
func chronological(photos []models.PhotoRecord) []entry {
	entries := make([]entry, len(photos))
	for i := range photos {
		at, ok := parseUploadedAt(photos[i].UploadedAt)
		entries[i] = entry{
			at:     at,
			day:    dayOf(photos[i].UploadedAt, at, ok),
			photo:  &photos[i],
			input:  i,
			parsed: ok,
		}
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		switch {
		case !a.parsed && !b.parsed:
			return 0
		case !a.parsed:
			return -1
		case !b.parsed:
			return 1
		}
		return a.at.Compare(b.at)
	})
	return entries
}

// omittedPeriods groups maximal runs of photos whose day has no selected photo.
func omittedPeriods(ordered []entry, chosen []bool) []models.OmittedPeriod {
	selectedDays := make(map[string]struct{})
	for i, e := range ordered {
		if chosen[i] {
			selectedDays[e.day] = struct{}{}
		}
	}

	periods := make([]models.OmittedPeriod, 0)
	var current *models.OmittedPeriod
	for _, e := range ordered {
		if _, ok := selectedDays[e.day]; ok {
			if current != nil {
				periods = append(periods, *current)
				current = nil
			}
			continue
		}
		if current == nil {
			current = &models.OmittedPeriod{StartDate: e.day}
		}
		current.EndDate = e.day
		current.PhotosOmitted++
	}
	if current != nil {
		periods = append(periods, *current)
	}
	return periods
}

// rankByScore returns pool indices ordered by descending total score.
// Equal scores keep the earlier pool position first.
func rankByScore(scores []ScoreComponents) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b].Total, scores[a].Total)
	})
	return order
}
