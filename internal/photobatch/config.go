// Package photobatch selects a bounded, chronologically ordered subset of a
// photo session, keeping the baseline and the most recent photos and filling
// the remaining capacity with the photos that matter most clinically.
package photobatch

const (
	// DefaultMaxPhotos is the hard cap on photos returned by a selection.
	DefaultMaxPhotos = 40

	// DefaultReservedRecent is the number of most recent photos always kept.
	DefaultReservedRecent = 5

	// DefaultReservedBaseline is the number of earliest photos always kept.
	DefaultReservedBaseline = 1
)

// Weights controls the importance score of middle-pool candidates.
// The defaults encode a triage order: red flags > worsening trend >
// user flag > low confidence > quality, with temporal spacing as the
// tie-breaker among otherwise unremarkable photos.
type Weights struct {
	// TemporalMax is the score of a candidate sitting exactly on an ideal
	// evenly spaced position.
	TemporalMax float64 `json:"temporal_max"`

	// QualityFactor multiplies the photo's quality_score (0-100).
	QualityFactor float64 `json:"quality_factor"`

	// LowConfidenceThreshold is the analysis confidence below which
	// LowConfidence is added.
	LowConfidenceThreshold float64 `json:"low_confidence_threshold"`
	LowConfidence          float64 `json:"low_confidence"`

	RedFlags    float64 `json:"red_flags"`
	Worsening   float64 `json:"worsening"`
	UserFlagged float64 `json:"user_flagged"`
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		TemporalMax:            100,
		QualityFactor:          0.5,
		LowConfidenceThreshold: 70,
		LowConfidence:          50,
		RedFlags:               100,
		Worsening:              80,
		UserFlagged:            75,
	}
}

// Config is the immutable configuration of a Selector.
type Config struct {
	Weights          Weights `json:"weights"`
	MaxPhotos        int     `json:"max_photos"`
	ReservedRecent   int     `json:"reserved_recent"`
	ReservedBaseline int     `json:"reserved_baseline"`
}

// DefaultConfig returns the configuration used by the photo timeline.
func DefaultConfig() Config {
	return Config{
		MaxPhotos:        DefaultMaxPhotos,
		ReservedRecent:   DefaultReservedRecent,
		ReservedBaseline: DefaultReservedBaseline,
		Weights:          DefaultWeights(),
	}
}

// WithMaxPhotos returns a copy of c with a different cap.
func (c Config) WithMaxPhotos(n int) Config {
	c.MaxPhotos = n
	return c
}

// Validate reports the first invalid setting as a *ConfigurationError.
func (c Config) Validate() error {
	switch {
	case c.MaxPhotos < 1:
		return &ConfigurationError{Field: "max_photos", Value: c.MaxPhotos, Reason: "must be at least 1"}
	case c.ReservedRecent < 0:
		return &ConfigurationError{Field: "reserved_recent", Value: c.ReservedRecent, Reason: "must not be negative"}
	case c.ReservedBaseline < 0:
		return &ConfigurationError{Field: "reserved_baseline", Value: c.ReservedBaseline, Reason: "must not be negative"}
	case c.ReservedBaseline+c.ReservedRecent > c.MaxPhotos:
		return &ConfigurationError{
			Field:  "reserved_baseline+reserved_recent",
			Value:  c.ReservedBaseline + c.ReservedRecent,
			Reason: "exceeds max_photos",
		}
	}
	return nil
}

// reservedSlots is the number of slots taken by baseline and recent photos.
func (c Config) reservedSlots() int {
	return c.ReservedBaseline + c.ReservedRecent
}
