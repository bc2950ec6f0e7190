package models

import (
	"database/sql/driver"

	json "github.com/goccy/go-json"
)

// InsightItem is a single observation in a weekly brief.
type InsightItem struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Confidence  int    `json:"confidence"`
}

// InsightBody is the AI-generated part of a weekly brief.
type InsightBody struct {
	Greeting       string        `json:"greeting"`
	Headline       string        `json:"headline"`
	Insights       []InsightItem `json:"insights"`
	Predictions    []string      `json:"predictions"`
	ShadowPatterns []string      `json:"shadow_patterns"`
	Strategies     []string      `json:"strategies"`
}

// Scan implements sql.Scanner for InsightBody.
func (b *InsightBody) Scan(src any) error {
	*b = InsightBody{}
	return scanJSON("InsightBody", src, b)
}

// Value implements driver.Valuer for InsightBody.
func (b InsightBody) Value() (driver.Value, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// WeeklyInsight is a stored weekly brief for one user.
type WeeklyInsight struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	WeekOf    string      `json:"week_of"`
	Model     string      `json:"model,omitempty"`
	CreatedAt string      `json:"created_at"`
	Body      InsightBody `json:"body"`
	Cached    bool        `json:"cached,omitempty"`
}
