package models

import (
	"database/sql/driver"

	json "github.com/goccy/go-json"
)

// Deep dive session states.
const (
	DeepDiveActive    = "active"
	DeepDiveReady     = "analysis_ready"
	DeepDiveCompleted = "completed"
)

// DeepDiveQA is one diagnostic question and the user's answer.
type DeepDiveQA struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

// DeepDiveQAList is the ordered question list stored as a JSON column.
type DeepDiveQAList []DeepDiveQA

// Scan implements sql.Scanner for DeepDiveQAList.
func (l *DeepDiveQAList) Scan(src any) error {
	*l = nil
	return scanJSON("DeepDiveQAList", src, l)
}

// Value implements driver.Valuer for DeepDiveQAList.
func (l DeepDiveQAList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]DeepDiveQA(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Pending returns the index of the first unanswered question, or -1.
func (l DeepDiveQAList) Pending() int {
	for i, qa := range l {
		if qa.Answer == "" {
			return i
		}
	}
	return -1
}

// DeepDiveSession is a multi-question diagnostic interview about one body part.
type DeepDiveSession struct {
	FormData      JSONObject     `json:"form_data,omitempty"`
	FinalAnalysis JSONObject     `json:"final_analysis,omitempty"`
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	BodyPart      string         `json:"body_part"`
	Status        string         `json:"status"`
	CreatedAt     string         `json:"created_at"`
	CompletedAt   string         `json:"completed_at,omitempty"`
	Questions     DeepDiveQAList `json:"questions"`
	// Version counts stored updates; writes based on an older version fail.
	Version int64 `json:"version"`
}
