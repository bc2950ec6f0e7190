package gorm

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/oracle/internal/photobatch"
	"github.com/thebtf/oracle/pkg/models"
)

// GORM Models

// Note: JSON column types (JSONStringArray, JSONObject, DeepDiveQAList,
// InsightBody) come from pkg/models and implement sql.Scanner and driver.Valuer.

// PhotoSession is a tracked condition owning a series of photos.
type PhotoSession struct {
	ID             string         `gorm:"primaryKey;type:varchar(36)"`
	UserID         string         `gorm:"index;not null"`
	ConditionName  string         `gorm:"not null"`
	CreatedAt      string         `gorm:"not null"`
	Description    sql.NullString `gorm:"type:text"`
	LastPhotoAt    sql.NullString
	CreatedAtEpoch int64 `gorm:"index:idx_photo_sessions_created,sort:desc;not null"`
}

func (PhotoSession) TableName() string { return "photo_sessions" }

// BeforeCreate hook to ensure the id and timestamps are set.
func (s *PhotoSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	stampCreated(&s.CreatedAt, &s.CreatedAtEpoch)
	return nil
}

// Photo is one uploaded photo. The image itself lives in object storage.
type Photo struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)"`
	SessionID       string          `gorm:"index:idx_photos_session_order,priority:1;not null"`
	UploadedAt      string          `gorm:"not null"`
	StorageURL      string          `gorm:"type:text"`
	FollowupNotes   sql.NullString  `gorm:"type:text"`
	Category        sql.NullString
	QualityScore    sql.NullFloat64 `gorm:"type:real"`
	UploadedAtEpoch int64           `gorm:"index:idx_photos_session_order,priority:2"`
	Seq             int64           `gorm:"index:idx_photos_session_order,priority:3;not null"`
}

func (Photo) TableName() string { return "photos" }

// BeforeCreate hook to ensure the id and ordering keys are set.
func (p *Photo) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Seq == 0 {
		p.Seq = nextSeq()
	}
	return nil
}

// PhotoAnalysis is an AI analysis covering one or more photos of a session.
type PhotoAnalysis struct {
	ID                 string                 `gorm:"primaryKey;type:varchar(36)"`
	SessionID          string                 `gorm:"index:idx_analyses_session_created,priority:1;not null"`
	CreatedAt          string                 `gorm:"not null"`
	PrimaryAssessment  string                 `gorm:"type:text"`
	Trend              string                 `gorm:"type:text"`
	ComparisonSummary  string                 `gorm:"type:text"`
	PhotoIDs           models.JSONStringArray `gorm:"type:text"`
	VisualObservations models.JSONStringArray `gorm:"type:text"`
	RedFlags           models.JSONStringArray `gorm:"type:text"`
	Recommendations    models.JSONStringArray `gorm:"type:text"`
	ConfidenceScore    float64                `gorm:"type:real;default:0"`
	CreatedAtEpoch     int64                  `gorm:"index:idx_analyses_session_created,priority:2,sort:desc;not null"`
	Seq                int64                  `gorm:"not null"`
}

func (PhotoAnalysis) TableName() string { return "photo_analyses" }

// BeforeCreate hook to ensure the id and timestamps are set.
func (a *PhotoAnalysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Seq == 0 {
		a.Seq = nextSeq()
	}
	stampCreated(&a.CreatedAt, &a.CreatedAtEpoch)
	return nil
}

// Conversation is a chat thread.
type Conversation struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	UserID         string `gorm:"index;not null"`
	Title          string
	CreatedAt      string `gorm:"not null"`
	UpdatedAt      string `gorm:"not null"`
	UpdatedAtEpoch int64  `gorm:"index:idx_conversations_updated,sort:desc;not null"`
}

func (Conversation) TableName() string { return "conversations" }

// BeforeCreate hook to ensure the id and timestamps are set.
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	stampCreated(&c.CreatedAt, &c.UpdatedAtEpoch)
	if c.UpdatedAt == "" {
		c.UpdatedAt = c.CreatedAt
	}
	return nil
}

// Message is a single chat turn.
type Message struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	ConversationID string `gorm:"index:idx_messages_conversation_seq,priority:1;not null"`
	Role           string `gorm:"type:text;check:role IN ('system', 'user', 'assistant');not null"`
	Content        string `gorm:"type:text;not null"`
	Model          string
	CreatedAt      string `gorm:"not null"`
	TokenCount     int    `gorm:"default:0"`
	CreatedAtEpoch int64  `gorm:"index;not null"`
	Seq            int64  `gorm:"index:idx_messages_conversation_seq,priority:2;not null"`
}

func (Message) TableName() string { return "messages" }

// BeforeCreate hook to ensure the id, timestamps and ordering key are set.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Seq == 0 {
		m.Seq = nextSeq()
	}
	stampCreated(&m.CreatedAt, &m.CreatedAtEpoch)
	return nil
}

// DeepDiveSession is a diagnostic interview.
type DeepDiveSession struct {
	FormData       models.JSONObject     `gorm:"type:text"`
	FinalAnalysis  models.JSONObject     `gorm:"type:text"`
	ID             string                `gorm:"primaryKey;type:varchar(36)"`
	UserID         string                `gorm:"index;not null"`
	BodyPart       string                `gorm:"not null"`
	Status         string                `gorm:"type:text;check:status IN ('active', 'analysis_ready', 'completed');default:'active';index"`
	CreatedAt      string                `gorm:"not null"`
	CompletedAt    sql.NullString
	Questions      models.DeepDiveQAList `gorm:"type:text"`
	CreatedAtEpoch int64                 `gorm:"not null"`
	Version        int64                 `gorm:"not null;default:0"`
}

func (DeepDiveSession) TableName() string { return "deep_dive_sessions" }

// BeforeCreate hook to ensure the id and timestamps are set.
func (d *DeepDiveSession) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = models.DeepDiveActive
	}
	stampCreated(&d.CreatedAt, &d.CreatedAtEpoch)
	return nil
}

// WeeklyInsight is one stored weekly brief; one row per user and week.
type WeeklyInsight struct {
	Body           models.InsightBody `gorm:"type:text"`
	ID             string             `gorm:"primaryKey;type:varchar(36)"`
	UserID         string             `gorm:"uniqueIndex:idx_weekly_insights_user_week,priority:1;not null"`
	WeekOf         string             `gorm:"uniqueIndex:idx_weekly_insights_user_week,priority:2;not null"`
	Model          string
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_weekly_insights_created,sort:desc;not null"`
}

func (WeeklyInsight) TableName() string { return "weekly_insights" }

// BeforeCreate hook to ensure the id and timestamps are set.
func (w *WeeklyInsight) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	stampCreated(&w.CreatedAt, &w.CreatedAtEpoch)
	return nil
}

// stampCreated fills an empty RFC3339 timestamp and its epoch millis.
// A provided timestamp is kept and its epoch derived from it.
func stampCreated(at *string, epoch *int64) {
	if *at == "" {
		now := time.Now().UTC()
		*at = now.Format(time.RFC3339Nano)
		*epoch = now.UnixMilli()
		return
	}
	if *epoch == 0 {
		*epoch = epochMillis(*at)
	}
}

// epochMillis parses an RFC3339 timestamp, returning 0 when it cannot.
func epochMillis(s string) int64 {
	if t, ok := photobatch.ParseTimestamp(s); ok {
		return t.UnixMilli()
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// Conversions between GORM rows and domain models.

func (s *PhotoSession) toModel() *models.PhotoSession {
	return &models.PhotoSession{
		ID:            s.ID,
		UserID:        s.UserID,
		ConditionName: s.ConditionName,
		Description:   s.Description.String,
		CreatedAt:     s.CreatedAt,
		LastPhotoAt:   s.LastPhotoAt.String,
	}
}

func (p *Photo) toModel() models.PhotoRecord {
	rec := models.PhotoRecord{
		ID:            p.ID,
		SessionID:     p.SessionID,
		UploadedAt:    p.UploadedAt,
		FollowupNotes: p.FollowupNotes.String,
		StorageURL:    p.StorageURL,
		Category:      p.Category.String,
	}
	if p.QualityScore.Valid {
		q := p.QualityScore.Float64
		rec.QualityScore = &q
	}
	return rec
}

func photoFromModel(sessionID string, rec *models.PhotoRecord) *Photo {
	return &Photo{
		ID:              rec.ID,
		SessionID:       sessionID,
		UploadedAt:      rec.UploadedAt,
		StorageURL:      rec.StorageURL,
		FollowupNotes:   nullString(rec.FollowupNotes),
		Category:        nullString(rec.Category),
		QualityScore:    nullFloat(rec.QualityScore),
		UploadedAtEpoch: epochMillis(rec.UploadedAt),
	}
}

func (a *PhotoAnalysis) toModel() models.AnalysisRecord {
	rec := models.AnalysisRecord{
		ID:        a.ID,
		SessionID: a.SessionID,
		CreatedAt: a.CreatedAt,
		PhotoIDs:  []string(a.PhotoIDs),
		AnalysisData: models.AnalysisData{
			PrimaryAssessment:  a.PrimaryAssessment,
			VisualObservations: []string(a.VisualObservations),
			RedFlags:           []string(a.RedFlags),
			Recommendations:    []string(a.Recommendations),
		},
		ConfidenceScore: a.ConfidenceScore,
	}
	if a.Trend != "" {
		rec.Comparison = &models.Comparison{Trend: models.Trend(a.Trend), Summary: a.ComparisonSummary}
	}
	return rec
}

func analysisFromModel(rec *models.AnalysisRecord) *PhotoAnalysis {
	row := &PhotoAnalysis{
		ID:                 rec.ID,
		SessionID:          rec.SessionID,
		CreatedAt:          rec.CreatedAt,
		PrimaryAssessment:  rec.AnalysisData.PrimaryAssessment,
		PhotoIDs:           models.JSONStringArray(rec.PhotoIDs),
		VisualObservations: models.JSONStringArray(rec.AnalysisData.VisualObservations),
		RedFlags:           models.JSONStringArray(rec.AnalysisData.RedFlags),
		Recommendations:    models.JSONStringArray(rec.AnalysisData.Recommendations),
		ConfidenceScore:    rec.ConfidenceScore,
	}
	if rec.Comparison != nil {
		row.Trend = string(rec.Comparison.Trend)
		row.ComparisonSummary = rec.Comparison.Summary
	}
	return row
}

func (c *Conversation) toModel() *models.Conversation {
	return &models.Conversation{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (m *Message) toModel() models.Message {
	return models.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		Model:          m.Model,
		CreatedAt:      m.CreatedAt,
		TokenCount:     m.TokenCount,
	}
}

func (d *DeepDiveSession) toModel() *models.DeepDiveSession {
	return &models.DeepDiveSession{
		ID:            d.ID,
		UserID:        d.UserID,
		BodyPart:      d.BodyPart,
		Status:        d.Status,
		FormData:      d.FormData,
		Questions:     d.Questions,
		FinalAnalysis: d.FinalAnalysis,
		CreatedAt:     d.CreatedAt,
		CompletedAt:   d.CompletedAt.String,
		Version:       d.Version,
	}
}

func deepDiveFromModel(s *models.DeepDiveSession) *DeepDiveSession {
	return &DeepDiveSession{
		ID:            s.ID,
		UserID:        s.UserID,
		BodyPart:      s.BodyPart,
		Status:        s.Status,
		FormData:      s.FormData,
		Questions:     s.Questions,
		FinalAnalysis: s.FinalAnalysis,
		CreatedAt:     s.CreatedAt,
		CompletedAt:   nullString(s.CompletedAt),
		Version:       s.Version,
	}
}

func (w *WeeklyInsight) toModel() *models.WeeklyInsight {
	return &models.WeeklyInsight{
		ID:        w.ID,
		UserID:    w.UserID,
		WeekOf:    w.WeekOf,
		Model:     w.Model,
		CreatedAt: w.CreatedAt,
		Body:      w.Body,
	}
}
