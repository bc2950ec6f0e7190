package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/pkg/models"
)

// PhotoStore provides photo session, photo and analysis operations using GORM.
type PhotoStore struct {
	db *gorm.DB
}

var _ db.PhotoStore = (*PhotoStore)(nil)

// NewPhotoStore creates a new photo store.
func NewPhotoStore(store *Store) *PhotoStore {
	return &PhotoStore{db: store.DB}
}

// CreatePhotoSession inserts session, filling its id and created_at when empty.
func (s *PhotoStore) CreatePhotoSession(ctx context.Context, session *models.PhotoSession) error {
	row := &PhotoSession{
		ID:            session.ID,
		UserID:        session.UserID,
		ConditionName: session.ConditionName,
		Description:   nullString(session.Description),
		CreatedAt:     session.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create photo session: %w", translateError(err))
	}
	*session = *row.toModel()
	return nil
}

// GetPhotoSession returns a session by id.
func (s *PhotoStore) GetPhotoSession(ctx context.Context, id string) (*models.PhotoSession, error) {
	var row PhotoSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, fmt.Errorf("get photo session %s: %w", id, translateError(err))
	}
	return row.toModel(), nil
}

// AddPhotos stores photos under sessionID in one transaction and advances the
// session's last_photo_at. The stored records, with ids filled, are returned
// in input order.
func (s *PhotoStore) AddPhotos(ctx context.Context, sessionID string, photos []models.PhotoRecord) ([]models.PhotoRecord, error) {
	if len(photos) == 0 {
		return []models.PhotoRecord{}, nil
	}

	rows := make([]*Photo, len(photos))
	latest, latestEpoch := "", int64(-1)
	for i := range photos {
		rows[i] = photoFromModel(sessionID, &photos[i])
		if rows[i].UploadedAtEpoch > latestEpoch {
			latest, latestEpoch = rows[i].UploadedAt, rows[i].UploadedAtEpoch
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session PhotoSession
		if err := tx.Where("id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}
		if err := tx.CreateInBatches(rows, db.MaxBatchSize).Error; err != nil {
			return err
		}
		if session.LastPhotoAt.Valid && epochMillis(session.LastPhotoAt.String) >= latestEpoch {
			return nil
		}
		return tx.Model(&PhotoSession{}).
			Where("id = ?", sessionID).
			Update("last_photo_at", latest).Error
	})
	if err != nil {
		return nil, fmt.Errorf("add photos to %s: %w", sessionID, translateError(err))
	}

	out := make([]models.PhotoRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// GetSessionPhotos returns all photos of a session ordered by upload time,
// then insertion order.
func (s *PhotoStore) GetSessionPhotos(ctx context.Context, sessionID string) ([]models.PhotoRecord, error) {
	var rows []Photo
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("uploaded_at_epoch ASC, seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get session photos %s: %w", sessionID, translateError(err))
	}

	out := make([]models.PhotoRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// GetPhotosByIDs fetches photos in chunks of db.MaxBatchSize and returns them
// in the order of ids. Unknown ids are skipped.
func (s *PhotoStore) GetPhotosByIDs(ctx context.Context, ids []string) ([]models.PhotoRecord, error) {
	if len(ids) == 0 {
		return []models.PhotoRecord{}, nil
	}

	byID := make(map[string]*Photo, len(ids))
	for _, chunk := range db.Chunk(ids, db.MaxBatchSize) {
		var rows []*Photo
		if err := s.db.WithContext(ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("get photos by ids: %w", translateError(err))
		}
		for _, row := range rows {
			byID[row.ID] = row
		}
	}

	out := make([]models.PhotoRecord, 0, len(byID))
	seen := make(map[string]struct{}, len(byID))
	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, row.toModel())
	}
	return out, nil
}

// StoreAnalysis inserts an analysis, filling its id and created_at when empty.
func (s *PhotoStore) StoreAnalysis(ctx context.Context, analysis *models.AnalysisRecord) error {
	row := analysisFromModel(analysis)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("store analysis: %w", translateError(err))
	}
	analysis.ID = row.ID
	analysis.CreatedAt = row.CreatedAt
	return nil
}

// GetSessionAnalyses returns a session's analyses, oldest first.
func (s *PhotoStore) GetSessionAnalyses(ctx context.Context, sessionID string) ([]models.AnalysisRecord, error) {
	var rows []PhotoAnalysis
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at_epoch ASC, seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get session analyses %s: %w", sessionID, translateError(err))
	}
	return analysesToModels(rows), nil
}

// GetLatestAnalysis returns the most recent analysis of a session.
func (s *PhotoStore) GetLatestAnalysis(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	var row PhotoAnalysis
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at_epoch DESC, seq DESC").
		First(&row).Error
	if err != nil {
		return nil, fmt.Errorf("get latest analysis %s: %w", sessionID, translateError(err))
	}
	rec := row.toModel()
	return &rec, nil
}

// GetUserAnalysesSince returns analyses across all of a user's sessions
// created at or after since, oldest first.
func (s *PhotoStore) GetUserAnalysesSince(ctx context.Context, userID string, since time.Time) ([]models.AnalysisRecord, error) {
	var rows []PhotoAnalysis
	err := s.db.WithContext(ctx).
		Joins("JOIN photo_sessions ON photo_sessions.id = photo_analyses.session_id").
		Where("photo_sessions.user_id = ? AND photo_analyses.created_at_epoch >= ?", userID, since.UnixMilli()).
		Order("photo_analyses.created_at_epoch ASC, photo_analyses.seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get user analyses %s: %w", userID, translateError(err))
	}
	return analysesToModels(rows), nil
}

func analysesToModels(rows []PhotoAnalysis) []models.AnalysisRecord {
	out := make([]models.AnalysisRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out
}
