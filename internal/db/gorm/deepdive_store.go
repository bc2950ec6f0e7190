package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/pkg/models"
)

// DeepDiveStore provides deep dive session operations using GORM.
type DeepDiveStore struct {
	db *gorm.DB
}

var _ db.DeepDiveStore = (*DeepDiveStore)(nil)

// NewDeepDiveStore creates a new deep dive store.
func NewDeepDiveStore(store *Store) *DeepDiveStore {
	return &DeepDiveStore{db: store.DB}
}

// CreateDeepDive inserts session, filling its id, status and created_at when empty.
func (s *DeepDiveStore) CreateDeepDive(ctx context.Context, session *models.DeepDiveSession) error {
	row := deepDiveFromModel(session)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create deep dive: %w", translateError(err))
	}
	*session = *row.toModel()
	return nil
}

// GetDeepDive returns a deep dive session by id.
func (s *DeepDiveStore) GetDeepDive(ctx context.Context, id string) (*models.DeepDiveSession, error) {
	var row DeepDiveSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, fmt.Errorf("get deep dive %s: %w", id, translateError(err))
	}
	return row.toModel(), nil
}

// UpdateDeepDive saves the mutable fields of session: status, questions,
// final analysis and completion time. The write only applies while the
// stored version equals session.Version, which is then incremented.
func (s *DeepDiveStore) UpdateDeepDive(ctx context.Context, session *models.DeepDiveSession) error {
	row := deepDiveFromModel(session)
	row.Version = session.Version + 1
	res := s.db.WithContext(ctx).
		Model(&DeepDiveSession{}).
		Where("id = ? AND version = ?", session.ID, session.Version).
		Select("status", "questions", "final_analysis", "completed_at", "version").
		Updates(row)
	if res.Error != nil {
		return fmt.Errorf("update deep dive %s: %w", session.ID, translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&DeepDiveSession{}).Where("id = ?", session.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("update deep dive %s: %w", session.ID, translateError(err))
		}
		if n == 0 {
			return fmt.Errorf("update deep dive %s: %w", session.ID, db.ErrNotFound)
		}
		return fmt.Errorf("update deep dive %s at version %d: %w", session.ID, session.Version, db.ErrConflict)
	}
	session.Version = row.Version
	return nil
}
