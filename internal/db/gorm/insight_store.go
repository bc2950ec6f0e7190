package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/pkg/models"
)

// InsightStore provides weekly insight operations using GORM.
type InsightStore struct {
	db *gorm.DB
}

var _ db.InsightStore = (*InsightStore)(nil)

// NewInsightStore creates a new insight store.
func NewInsightStore(store *Store) *InsightStore {
	return &InsightStore{db: store.DB}
}

// SaveWeeklyInsight stores insight, replacing any brief already saved for
// the same user and week.
func (s *InsightStore) SaveWeeklyInsight(ctx context.Context, insight *models.WeeklyInsight) error {
	row := &WeeklyInsight{
		ID:        insight.ID,
		UserID:    insight.UserID,
		WeekOf:    insight.WeekOf,
		Model:     insight.Model,
		CreatedAt: insight.CreatedAt,
		Body:      insight.Body,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "week_of"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "model", "created_at", "created_at_epoch"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("save weekly insight: %w", translateError(err))
	}

	stored, err := s.GetWeeklyInsight(ctx, insight.UserID, insight.WeekOf)
	if err != nil {
		return err
	}
	*insight = *stored
	return nil
}

// GetWeeklyInsight returns the brief of userID for the week starting weekOf.
func (s *InsightStore) GetWeeklyInsight(ctx context.Context, userID, weekOf string) (*models.WeeklyInsight, error) {
	var row WeeklyInsight
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND week_of = ?", userID, weekOf).
		First(&row).Error
	if err != nil {
		return nil, fmt.Errorf("get weekly insight %s/%s: %w", userID, weekOf, translateError(err))
	}
	return row.toModel(), nil
}

// GetLatestWeeklyInsight returns the most recent brief of userID.
func (s *InsightStore) GetLatestWeeklyInsight(ctx context.Context, userID string) (*models.WeeklyInsight, error) {
	var row WeeklyInsight
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("week_of DESC, created_at_epoch DESC").
		First(&row).Error
	if err != nil {
		return nil, fmt.Errorf("get latest weekly insight %s: %w", userID, translateError(err))
	}
	return row.toModel(), nil
}
