// Package db defines the storage interfaces of the Oracle backend.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/thebtf/oracle/pkg/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a write collides with an existing key.
	ErrDuplicate = errors.New("duplicate record")

	// ErrConflict is returned when an update was based on a stale version.
	ErrConflict = errors.New("record changed concurrently")
)

// MaxBatchSize is the largest id list sent in a single IN query.
const MaxBatchSize = 100

// PhotoReader defines read operations for photo sessions, photos and analyses.
type PhotoReader interface {
	GetPhotoSession(ctx context.Context, id string) (*models.PhotoSession, error)
	GetSessionPhotos(ctx context.Context, sessionID string) ([]models.PhotoRecord, error)
	GetPhotosByIDs(ctx context.Context, ids []string) ([]models.PhotoRecord, error)
	GetSessionAnalyses(ctx context.Context, sessionID string) ([]models.AnalysisRecord, error)
	GetLatestAnalysis(ctx context.Context, sessionID string) (*models.AnalysisRecord, error)
	GetUserAnalysesSince(ctx context.Context, userID string, since time.Time) ([]models.AnalysisRecord, error)
}

// PhotoWriter defines write operations for photo sessions, photos and analyses.
type PhotoWriter interface {
	CreatePhotoSession(ctx context.Context, session *models.PhotoSession) error
	AddPhotos(ctx context.Context, sessionID string, photos []models.PhotoRecord) ([]models.PhotoRecord, error)
	StoreAnalysis(ctx context.Context, analysis *models.AnalysisRecord) error
}

// PhotoStore combines read and write operations for photos.
type PhotoStore interface {
	PhotoReader
	PhotoWriter
}

// ChatStore persists conversations and their messages.
type ChatStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	// GetMessages returns the last limit messages in chronological order.
	// A limit of 0 returns all messages.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	GetUserMessagesSince(ctx context.Context, userID string, since time.Time) ([]models.Message, error)
}

// DeepDiveStore persists deep dive interviews.
type DeepDiveStore interface {
	CreateDeepDive(ctx context.Context, session *models.DeepDiveSession) error
	GetDeepDive(ctx context.Context, id string) (*models.DeepDiveSession, error)
	// UpdateDeepDive writes session if its Version is still current and
	// increments it; otherwise it returns ErrConflict.
	UpdateDeepDive(ctx context.Context, session *models.DeepDiveSession) error
}

// InsightStore persists weekly insight briefs.
type InsightStore interface {
	SaveWeeklyInsight(ctx context.Context, insight *models.WeeklyInsight) error
	GetWeeklyInsight(ctx context.Context, userID, weekOf string) (*models.WeeklyInsight, error)
	GetLatestWeeklyInsight(ctx context.Context, userID string) (*models.WeeklyInsight, error)
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxBatchSize
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		chunks = append(chunks, ids[start:min(start+size, len(ids))])
	}
	return chunks
}
