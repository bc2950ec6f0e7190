package gorm

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/pkg/models"
)

// ChatStore provides conversation and message operations using GORM.
type ChatStore struct {
	db *gorm.DB
}

var _ db.ChatStore = (*ChatStore)(nil)

// NewChatStore creates a new chat store.
func NewChatStore(store *Store) *ChatStore {
	return &ChatStore{db: store.DB}
}

// CreateConversation inserts conv, filling its id and timestamps when empty.
func (s *ChatStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	row := &Conversation{
		ID:        conv.ID,
		UserID:    conv.UserID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create conversation: %w", translateError(err))
	}
	*conv = *row.toModel()
	return nil
}

// GetConversation returns a conversation by id.
func (s *ChatStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var row Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, translateError(err))
	}
	return row.toModel(), nil
}

// AppendMessage stores msg and touches the conversation's updated_at.
func (s *ChatStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	row := &Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		Model:          msg.Model,
		CreatedAt:      msg.CreatedAt,
		TokenCount:     msg.TokenCount,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		res := tx.Model(&Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]any{
				"updated_at":       row.CreatedAt,
				"updated_at_epoch": row.CreatedAtEpoch,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append message to %s: %w", msg.ConversationID, translateError(err))
	}

	*msg = row.toModel()
	return nil
}

// GetMessages returns the last limit messages of a conversation in
// chronological order. A limit of 0 returns all messages.
func (s *ChatStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	var rows []Message
	q := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get messages %s: %w", conversationID, translateError(err))
	}

	slices.Reverse(rows)
	out := make([]models.Message, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// GetUserMessagesSince returns the user-authored messages across all of a
// user's conversations created at or after since, oldest first.
func (s *ChatStore) GetUserMessagesSince(ctx context.Context, userID string, since time.Time) ([]models.Message, error) {
	var rows []Message
	err := s.db.WithContext(ctx).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.user_id = ? AND messages.role = ? AND messages.created_at_epoch >= ?",
			userID, models.RoleUser, since.UnixMilli()).
		Order("messages.seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get user messages %s: %w", userID, translateError(err))
	}

	out := make([]models.Message, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}
