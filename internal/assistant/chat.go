package assistant

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/internal/llm"
	"github.com/thebtf/oracle/pkg/models"
)

const maxTitleRunes = 60

// ChatRequest is one user turn. An empty ConversationID starts a new
// conversation.
type ChatRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
}

// ChatResponse carries the assistant's reply.
type ChatResponse struct {
	ConversationID string         `json:"conversation_id"`
	UserMessageID  string         `json:"user_message_id"`
	Reply          models.Message `json:"reply"`
	ContextTokens  int            `json:"context_tokens"`
}

// Chat stores the user's message, asks the model with the token-trimmed
// conversation history as context and stores the reply.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := required("user_id", req.UserID); err != nil {
		return nil, err
	}
	if err := required("message", req.Message); err != nil {
		return nil, err
	}

	conv, err := s.conversationFor(ctx, req)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        req.Message,
		CreatedAt:      s.timestamp(),
		TokenCount:     llm.CountTokens(req.Message),
	}
	if err := s.chats.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	history, err := s.chats.GetMessages(ctx, conv.ID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	prompt := make([]llm.Message, 0, len(history)+1)
	prompt = append(prompt, llm.Message{Role: models.RoleSystem, Content: chatSystemPrompt})
	for _, m := range history {
		prompt = append(prompt, llm.Message{Role: m.Role, Content: m.Content})
	}
	prompt = llm.TrimHistory(prompt, s.cfg.ChatTokenBudget)

	contextTokens := 0
	for _, m := range prompt {
		contextTokens += llm.MessageTokens(m)
	}

	model := req.Model
	if model == "" {
		model = s.cfg.ChatModel
	}
	resp, err := s.llm.Complete(ctx, llm.Request{Model: model, Messages: prompt})
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	reply := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        resp.Content,
		Model:          resp.Model,
		CreatedAt:      s.timestamp(),
		TokenCount:     resp.CompletionTokens,
	}
	if err := s.chats.AppendMessage(ctx, reply); err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}

	log.Debug().
		Str("conversation_id", conv.ID).
		Int("history", len(history)).
		Int("context_messages", len(prompt)).
		Int("context_tokens", contextTokens).
		Msg("Chat turn completed")

	return &ChatResponse{
		ConversationID: conv.ID,
		UserMessageID:  userMsg.ID,
		Reply:          *reply,
		ContextTokens:  contextTokens,
	}, nil
}

// conversationFor returns the requested conversation, or a new one titled
// after the first message. Conversations of other users are reported as
// not found.
func (s *Service) conversationFor(ctx context.Context, req ChatRequest) (*models.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.chats.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv.UserID != req.UserID {
			return nil, fmt.Errorf("get conversation %s: %w", req.ConversationID, db.ErrNotFound)
		}
		return conv, nil
	}

	conv := &models.Conversation{UserID: req.UserID, Title: titleFrom(req.Message)}
	if err := s.chats.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}
	return conv, nil
}

// Messages returns up to limit of the most recent messages of a conversation,
// oldest first.
func (s *Service) Messages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if _, err := s.chats.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	return s.chats.GetMessages(ctx, conversationID, limit)
}

func titleFrom(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
}
