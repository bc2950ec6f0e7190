package assistant

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/internal/llm"
	"github.com/thebtf/oracle/pkg/models"
)

// memStore is an in-memory implementation of every store the assistant uses.
type memStore struct {
	mu            sync.Mutex
	sessions      map[string]*models.PhotoSession
	photos        []models.PhotoRecord
	analyses      []models.AnalysisRecord
	conversations map[string]*models.Conversation
	messages      []models.Message
	deepDives     map[string]*models.DeepDiveSession
	insights      map[string]*models.WeeklyInsight
}

var (
	_ db.PhotoStore    = (*memStore)(nil)
	_ db.ChatStore     = (*memStore)(nil)
	_ db.DeepDiveStore = (*memStore)(nil)
	_ db.InsightStore  = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		sessions:      map[string]*models.PhotoSession{},
		conversations: map[string]*models.Conversation{},
		deepDives:     map[string]*models.DeepDiveSession{},
		insights:      map[string]*models.WeeklyInsight{},
	}
}

func notFound(what, id string) error {
	return fmt.Errorf("get %s %s: %w", what, id, db.ErrNotFound)
}

func (m *memStore) CreatePhotoSession(_ context.Context, s *models.PhotoSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetPhotoSession(_ context.Context, id string) (*models.PhotoSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound("photo session", id)
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) AddPhotos(_ context.Context, sessionID string, photos []models.PhotoRecord) ([]models.PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, notFound("photo session", sessionID)
	}
	out := make([]models.PhotoRecord, len(photos))
	for i, p := range photos {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.SessionID = sessionID
		m.photos = append(m.photos, p)
		out[i] = p
	}
	return out, nil
}

func (m *memStore) GetSessionPhotos(_ context.Context, sessionID string) ([]models.PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PhotoRecord
	for _, p := range m.photos {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetPhotosByIDs(_ context.Context, ids []string) ([]models.PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PhotoRecord
	for _, id := range ids {
		for _, p := range m.photos {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *memStore) StoreAnalysis(_ context.Context, a *models.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.analyses = append(m.analyses, *a)
	return nil
}

func (m *memStore) GetSessionAnalyses(_ context.Context, sessionID string) ([]models.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AnalysisRecord
	for _, a := range m.analyses {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) GetLatestAnalysis(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	all, _ := m.GetSessionAnalyses(ctx, sessionID)
	if len(all) == 0 {
		return nil, notFound("latest analysis", sessionID)
	}
	return &all[len(all)-1], nil
}

func (m *memStore) GetUserAnalysesSince(_ context.Context, userID string, since time.Time) ([]models.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AnalysisRecord
	for _, a := range m.analyses {
		s := m.sessions[a.SessionID]
		if s == nil || s.UserID != userID {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, a.CreatedAt); err == nil && !t.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) CreateConversation(_ context.Context, c *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	m.conversations[c.ID] = &cp
	return nil
}

func (m *memStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, notFound("conversation", id)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) AppendMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return notFound("conversation", msg.ConversationID)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memStore) GetMessages(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) GetUserMessagesSince(_ context.Context, userID string, since time.Time) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		c := m.conversations[msg.ConversationID]
		if c == nil || c.UserID != userID || msg.Role != models.RoleUser {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, msg.CreatedAt); err == nil && !t.Before(since) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) CreateDeepDive(_ context.Context, s *models.DeepDiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	cp.Questions = slices.Clone(s.Questions)
	m.deepDives[s.ID] = &cp
	return nil
}

func (m *memStore) GetDeepDive(_ context.Context, id string) (*models.DeepDiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.deepDives[id]
	if !ok {
		return nil, notFound("deep dive", id)
	}
	cp := *s
	cp.Questions = slices.Clone(s.Questions)
	return &cp, nil
}

func (m *memStore) UpdateDeepDive(_ context.Context, s *models.DeepDiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.deepDives[s.ID]
	if !ok {
		return notFound("deep dive", s.ID)
	}
	if cur.Version != s.Version {
		return fmt.Errorf("update deep dive %s: %w", s.ID, db.ErrConflict)
	}
	s.Version++
	cp := *s
	cp.Questions = slices.Clone(s.Questions)
	m.deepDives[s.ID] = &cp
	return nil
}

func (m *memStore) SaveWeeklyInsight(_ context.Context, in *models.WeeklyInsight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	cp := *in
	m.insights[in.UserID+"/"+in.WeekOf] = &cp
	return nil
}

func (m *memStore) GetWeeklyInsight(_ context.Context, userID, weekOf string) (*models.WeeklyInsight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.insights[userID+"/"+weekOf]
	if !ok {
		return nil, notFound("weekly insight", userID+"/"+weekOf)
	}
	cp := *in
	return &cp, nil
}

func (m *memStore) GetLatestWeeklyInsight(_ context.Context, userID string) (*models.WeeklyInsight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.WeeklyInsight
	for _, in := range m.insights {
		if in.UserID == userID && (latest == nil || in.WeekOf > latest.WeekOf) {
			latest = in
		}
	}
	if latest == nil {
		return nil, notFound("latest weekly insight", userID)
	}
	cp := *latest
	return &cp, nil
}

// scriptedLLM replies with queued contents and records every request.
// onCall, when set, runs before each reply.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	onCall   func()
	requests []llm.Request
}

func (f *scriptedLLM) queue(replies ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range replies {
		switch v := r.(type) {
		case string:
			f.replies = append(f.replies, v)
		default:
			b, _ := json.Marshal(v)
			f.replies = append(f.replies, string(b))
		}
	}
}

func (f *scriptedLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	if f.onCall != nil {
		f.onCall()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return nil, fmt.Errorf("scriptedLLM: no reply queued")
	}
	content := f.replies[0]
	f.replies = f.replies[1:]
	model := req.Model
	if model == "" {
		model = "default-model"
	}
	return &llm.Response{Content: content, Model: model, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (f *scriptedLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *scriptedLLM) last() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// memCache is an in-memory insight cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string]models.WeeklyInsight
}

func (c *memCache) Get(_ context.Context, userID, weekOf string) (*models.WeeklyInsight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.entries[userID+"/"+weekOf]
	if !ok {
		return nil, false
	}
	in.Cached = true
	return &in, true
}

func (c *memCache) Set(_ context.Context, in *models.WeeklyInsight) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]models.WeeklyInsight{}
	}
	c.entries[in.UserID+"/"+in.WeekOf] = *in
	return nil
}

func (c *memCache) Close() error { return nil }
