package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/internal/photobatch"
	"github.com/thebtf/oracle/pkg/models"
)

var fixedNow = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC) // a Wednesday

type ServiceSuite struct {
	suite.Suite
	store *memStore
	llm   *scriptedLLM
	cache *memCache
	svc   *Service
	ctx   context.Context
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newMemStore()
	s.llm = &scriptedLLM{}
	s.cache = &memCache{}

	svc, err := New(Deps{
		Photos:    s.store,
		Timelines: db.NewOptimizedClient(s.store, db.DefaultOptimizedConfig()),
		Chats:     s.store,
		DeepDives: s.store,
		Insights:  s.store,
		Cache:     s.cache,
		LLM:       s.llm,
	}, Config{
		ChatModel:   "chat-model",
		VisionModel: "vision-model",
	}, photobatch.DefaultConfig())
	s.Require().NoError(err)
	svc.now = func() time.Time { return fixedNow }
	s.svc = svc
}

func (s *ServiceSuite) newSession(user string) *models.PhotoSession {
	session, err := s.svc.CreatePhotoSession(s.ctx, CreateSessionRequest{UserID: user, ConditionName: "eczema"})
	s.Require().NoError(err)
	return session
}

func (s *ServiceSuite) addDailyPhotos(sessionID string, n int) []models.PhotoRecord {
	photos := make([]models.PhotoRecord, n)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := range photos {
		photos[i] = models.PhotoRecord{
			ID:         fmt.Sprintf("%s-p%02d", sessionID[:8], i),
			UploadedAt: start.AddDate(0, 0, i).Format(time.RFC3339),
			StorageURL: fmt.Sprintf("https://img.example/%d.jpg", i),
		}
	}
	stored, err := s.svc.AddPhotos(s.ctx, sessionID, photos)
	s.Require().NoError(err)
	return stored
}

// Chat

func (s *ServiceSuite) TestChat_StartsConversation() {
	s.llm.queue("Try a cold compress.")

	resp, err := s.svc.Chat(s.ctx, ChatRequest{UserID: "u1", Message: "My knee   hurts after running"})
	s.Require().NoError(err)

	s.NotEmpty(resp.ConversationID)
	s.NotEmpty(resp.UserMessageID)
	s.Equal("Try a cold compress.", resp.Reply.Content)
	s.Equal(models.RoleAssistant, resp.Reply.Role)
	s.Equal("chat-model", resp.Reply.Model)
	s.Positive(resp.ContextTokens)

	conv, err := s.store.GetConversation(s.ctx, resp.ConversationID)
	s.Require().NoError(err)
	s.Equal("My knee hurts after running", conv.Title)

	req := s.llm.last()
	s.Equal("chat-model", req.Model)
	s.Require().Len(req.Messages, 2)
	s.Equal(models.RoleSystem, req.Messages[0].Role)
	s.Equal("My knee   hurts after running", req.Messages[1].Content)

	msgs, err := s.svc.Messages(s.ctx, resp.ConversationID, 0)
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal(models.RoleUser, msgs[0].Role)
	s.Equal(models.RoleAssistant, msgs[1].Role)
}

func (s *ServiceSuite) TestChat_ContinuesConversationWithHistory() {
	s.llm.queue("first reply", "second reply")

	first, err := s.svc.Chat(s.ctx, ChatRequest{UserID: "u1", Message: "hello"})
	s.Require().NoError(err)
	_, err = s.svc.Chat(s.ctx, ChatRequest{UserID: "u1", ConversationID: first.ConversationID, Message: "again", Model: "override"})
	s.Require().NoError(err)

	req := s.llm.last()
	s.Equal("override", req.Model)
	s.Require().Len(req.Messages, 4)
	s.Equal("hello", req.Messages[1].Content)
	s.Equal("first reply", req.Messages[2].Content)
	s.Equal("again", req.Messages[3].Content)
}

func (s *ServiceSuite) TestChat_TrimsHistoryToBudget() {
	s.svc.cfg.ChatTokenBudget = 200
	long := strings.Repeat("symptom details ", 40)
	conv := &models.Conversation{UserID: "u1"}
	s.Require().NoError(s.store.CreateConversation(s.ctx, conv))
	for i := 0; i < 10; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		s.Require().NoError(s.store.AppendMessage(s.ctx, &models.Message{ConversationID: conv.ID, Role: role, Content: long}))
	}
	s.llm.queue("ok")

	_, err := s.svc.Chat(s.ctx, ChatRequest{UserID: "u1", ConversationID: conv.ID, Message: "short question"})
	s.Require().NoError(err)

	req := s.llm.last()
	s.Less(len(req.Messages), 12)
	s.Equal(models.RoleSystem, req.Messages[0].Role)
	s.Equal("short question", req.Messages[len(req.Messages)-1].Content)
}

func (s *ServiceSuite) TestChat_OtherUsersConversationIsNotFound() {
	s.llm.queue("reply")
	resp, err := s.svc.Chat(s.ctx, ChatRequest{UserID: "u1", Message: "hello"})
	s.Require().NoError(err)

	_, err = s.svc.Chat(s.ctx, ChatRequest{UserID: "intruder", ConversationID: resp.ConversationID, Message: "hi"})
	s.ErrorIs(err, db.ErrNotFound)
}

func (s *ServiceSuite) TestChat_Validation() {
	_, err := s.svc.Chat(s.ctx, ChatRequest{UserID: "u1", Message: "   "})
	var verr *ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("message", verr.Field)
	s.Zero(s.llm.calls())
}

func (s *ServiceSuite) TestChat_LLMFailureKeepsUserMessage() {
	s.llm.err = errors.New("provider down")

	_, err := s.svc.Chat(s.ctx, ChatRequest{UserID: "u1", Message: "hello"})
	s.ErrorContains(err, "provider down")
	s.Len(s.store.messages, 1)
}

func (s *ServiceSuite) TestMessages_UnknownConversation() {
	_, err := s.svc.Messages(s.ctx, "missing", 10)
	s.ErrorIs(err, db.ErrNotFound)
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "short", titleFrom("  short  "))
	long := titleFrom(strings.Repeat("a", 100))
	assert.Equal(t, maxTitleRunes+1, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}

// Photos and timeline

func (s *ServiceSuite) TestAddPhotos_Validation() {
	session := s.newSession("u1")

	_, err := s.svc.AddPhotos(s.ctx, session.ID, nil)
	var verr *ValidationError
	s.Require().ErrorAs(err, &verr)

	_, err = s.svc.AddPhotos(s.ctx, session.ID, []models.PhotoRecord{{UploadedAt: "2024-01-01"}})
	s.Require().ErrorAs(err, &verr)
	s.Equal("photos[0].storage_url", verr.Field)

	_, err = s.svc.AddPhotos(s.ctx, session.ID, []models.PhotoRecord{{StorageURL: "u", UploadedAt: "last tuesday"}})
	s.Require().ErrorAs(err, &verr)
	s.Equal("photos[0].uploaded_at", verr.Field)

	bad := 120.0
	_, err = s.svc.AddPhotos(s.ctx, session.ID, []models.PhotoRecord{{StorageURL: "u", QualityScore: &bad}})
	s.Require().ErrorAs(err, &verr)
	s.Equal("photos[0].quality_score", verr.Field)
}

func (s *ServiceSuite) TestAddPhotos_FillsUploadTime() {
	session := s.newSession("u1")

	stored, err := s.svc.AddPhotos(s.ctx, session.ID, []models.PhotoRecord{{StorageURL: "https://img/1.jpg"}})
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(fixedNow.Format(time.RFC3339Nano), stored[0].UploadedAt)
	s.Equal(session.ID, stored[0].SessionID)
}

func (s *ServiceSuite) TestAddPhotos_UnknownSession() {
	_, err := s.svc.AddPhotos(s.ctx, "missing", []models.PhotoRecord{{StorageURL: "u"}})
	s.ErrorIs(err, db.ErrNotFound)
}

func (s *ServiceSuite) TestTimeline_SeesNewPhotosAfterAdd() {
	session := s.newSession("u1")
	s.addDailyPhotos(session.ID, 3)

	first, err := s.svc.Timeline(s.ctx, session.ID, 0)
	s.Require().NoError(err)
	s.Equal(3, first.SelectionInfo.TotalPhotos)
	s.Equal(models.SelectionMethodAll, first.SelectionInfo.SelectionMethod)

	_, err = s.svc.AddPhotos(s.ctx, session.ID, []models.PhotoRecord{{StorageURL: "u", UploadedAt: "2024-02-01T00:00:00Z"}})
	s.Require().NoError(err)

	second, err := s.svc.Timeline(s.ctx, session.ID, 0)
	s.Require().NoError(err)
	s.Equal(4, second.SelectionInfo.TotalPhotos)
}

func (s *ServiceSuite) TestTimeline_MaxPhotosOverride() {
	session := s.newSession("u1")
	s.addDailyPhotos(session.ID, 12)

	result, err := s.svc.Timeline(s.ctx, session.ID, 8)
	s.Require().NoError(err)
	s.Equal(12, result.SelectionInfo.TotalPhotos)
	s.Equal(8, result.SelectionInfo.PhotosShown)
	s.Equal(models.SelectionMethodScored, result.SelectionInfo.SelectionMethod)

	_, err = s.svc.Timeline(s.ctx, session.ID, 3)
	var cfgErr *photobatch.ConfigurationError
	s.ErrorAs(err, &cfgErr)
}

func (s *ServiceSuite) TestTimeline_UnknownSession() {
	_, err := s.svc.Timeline(s.ctx, "missing", 0)
	s.ErrorIs(err, db.ErrNotFound)
}

func (s *ServiceSuite) TestSelectPhotos_InputShapeError() {
	_, err := s.svc.SelectPhotos(s.ctx, []models.PhotoRecord{{ID: "a", UploadedAt: ""}}, nil, 0)
	var shapeErr *photobatch.InputShapeError
	s.ErrorAs(err, &shapeErr)
}

func (s *ServiceSuite) TestSetSelection() {
	cfg := photobatch.DefaultConfig().WithMaxPhotos(10)
	s.Require().NoError(s.svc.SetSelection(cfg))
	s.Equal(10, s.svc.Selector().Config().MaxPhotos)

	err := s.svc.SetSelection(photobatch.DefaultConfig().WithMaxPhotos(0))
	s.Error(err)
	s.Equal(10, s.svc.Selector().Config().MaxPhotos)
}

// Photo analysis

func (s *ServiceSuite) TestAnalyzePhotos_FirstAnalysis() {
	session := s.newSession("u1")
	stored := s.addDailyPhotos(session.ID, 8)
	s.llm.queue("```json\n" + `{"primary_assessment":"Mild eczema","red_flags":[" ",""],"confidence":140,"trend":"worse"}` + "\n```")

	rec, err := s.svc.AnalyzePhotos(s.ctx, session.ID, AnalyzeRequest{})
	s.Require().NoError(err)

	s.Equal("Mild eczema", rec.AnalysisData.PrimaryAssessment)
	s.Empty(rec.AnalysisData.RedFlags)
	s.Equal(100.0, rec.ConfidenceScore)
	s.Nil(rec.Comparison)
	s.Equal(models.TrendUnknown, rec.TrendOrUnknown())
	s.Equal([]string{stored[0].ID, stored[4].ID, stored[5].ID, stored[6].ID, stored[7].ID}, rec.PhotoIDs)

	req := s.llm.last()
	s.Equal("vision-model", req.Model)
	s.True(req.JSONMode)
	s.Len(req.Messages[1].Images, MaxImagesPerAnalysis)
	s.Contains(req.Messages[0].Content, "first assessment")

	s.Len(s.store.analyses, 1)
}

func (s *ServiceSuite) TestAnalyzePhotos_ComparesWithPrevious() {
	session := s.newSession("u1")
	stored := s.addDailyPhotos(session.ID, 3)
	s.llm.queue(
		map[string]any{"primary_assessment": "Baseline", "confidence": 80},
		map[string]any{
			"primary_assessment": "Spreading",
			"red_flags":          []string{"rapid spread"},
			"trend":              "Worsening",
			"comparison_summary": "Larger than before",
			"confidence":         60,
		},
	)

	_, err := s.svc.AnalyzePhotos(s.ctx, session.ID, AnalyzeRequest{})
	s.Require().NoError(err)
	rec, err := s.svc.AnalyzePhotos(s.ctx, session.ID, AnalyzeRequest{PhotoIDs: []string{stored[2].ID}, Model: "custom"})
	s.Require().NoError(err)

	s.Require().NotNil(rec.Comparison)
	s.Equal(models.TrendWorsening, rec.Comparison.Trend)
	s.Equal("Larger than before", rec.Comparison.Summary)
	s.Equal([]string{"rapid spread"}, rec.AnalysisData.RedFlags)
	s.Equal([]string{stored[2].ID}, rec.PhotoIDs)

	req := s.llm.last()
	s.Equal("custom", req.Model)
	s.Contains(req.Messages[0].Content, "Baseline")

	timeline, err := s.svc.Timeline(s.ctx, session.ID, 0)
	s.Require().NoError(err)
	s.Equal(3, timeline.SelectionInfo.PhotosShown)
}

func (s *ServiceSuite) TestAnalyzePhotos_RejectsForeignAndTooManyPhotos() {
	mine := s.newSession("u1")
	other := s.newSession("u2")
	s.addDailyPhotos(mine.ID, 2)
	theirs := s.addDailyPhotos(other.ID, 2)

	_, err := s.svc.AnalyzePhotos(s.ctx, mine.ID, AnalyzeRequest{PhotoIDs: []string{theirs[0].ID}})
	var verr *ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("photo_ids", verr.Field)

	_, err = s.svc.AnalyzePhotos(s.ctx, mine.ID, AnalyzeRequest{PhotoIDs: []string{"1", "2", "3", "4", "5", "6"}})
	s.Require().ErrorAs(err, &verr)
	s.Zero(s.llm.calls())
}

func (s *ServiceSuite) TestAnalyzePhotos_EmptySession() {
	session := s.newSession("u1")

	_, err := s.svc.AnalyzePhotos(s.ctx, session.ID, AnalyzeRequest{})
	var verr *ValidationError
	s.ErrorAs(err, &verr)
}

func (s *ServiceSuite) TestAnalyzePhotos_UnparseableReply() {
	session := s.newSession("u1")
	s.addDailyPhotos(session.ID, 1)
	s.llm.queue("I cannot assess these photos.")

	_, err := s.svc.AnalyzePhotos(s.ctx, session.ID, AnalyzeRequest{})
	s.ErrorContains(err, "parse model reply")
	s.Empty(s.store.analyses)
}

func TestAnalysisBatch(t *testing.T) {
	photos := make([]models.PhotoRecord, 9)
	for i := range photos {
		photos[i].ID = fmt.Sprint(i)
	}
	assert.Equal(t, []string{"0", "5", "6", "7", "8"}, photoIDs(analysisBatch(photos)))
	assert.Len(t, analysisBatch(photos[:3]), 3)
}

// Deep dive

func (s *ServiceSuite) TestDeepDive_FullInterview() {
	s.llm.queue(
		map[string]any{"question": "Where exactly is the pain?"},
		map[string]any{"question": "How long has it lasted?"},
		map[string]any{"ready": true},
		map[string]any{"primary_assessment": "Patellar tendinopathy", "confidence": 72},
	)

	step, err := s.svc.StartDeepDive(s.ctx, StartDeepDiveRequest{
		UserID:   "u1",
		BodyPart: "knee",
		FormData: models.JSONObject{"severity": 6},
	})
	s.Require().NoError(err)
	s.Equal(models.DeepDiveActive, step.Status)
	s.Equal("Where exactly is the pain?", step.Question)
	s.Equal(1, step.QuestionNumber)
	s.Contains(s.llm.last().Messages[0].Content, "severity: 6")

	step, err = s.svc.AnswerDeepDive(s.ctx, step.SessionID, "Below the kneecap")
	s.Require().NoError(err)
	s.Equal("How long has it lasted?", step.Question)
	s.Equal(2, step.QuestionNumber)

	step, err = s.svc.AnswerDeepDive(s.ctx, step.SessionID, "Two weeks")
	s.Require().NoError(err)
	s.True(step.Ready)
	s.Equal(models.DeepDiveReady, step.Status)
	s.Empty(step.Question)

	_, err = s.svc.AnswerDeepDive(s.ctx, step.SessionID, "more")
	s.ErrorIs(err, ErrInvalidState)

	session, err := s.svc.CompleteDeepDive(s.ctx, step.SessionID, "")
	s.Require().NoError(err)
	s.Equal(models.DeepDiveCompleted, session.Status)
	s.Equal("Patellar tendinopathy", session.FinalAnalysis["primary_assessment"])
	s.Equal(fixedNow.Format(time.RFC3339Nano), session.CompletedAt)
	s.Contains(s.llm.last().Messages[1].Content, "A2: Two weeks")

	calls := s.llm.calls()
	again, err := s.svc.CompleteDeepDive(s.ctx, step.SessionID, "")
	s.Require().NoError(err)
	s.Equal(models.DeepDiveCompleted, again.Status)
	s.Equal(calls, s.llm.calls())
}

func (s *ServiceSuite) TestDeepDive_ConcurrentAnswerIsRejected() {
	s.llm.queue(
		map[string]any{"question": "Where does it hurt?"},
		map[string]any{"question": "Since when?"},
	)
	step, err := s.svc.StartDeepDive(s.ctx, StartDeepDiveRequest{UserID: "u1", BodyPart: "back"})
	s.Require().NoError(err)

	// Another answer lands while the model is thinking.
	s.llm.onCall = func() {
		s.llm.onCall = nil
		other, err := s.store.GetDeepDive(s.ctx, step.SessionID)
		s.Require().NoError(err)
		other.Questions[0].Answer = "Lower back"
		s.Require().NoError(s.store.UpdateDeepDive(s.ctx, other))
	}

	_, err = s.svc.AnswerDeepDive(s.ctx, step.SessionID, "Shoulder")
	s.ErrorIs(err, ErrInvalidState)

	stored, err := s.store.GetDeepDive(s.ctx, step.SessionID)
	s.Require().NoError(err)
	s.Require().Len(stored.Questions, 1)
	s.Equal("Lower back", stored.Questions[0].Answer)
	s.Equal(int64(1), stored.Version)
}

func (s *ServiceSuite) TestDeepDive_ReadyAfterMaxQuestions() {
	for i := 0; i < MaxDeepDiveQuestions; i++ {
		s.llm.queue(map[string]any{"question": fmt.Sprintf("Question %d?", i+1)})
	}

	step, err := s.svc.StartDeepDive(s.ctx, StartDeepDiveRequest{UserID: "u1", BodyPart: "back"})
	s.Require().NoError(err)
	for i := 1; i < MaxDeepDiveQuestions; i++ {
		step, err = s.svc.AnswerDeepDive(s.ctx, step.SessionID, "answer")
		s.Require().NoError(err)
		s.Equal(models.DeepDiveActive, step.Status)
		s.Equal(i+1, step.QuestionNumber)
	}

	calls := s.llm.calls()
	step, err = s.svc.AnswerDeepDive(s.ctx, step.SessionID, "last answer")
	s.Require().NoError(err)
	s.True(step.Ready)
	s.Equal(MaxDeepDiveQuestions, step.QuestionNumber)
	s.Equal(calls, s.llm.calls())
}

func (s *ServiceSuite) TestDeepDive_CompleteNeedsAnAnswer() {
	s.llm.queue(map[string]any{"question": "Where?"})
	step, err := s.svc.StartDeepDive(s.ctx, StartDeepDiveRequest{UserID: "u1", BodyPart: "head"})
	s.Require().NoError(err)

	_, err = s.svc.CompleteDeepDive(s.ctx, step.SessionID, "")
	s.ErrorIs(err, ErrInvalidState)
}

func (s *ServiceSuite) TestDeepDive_StartWithoutQuestion() {
	s.llm.queue(map[string]any{"question": ""})
	_, err := s.svc.StartDeepDive(s.ctx, StartDeepDiveRequest{UserID: "u1", BodyPart: "head"})
	s.ErrorContains(err, "no question")
	s.Empty(s.store.deepDives)
}

func (s *ServiceSuite) TestDeepDive_UnknownSession() {
	_, err := s.svc.AnswerDeepDive(s.ctx, "missing", "yes")
	s.ErrorIs(err, db.ErrNotFound)
}

// Weekly insights

func (s *ServiceSuite) TestWeeklyInsights_QuietWeekSkipsModel() {
	insight, err := s.svc.WeeklyInsights(s.ctx, WeeklyInsightsRequest{UserID: "u1"})
	s.Require().NoError(err)

	s.Equal("2024-03-04", insight.WeekOf)
	s.Equal("A quiet week with nothing logged", insight.Body.Headline)
	s.NotNil(insight.Body.Insights)
	s.Zero(s.llm.calls())
}

func (s *ServiceSuite) TestWeeklyInsights_GeneratesThenServesFromCache() {
	s.llm.queue("reply")
	_, err := s.svc.Chat(s.ctx, ChatRequest{UserID: "u1", Message: "Slept badly again"})
	s.Require().NoError(err)

	s.llm.queue(map[string]any{
		"greeting": "Hi",
		"headline": "Sleep needs attention",
		"insights": []map[string]any{{"type": "concern", "title": "Sleep", "description": "Poor", "confidence": 150}},
	})

	insight, err := s.svc.WeeklyInsights(s.ctx, WeeklyInsightsRequest{UserID: "u1"})
	s.Require().NoError(err)
	s.Equal("Sleep needs attention", insight.Body.Headline)
	s.Equal(100, insight.Body.Insights[0].Confidence)
	s.Equal([]string{}, insight.Body.Strategies)
	s.False(insight.Cached)
	s.Contains(s.llm.last().Messages[1].Content, "Slept badly again")

	calls := s.llm.calls()
	again, err := s.svc.WeeklyInsights(s.ctx, WeeklyInsightsRequest{UserID: "u1", WeekOf: "2024-03-08"})
	s.Require().NoError(err)
	s.True(again.Cached)
	s.Equal(calls, s.llm.calls())

	latest, err := s.svc.LatestWeeklyInsight(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal("2024-03-04", latest.WeekOf)
}

func (s *ServiceSuite) TestWeeklyInsights_DatabaseHitRefillsCache() {
	s.Require().NoError(s.store.SaveWeeklyInsight(s.ctx, &models.WeeklyInsight{
		UserID: "u1", WeekOf: "2024-03-04", Body: models.InsightBody{Headline: "stored"},
	}))

	insight, err := s.svc.WeeklyInsights(s.ctx, WeeklyInsightsRequest{UserID: "u1"})
	s.Require().NoError(err)
	s.Equal("stored", insight.Body.Headline)

	_, ok := s.cache.Get(s.ctx, "u1", "2024-03-04")
	s.True(ok)
}

func (s *ServiceSuite) TestWeeklyInsights_ForceRegenerates() {
	s.Require().NoError(s.store.SaveWeeklyInsight(s.ctx, &models.WeeklyInsight{
		UserID: "u1", WeekOf: "2024-03-04", Body: models.InsightBody{Headline: "stale"},
	}))

	insight, err := s.svc.WeeklyInsights(s.ctx, WeeklyInsightsRequest{UserID: "u1", Force: true})
	s.Require().NoError(err)
	s.Equal("A quiet week with nothing logged", insight.Body.Headline)
}

func (s *ServiceSuite) TestWeeklyInsights_Validation() {
	_, err := s.svc.WeeklyInsights(s.ctx, WeeklyInsightsRequest{UserID: "u1", WeekOf: "March"})
	var verr *ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("week_of", verr.Field)

	_, err = s.svc.LatestWeeklyInsight(s.ctx, "nobody")
	s.ErrorIs(err, db.ErrNotFound)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-04T00:00:00Z", "2024-03-04"},
		{"2024-03-06T10:00:00Z", "2024-03-04"},
		{"2024-03-10T23:59:59Z", "2024-03-04"},
		{"2024-03-11T00:00:00Z", "2024-03-11"},
		{"2024-01-03T08:00:00Z", "2024-01-01"},
		{"2023-12-31T08:00:00Z", "2023-12-25"},
	}
	for _, tt := range tests {
		ts, err := time.Parse(time.RFC3339, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, WeekStart(ts).Format(time.DateOnly), tt.in)
	}
}

func TestNew_RejectsInvalidSelection(t *testing.T) {
	_, err := New(Deps{}, Config{}, photobatch.DefaultConfig().WithMaxPhotos(0))
	require.Error(t, err)
}
