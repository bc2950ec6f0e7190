package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/internal/llm"
	"github.com/thebtf/oracle/pkg/models"
)

// StartDeepDiveRequest opens a diagnostic interview.
type StartDeepDiveRequest struct {
	FormData models.JSONObject `json:"form_data,omitempty"`
	UserID   string            `json:"user_id"`
	BodyPart string            `json:"body_part"`
	Model    string            `json:"model,omitempty"`
}

// DeepDiveStep is the interview state after starting or answering.
type DeepDiveStep struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	Question       string `json:"question,omitempty"`
	QuestionNumber int    `json:"question_number"`
	Ready          bool   `json:"ready_for_analysis"`
}

type questionReply struct {
	Question string `json:"question"`
	Ready    bool   `json:"ready"`
}

// StartDeepDive asks the model for the first question and stores a new
// active session.
func (s *Service) StartDeepDive(ctx context.Context, req StartDeepDiveRequest) (*DeepDiveStep, error) {
	if err := required("user_id", req.UserID); err != nil {
		return nil, err
	}
	if err := required("body_part", req.BodyPart); err != nil {
		return nil, err
	}

	session := &models.DeepDiveSession{
		UserID:    req.UserID,
		BodyPart:  strings.TrimSpace(req.BodyPart),
		FormData:  req.FormData,
		Status:    models.DeepDiveActive,
		CreatedAt: s.timestamp(),
	}

	var reply questionReply
	if _, err := s.completeJSON(ctx, llm.Request{Model: req.Model, Messages: interviewMessages(session)}, &reply); err != nil {
		return nil, fmt.Errorf("ask first question: %w", err)
	}
	if strings.TrimSpace(reply.Question) == "" {
		return nil, fmt.Errorf("ask first question: model returned no question")
	}
	session.Questions = models.DeepDiveQAList{{Question: strings.TrimSpace(reply.Question)}}

	if err := s.deepDives.CreateDeepDive(ctx, session); err != nil {
		return nil, err
	}
	log.Info().Str("deep_dive_id", session.ID).Str("body_part", session.BodyPart).Msg("Deep dive started")
	return stepOf(session), nil
}

// AnswerDeepDive records the answer to the pending question and either asks
// the next one or marks the session ready for its final analysis. A session
// becomes ready after MaxDeepDiveQuestions answers or when the model says it
// has enough information.
func (s *Service) AnswerDeepDive(ctx context.Context, id, answer string) (*DeepDiveStep, error) {
	if err := required("answer", answer); err != nil {
		return nil, err
	}

	session, err := s.deepDives.GetDeepDive(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.DeepDiveActive {
		return nil, fmt.Errorf("answer deep dive %s in status %s: %w", id, session.Status, ErrInvalidState)
	}
	pending := session.Questions.Pending()
	if pending < 0 {
		return nil, fmt.Errorf("answer deep dive %s: no pending question: %w", id, ErrInvalidState)
	}

	questions := append(models.DeepDiveQAList(nil), session.Questions...)
	questions[pending].Answer = strings.TrimSpace(answer)
	session.Questions = questions

	if len(session.Questions) >= MaxDeepDiveQuestions {
		session.Status = models.DeepDiveReady
	} else {
		var reply questionReply
		if _, err := s.completeJSON(ctx, llm.Request{Messages: interviewMessages(session)}, &reply); err != nil {
			return nil, fmt.Errorf("ask next question: %w", err)
		}
		next := strings.TrimSpace(reply.Question)
		if reply.Ready || next == "" {
			session.Status = models.DeepDiveReady
		} else {
			session.Questions = append(session.Questions, models.DeepDiveQA{Question: next})
		}
	}

	if err := s.saveDeepDive(ctx, session); err != nil {
		return nil, err
	}
	return stepOf(session), nil
}

// CompleteDeepDive asks for the final analysis of the answered questions and
// stores it. Completing an already completed session returns it unchanged.
func (s *Service) CompleteDeepDive(ctx context.Context, id string, model string) (*models.DeepDiveSession, error) {
	session, err := s.deepDives.GetDeepDive(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == models.DeepDiveCompleted {
		return session, nil
	}
	if answered(session.Questions) == 0 {
		return nil, fmt.Errorf("complete deep dive %s: no answered questions: %w", id, ErrInvalidState)
	}

	messages := []llm.Message{
		{Role: models.RoleSystem, Content: fmt.Sprintf(deepDiveFinalPrompt, session.BodyPart, formDataSummary(session.FormData))},
		{Role: models.RoleUser, Content: transcript(session.Questions)},
	}
	var final models.JSONObject
	if _, err := s.completeJSON(ctx, llm.Request{Model: model, Messages: messages}, &final); err != nil {
		return nil, fmt.Errorf("generate final analysis: %w", err)
	}

	session.FinalAnalysis = final
	session.Status = models.DeepDiveCompleted
	session.CompletedAt = s.timestamp()
	if err := s.saveDeepDive(ctx, session); err != nil {
		return nil, err
	}

	log.Info().Str("deep_dive_id", id).Int("questions", len(session.Questions)).Msg("Deep dive completed")
	return session, nil
}

// saveDeepDive stores session. A write racing another answer or completion
// of the same session fails with ErrInvalidState.
func (s *Service) saveDeepDive(ctx context.Context, session *models.DeepDiveSession) error {
	err := s.deepDives.UpdateDeepDive(ctx, session)
	if errors.Is(err, db.ErrConflict) {
		return fmt.Errorf("deep dive %s changed while answering: %w", session.ID, ErrInvalidState)
	}
	return err
}

// interviewMessages replays the interview so far as a chat transcript.
func interviewMessages(session *models.DeepDiveSession) []llm.Message {
	messages := []llm.Message{{
		Role:    models.RoleSystem,
		Content: fmt.Sprintf(deepDiveQuestionPrompt, session.BodyPart, formDataSummary(session.FormData)),
	}}
	for _, qa := range session.Questions {
		messages = append(messages, llm.Message{Role: models.RoleAssistant, Content: qa.Question})
		if qa.Answer != "" {
			messages = append(messages, llm.Message{Role: models.RoleUser, Content: qa.Answer})
		}
	}
	if len(session.Questions) == 0 {
		messages = append(messages, llm.Message{Role: models.RoleUser, Content: "Please ask your first question."})
	}
	return messages
}

func transcript(questions models.DeepDiveQAList) string {
	var b strings.Builder
	for i, qa := range questions {
		if qa.Answer == "" {
			continue
		}
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, qa.Question, i+1, qa.Answer)
	}
	return b.String()
}

func answered(questions models.DeepDiveQAList) int {
	n := 0
	for _, qa := range questions {
		if qa.Answer != "" {
			n++
		}
	}
	return n
}

func stepOf(session *models.DeepDiveSession) *DeepDiveStep {
	step := &DeepDiveStep{
		SessionID:      session.ID,
		Status:         session.Status,
		QuestionNumber: len(session.Questions),
		Ready:          session.Status == models.DeepDiveReady,
	}
	if i := session.Questions.Pending(); i >= 0 && session.Status == models.DeepDiveActive {
		step.Question = session.Questions[i].Question
		step.QuestionNumber = i + 1
	}
	return step
}
