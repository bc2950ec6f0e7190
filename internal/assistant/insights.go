package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/oracle/internal/db"
	"github.com/thebtf/oracle/internal/llm"
	"github.com/thebtf/oracle/pkg/models"
)

const (
	maxInsightMessages    = 40
	maxInsightMessageRune = 300
)

// WeeklyInsightsRequest asks for the brief of one week. WeekOf is any date
// in the week; it defaults to the current week. Force regenerates a brief
// that already exists.
type WeeklyInsightsRequest struct {
	UserID string `json:"user_id"`
	WeekOf string `json:"week_of,omitempty"`
	Model  string `json:"model,omitempty"`
	Force  bool   `json:"force_refresh,omitempty"`
}

// WeekStart returns the Monday (UTC) of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}

// WeeklyInsights returns the user's brief for a week, generating it when
// neither the cache nor the database has one.
func (s *Service) WeeklyInsights(ctx context.Context, req WeeklyInsightsRequest) (*models.WeeklyInsight, error) {
	if err := required("user_id", req.UserID); err != nil {
		return nil, err
	}

	ref := s.now()
	if req.WeekOf != "" {
		t, err := time.Parse(time.DateOnly, req.WeekOf)
		if err != nil {
			return nil, &ValidationError{Field: "week_of", Reason: "must be a YYYY-MM-DD date"}
		}
		ref = t
	}
	start := WeekStart(ref)
	weekOf := start.Format(time.DateOnly)

	if !req.Force {
		if insight, ok := s.cache.Get(ctx, req.UserID, weekOf); ok {
			return insight, nil
		}
		insight, err := s.insights.GetWeeklyInsight(ctx, req.UserID, weekOf)
		switch {
		case err == nil:
			s.cacheInsight(ctx, insight)
			return insight, nil
		case !errors.Is(err, db.ErrNotFound):
			return nil, err
		}
	}

	messages, analyses, err := s.weekActivity(ctx, req.UserID, start)
	if err != nil {
		return nil, err
	}

	insight := &models.WeeklyInsight{
		UserID:    req.UserID,
		WeekOf:    weekOf,
		CreatedAt: s.timestamp(),
	}
	if len(messages) == 0 && len(analyses) == 0 {
		insight.Body = quietWeek()
	} else {
		prompt := []llm.Message{
			{Role: models.RoleSystem, Content: fmt.Sprintf(weeklyInsightsPrompt, weekOf)},
			{Role: models.RoleUser, Content: activitySummary(messages, analyses)},
		}
		var body models.InsightBody
		resp, err := s.completeJSON(ctx, llm.Request{Model: req.Model, Messages: prompt}, &body)
		if err != nil {
			return nil, fmt.Errorf("generate weekly insights: %w", err)
		}
		insight.Body = normalizeBody(body)
		insight.Model = resp.Model
	}

	if err := s.insights.SaveWeeklyInsight(ctx, insight); err != nil {
		return nil, err
	}
	s.cacheInsight(ctx, insight)

	log.Info().
		Str("user_id", req.UserID).
		Str("week_of", weekOf).
		Int("messages", len(messages)).
		Int("analyses", len(analyses)).
		Msg("Weekly insights generated")
	return insight, nil
}

// LatestWeeklyInsight returns the most recent stored brief of a user.
func (s *Service) LatestWeeklyInsight(ctx context.Context, userID string) (*models.WeeklyInsight, error) {
	if err := required("user_id", userID); err != nil {
		return nil, err
	}
	return s.insights.GetLatestWeeklyInsight(ctx, userID)
}

// weekActivity loads the user's chat messages and analyses of the week
// starting at start.
func (s *Service) weekActivity(ctx context.Context, userID string, start time.Time) ([]models.Message, []models.AnalysisRecord, error) {
	end := start.AddDate(0, 0, 7)

	var (
		messages []models.Message
		analyses []models.AnalysisRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		messages, err = s.chats.GetUserMessagesSince(gctx, userID, start)
		return err
	})
	g.Go(func() error {
		var err error
		analyses, err = s.photos.GetUserAnalysesSince(gctx, userID, start)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("load week activity for %s: %w", userID, err)
	}

	messages = filterMessages(messages, end)
	analyses = filterAnalyses(analyses, end)
	return messages, analyses, nil
}

func (s *Service) cacheInsight(ctx context.Context, insight *models.WeeklyInsight) {
	if err := s.cache.Set(ctx, insight); err != nil {
		log.Warn().Err(err).Str("user_id", insight.UserID).Msg("Failed to cache weekly insight")
	}
}

func before(ts string, end time.Time) bool {
	t, err := time.Parse(time.RFC3339Nano, ts)
	return err != nil || t.Before(end)
}

func filterMessages(messages []models.Message, end time.Time) []models.Message {
	out := messages[:0:0]
	for _, m := range messages {
		if before(m.CreatedAt, end) {
			out = append(out, m)
		}
	}
	if len(out) > maxInsightMessages {
		out = out[len(out)-maxInsightMessages:]
	}
	return out
}

func filterAnalyses(analyses []models.AnalysisRecord, end time.Time) []models.AnalysisRecord {
	out := analyses[:0:0]
	for _, a := range analyses {
		if before(a.CreatedAt, end) {
			out = append(out, a)
		}
	}
	return out
}

func activitySummary(messages []models.Message, analyses []models.AnalysisRecord) string {
	var b strings.Builder
	if len(messages) > 0 {
		b.WriteString("Messages the user wrote:\n")
		for _, m := range messages {
			fmt.Fprintf(&b, "- [%s] %s\n", dateOf(m.CreatedAt), truncateRunes(m.Content, maxInsightMessageRune))
		}
	}
	if len(analyses) > 0 {
		b.WriteString("Photo analyses:\n")
		for _, a := range analyses {
			fmt.Fprintf(&b, "- [%s] %s (trend: %s)", dateOf(a.CreatedAt), a.AnalysisData.PrimaryAssessment, a.TrendOrUnknown())
			if len(a.AnalysisData.RedFlags) > 0 {
				fmt.Fprintf(&b, " red flags: %s", strings.Join(a.AnalysisData.RedFlags, "; "))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func quietWeek() models.InsightBody {
	return normalizeBody(models.InsightBody{
		Greeting: "Hi there",
		Headline: "A quiet week with nothing logged",
	})
}

func normalizeBody(body models.InsightBody) models.InsightBody {
	if body.Insights == nil {
		body.Insights = []models.InsightItem{}
	}
	for i := range body.Insights {
		body.Insights[i].Confidence = min(max(body.Insights[i].Confidence, 0), 100)
	}
	if body.Predictions == nil {
		body.Predictions = []string{}
	}
	if body.ShadowPatterns == nil {
		body.ShadowPatterns = []string{}
	}
	if body.Strategies == nil {
		body.Strategies = []string{}
	}
	return body
}

func dateOf(ts string) string {
	if len(ts) >= len(time.DateOnly) {
		return ts[:len(time.DateOnly)]
	}
	return ts
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
