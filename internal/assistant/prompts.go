package assistant

import (
	"fmt"
	"slices"
	"strings"

	"github.com/thebtf/oracle/pkg/models"
)

const chatSystemPrompt = `You are Oracle, a careful and warm health assistant.
Answer in plain language. You are not a doctor: when symptoms sound urgent
(chest pain, trouble breathing, signs of stroke, heavy bleeding, high fever
with confusion) tell the user to seek emergency care first.
Keep answers short unless the user asks for detail.`

const photoAnalysisPrompt = `You review a series of photos of one skin or visible condition,
ordered oldest to newest. Condition: %s.
%s
Respond with a single JSON object and nothing else:
{
  "primary_assessment": "one or two sentences",
  "visual_observations": ["..."],
  "red_flags": ["signs that need prompt medical attention, empty if none"],
  "recommendations": ["..."],
  "confidence": 0-100,
  "trend": "improving | stable | worsening | unknown",
  "comparison_summary": "how the newest photos differ from the previous assessment"
}`

const deepDiveQuestionPrompt = `You are conducting a focused diagnostic interview about the user's %s.
Initial details from the user: %s
Ask ONE question at a time that best narrows down the cause.
Respond with JSON only: {"question": "...", "ready": false}
Set "ready" to true and leave "question" empty once you have enough
information for a confident assessment.`

const deepDiveFinalPrompt = `You conducted a diagnostic interview about the user's %s.
Initial details: %s
Produce a final assessment as JSON only:
{
  "primary_assessment": "...",
  "confidence": 0-100,
  "key_findings": ["..."],
  "possible_causes": [{"condition": "...", "likelihood": 0-100}],
  "red_flags": ["..."],
  "recommendations": ["..."],
  "urgency": "low | medium | high | emergency"
}`

const weeklyInsightsPrompt = `You write a short weekly health brief for one user covering the week of %s.
Use only the activity below. Be specific and kind; do not invent symptoms.
Respond with JSON only:
{
  "greeting": "...",
  "headline": "...",
  "insights": [{"type": "pattern | improvement | concern", "title": "...", "description": "...", "confidence": 0-100}],
  "predictions": ["..."],
  "shadow_patterns": ["things the user may not have noticed"],
  "strategies": ["..."]
}`

func previousAnalysisContext(prev *models.AnalysisRecord) string {
	if prev == nil {
		return "This is the first assessment of this condition."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Previous assessment (%s): %s", prev.CreatedAt, prev.AnalysisData.PrimaryAssessment)
	if len(prev.AnalysisData.RedFlags) > 0 {
		fmt.Fprintf(&b, "\nPrevious red flags: %s", strings.Join(prev.AnalysisData.RedFlags, "; "))
	}
	return b.String()
}

func formDataSummary(form models.JSONObject) string {
	if len(form) == 0 {
		return "none given"
	}
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, form[k]))
	}
	return strings.Join(parts, "; ")
}
