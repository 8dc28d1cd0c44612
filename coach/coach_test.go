package coach

import (
	"context"
	"strings"
	"testing"

	"formcoach/config"
	"formcoach/core"
)

func completedResult() core.AnalysisResult {
	return core.AnalysisResult{
		Status:         core.StatusCompleted,
		Exercise:       "squat",
		RulesVersion:   "v1",
		OverallScore:   8.5,
		TotalFrames:    30,
		DetectedFrames: 27,
		Issues: []core.FormIssue{{
			IssueType:   "insufficient_depth",
			Severity:    core.SeverityModerate,
			CoachingCue: "Lower your hips until your thighs are parallel to the floor.",
			Confidence:  0.85,
		}},
		Recommendations: []core.Recommendation{
			{Text: "Stretch your ankles.", Priority: 2},
			{Text: "Reduce the load.", Priority: 1},
		},
	}
}

func TestTemplateSummaryCompleted(t *testing.T) {
	summary, err := (TemplateCueWriter{}).Summarize(context.Background(), completedResult())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.Contains(summary, "8.5/10") {
		t.Errorf("summary does not state the score: %q", summary)
	}
	if !strings.Contains(summary, "Lower your hips") {
		t.Errorf("summary does not surface the top issue cue: %q", summary)
	}
	if !strings.Contains(summary, "Reduce the load.") {
		t.Errorf("summary does not surface the priority-1 recommendation: %q", summary)
	}
}

func TestTemplateSummaryCleanRun(t *testing.T) {
	result := completedResult()
	result.Issues = nil
	result.Recommendations = nil
	result.OverallScore = 10.0

	summary, err := (TemplateCueWriter{}).Summarize(context.Background(), result)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.Contains(summary, "No form issues detected") {
		t.Errorf("clean run summary: %q", summary)
	}
}

func TestTemplateSummaryInconclusive(t *testing.T) {
	result := core.AnalysisResult{
		Status:      core.StatusInconclusive,
		Exercise:    "squat",
		TotalFrames: 30,
	}
	summary, err := (TemplateCueWriter{}).Summarize(context.Background(), result)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.Contains(summary, "could not reliably detect") {
		t.Errorf("inconclusive summary: %q", summary)
	}
	if strings.Contains(summary, "/10") {
		t.Errorf("inconclusive summary mentions a score: %q", summary)
	}
}

func TestNewCueWriterWithoutAPIFallsBack(t *testing.T) {
	cfg := &config.Config{}
	if _, ok := NewCueWriter(cfg).(*TemplateCueWriter); !ok {
		t.Error("expected template writer without API credentials")
	}
}

func TestNewCueWriterWithAPI(t *testing.T) {
	cfg := &config.Config{APIKey: "sk-test", BaseURL: "https://api.openai.com/v1", ChatModel: "gpt-4o-mini"}
	if _, ok := NewCueWriter(cfg).(*LLMCueWriter); !ok {
		t.Error("expected LLM writer with API credentials")
	}
}

func TestBuildPromptOrdersRecommendations(t *testing.T) {
	prompt := buildPrompt(completedResult())
	first := strings.Index(prompt, "Reduce the load.")
	second := strings.Index(prompt, "Stretch your ankles.")
	if first < 0 || second < 0 || first > second {
		t.Errorf("prompt does not order recommendations by priority:\n%s", prompt)
	}
}
