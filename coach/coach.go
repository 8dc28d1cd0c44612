// Package coach phrases an analysis result as natural coaching text. It sits
// strictly downstream of the deterministic pipeline: nothing here feeds back
// into scores or issues.
package coach

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"formcoach/config"
	"formcoach/core"
)

// CueWriter turns an AnalysisResult into a short coaching summary.
type CueWriter interface {
	Summarize(ctx context.Context, result core.AnalysisResult) (string, error)
}

// NewCueWriter picks the LLM writer when API credentials are configured and
// falls back to the deterministic template writer otherwise.
func NewCueWriter(cfg *config.Config) CueWriter {
	if cfg != nil && cfg.HasValidAPI() {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		return &LLMCueWriter{
			cli:   openai.NewClientWithConfig(clientConfig),
			model: cfg.ChatModel,
		}
	}
	log.Printf("no API configuration, using template coach")
	return &TemplateCueWriter{}
}

// LLMCueWriter phrases the summary with a chat model.
type LLMCueWriter struct {
	cli   *openai.Client
	model string
}

func (w *LLMCueWriter) Summarize(ctx context.Context, result core.AnalysisResult) (string, error) {
	if result.Inconclusive() {
		// Nothing to phrase; keep the deterministic wording.
		return (&TemplateCueWriter{}).Summarize(ctx, result)
	}

	prompt := buildPrompt(result)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := w.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a strength coach. Rephrase the analysis below as 3-4 encouraging sentences. " +
					"Never change the score, the detected issues, or their order of importance.",
			},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   300,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("coach completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("coach completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(result core.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exercise: %s\nScore: %.1f/10\n", result.Exercise, result.OverallScore)
	for _, issue := range result.Issues {
		fmt.Fprintf(&b, "Issue (%s): %s\n", issue.Severity, issue.CoachingCue)
	}
	for _, s := range result.Strengths {
		fmt.Fprintf(&b, "Strength: %s\n", s)
	}
	recs := append([]core.Recommendation(nil), result.Recommendations...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority < recs[j].Priority })
	for _, rec := range recs {
		fmt.Fprintf(&b, "Recommendation (priority %d): %s\n", rec.Priority, rec.Text)
	}
	return b.String()
}

// TemplateCueWriter assembles the summary from fixed templates. Deterministic
// and offline; used when no LLM is configured and for inconclusive runs.
type TemplateCueWriter struct{}

func (TemplateCueWriter) Summarize(_ context.Context, result core.AnalysisResult) (string, error) {
	if result.Inconclusive() {
		return fmt.Sprintf("We could not reliably detect a pose in your %s video (%d of %d frames had a usable pose). "+
			"Try recording with your full body visible and better lighting.",
			result.Exercise, result.DetectedFrames, result.TotalFrames), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your %s scored %.1f/10 across %d analyzed frames.",
		result.Exercise, result.OverallScore, result.TotalFrames)
	if len(result.Issues) == 0 {
		b.WriteString(" No form issues detected, keep up the excellent technique.")
	} else {
		fmt.Fprintf(&b, " Main point to work on: %s", result.Issues[0].CoachingCue)
	}
	for _, rec := range result.Recommendations {
		if rec.Priority == 1 {
			fmt.Fprintf(&b, " First priority: %s", rec.Text)
			break
		}
	}
	return b.String(), nil
}
