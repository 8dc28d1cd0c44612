package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formcoach/core"
)

func sampleResult() core.AnalysisResult {
	return core.AnalysisResult{
		Status:         core.StatusCompleted,
		Exercise:       "squat",
		RulesVersion:   "v1",
		OverallScore:   8.5,
		TotalFrames:    30,
		DetectedFrames: 27,
		ProcessingTime: 2.4,
		Issues: []core.FormIssue{{
			IssueType:   "insufficient_depth",
			Severity:    core.SeverityModerate,
			FrameStart:  4,
			FrameEnd:    19,
			CoachingCue: "Lower your hips.",
			Confidence:  0.85,
		}},
		Strengths:       []string{"Your left hip stayed well within the target range."},
		Recommendations: []core.Recommendation{{Text: "Work on depth.", Priority: 2}},
	}
}

func TestMemoryResultStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryResultStore()

	id, err := store.SaveResult(ctx, "session-1", sampleResult(), "Nice squat overall.")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	stored, err := store.GetResult(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, id, stored.ResultID)
	assert.Equal(t, "Nice squat overall.", stored.Summary)
	assert.Equal(t, sampleResult(), stored.Result)
}

func TestMemoryResultStoreUnknownSession(t *testing.T) {
	_, err := NewMemoryResultStore().GetResult(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMemoryResultStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryResultStore()

	assert.Equal(t, SessionPending, store.SessionStatus("session-1"))
	require.NoError(t, store.MarkSession(ctx, "session-1", SessionProcessing))
	assert.Equal(t, SessionProcessing, store.SessionStatus("session-1"))
	require.NoError(t, store.MarkSession(ctx, "session-1", SessionCompleted))
	assert.Equal(t, SessionCompleted, store.SessionStatus("session-1"))
}

func TestMemoryResultStoreLatestWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryResultStore()

	_, err := store.SaveResult(ctx, "session-1", sampleResult(), "first")
	require.NoError(t, err)
	second := sampleResult()
	second.OverallScore = 9.0
	_, err = store.SaveResult(ctx, "session-1", second, "second")
	require.NoError(t, err)

	stored, err := store.GetResult(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 9.0, stored.Result.OverallScore)
	assert.Equal(t, "second", stored.Summary)
}
