package processors

import (
	"context"
	"fmt"
	"testing"

	"formcoach/core"
	"formcoach/rules"
)

// standingPose is a fully upright body: every tracked joint at 180 degrees.
func standingPose() core.LandmarkSet {
	set := core.LandmarkSet{Detected: true}
	for i := range set.Landmarks {
		set.Landmarks[i] = core.Landmark{X: 0.1, Y: 0.1, Confidence: 0.9}
	}
	column := func(x float64, shoulder, hip, knee, ankle int) {
		set.Landmarks[shoulder] = core.Landmark{X: x, Y: 0.20, Confidence: 0.9}
		set.Landmarks[hip] = core.Landmark{X: x, Y: 0.45, Confidence: 0.9}
		set.Landmarks[knee] = core.Landmark{X: x, Y: 0.70, Confidence: 0.9}
		set.Landmarks[ankle] = core.Landmark{X: x, Y: 0.95, Confidence: 0.9}
	}
	column(0.45, core.LandmarkLeftShoulder, core.LandmarkLeftHip, core.LandmarkLeftKnee, core.LandmarkLeftAnkle)
	column(0.55, core.LandmarkRightShoulder, core.LandmarkRightHip, core.LandmarkRightKnee, core.LandmarkRightAnkle)
	return set
}

func testFrames(n int) []core.Frame {
	frames := make([]core.Frame, n)
	for i := range frames {
		frames[i] = core.Frame{Index: i, TimestampSec: float64(i) / 3.0}
	}
	return frames
}

func standingDetector(n int) *StaticDetector {
	sets := map[int]core.LandmarkSet{}
	for i := 0; i < n; i++ {
		sets[i] = standingPose()
	}
	return &StaticDetector{Sets: sets}
}

func TestPipelineStandingSquat(t *testing.T) {
	p := NewPipeline(standingDetector(10), rules.NewRegistry(), DefaultPipelineConfig())
	result, err := p.Analyze(context.Background(), testFrames(10), "squat")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if result.Status != core.StatusCompleted {
		t.Fatalf("status = %q, want completed", result.Status)
	}
	if result.TotalFrames != 10 || result.DetectedFrames != 10 {
		t.Errorf("frame counts = %d/%d, want 10/10", result.TotalFrames, result.DetectedFrames)
	}
	// Standing still never reaches depth: one insufficient_depth per knee.
	if len(result.Issues) != 2 {
		t.Fatalf("got %d issues, want 2: %+v", len(result.Issues), result.Issues)
	}
	for _, issue := range result.Issues {
		if issue.IssueType != "insufficient_depth" {
			t.Errorf("issue type = %q, want insufficient_depth", issue.IssueType)
		}
	}
	if result.OverallScore != 7.0 {
		t.Errorf("score = %v, want 7.0 after two moderate penalties", result.OverallScore)
	}
}

func TestPipelineDeterministic(t *testing.T) {
	p := NewPipeline(standingDetector(25), rules.NewRegistry(), DefaultPipelineConfig())

	first, err := p.Analyze(context.Background(), testFrames(25), "squat")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	second, err := p.Analyze(context.Background(), testFrames(25), "squat")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if first.OverallScore != second.OverallScore {
		t.Errorf("scores differ: %v vs %v", first.OverallScore, second.OverallScore)
	}
	if len(first.Issues) != len(second.Issues) {
		t.Errorf("issue counts differ: %d vs %d", len(first.Issues), len(second.Issues))
	}
}

func TestPipelineUnknownExercise(t *testing.T) {
	p := NewPipeline(standingDetector(3), rules.NewRegistry(), DefaultPipelineConfig())
	_, err := p.Analyze(context.Background(), testFrames(3), "underwater_basket_weaving")
	if !core.IsInputError(err) {
		t.Fatalf("err = %v, want input error", err)
	}
}

func TestPipelineGenericFallback(t *testing.T) {
	config := DefaultPipelineConfig()
	config.AllowGenericRules = true
	p := NewPipeline(standingDetector(5), rules.NewRegistry(), config)

	result, err := p.Analyze(context.Background(), testFrames(5), "underwater_basket_weaving")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.Exercise != rules.GenericExercise {
		t.Errorf("exercise = %q, want %q", result.Exercise, rules.GenericExercise)
	}
	// A statue is perfectly symmetric and stable but never moves: only the
	// range-of-motion checks fire (both tiers, 0.5 + 1.5).
	for _, issue := range result.Issues {
		if issue.IssueType != "limited_range_of_motion" {
			t.Errorf("issue type = %q, want limited_range_of_motion", issue.IssueType)
		}
	}
	if len(result.Issues) != 2 {
		t.Errorf("got %d issues, want 2: %+v", len(result.Issues), result.Issues)
	}
	if result.OverallScore != 8.0 {
		t.Errorf("score = %v, want 8.0", result.OverallScore)
	}
}

func TestPipelineEmptyFrames(t *testing.T) {
	p := NewPipeline(standingDetector(0), rules.NewRegistry(), DefaultPipelineConfig())
	_, err := p.Analyze(context.Background(), nil, "squat")
	if !core.IsInputError(err) {
		t.Fatalf("err = %v, want input error", err)
	}
}

func TestPipelineNoDetectionIsInconclusive(t *testing.T) {
	p := NewPipeline(&StaticDetector{}, rules.NewRegistry(), DefaultPipelineConfig())
	result, err := p.Analyze(context.Background(), testFrames(8), "squat")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !result.Inconclusive() {
		t.Fatalf("status = %q, want inconclusive", result.Status)
	}
	if result.DetectedFrames != 0 || result.TotalFrames != 8 {
		t.Errorf("frame counts = %d/%d, want 0/8", result.DetectedFrames, result.TotalFrames)
	}
	if len(result.Issues) != 0 {
		t.Errorf("inconclusive result carries issues: %+v", result.Issues)
	}
}

// failingDetector errors on every odd frame; those frames must become gaps,
// not abort the run.
type failingDetector struct{ pose core.LandmarkSet }

func (d *failingDetector) Detect(_ context.Context, frame core.Frame) (core.LandmarkSet, error) {
	if frame.Index%2 == 1 {
		return core.NoDetection(), fmt.Errorf("detector crashed on frame %d", frame.Index)
	}
	return d.pose, nil
}

func TestPipelineDetectorErrorsAreGaps(t *testing.T) {
	p := NewPipeline(&failingDetector{pose: standingPose()}, rules.NewRegistry(), DefaultPipelineConfig())
	result, err := p.Analyze(context.Background(), testFrames(10), "squat")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.Status != core.StatusCompleted {
		t.Fatalf("status = %q, want completed despite per-frame failures", result.Status)
	}
	if result.DetectedFrames != 5 {
		t.Errorf("detected frames = %d, want 5 (even frames only)", result.DetectedFrames)
	}
}

func TestPipelineCancelledContextFinalizes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline(standingDetector(100), rules.NewRegistry(), DefaultPipelineConfig())
	result, err := p.Analyze(ctx, testFrames(100), "squat")
	if err != nil {
		t.Fatalf("analyze after cancel: %v", err)
	}
	// Nothing was dispatched, so there is no evidence to score.
	if !result.Inconclusive() {
		t.Errorf("status = %q, want inconclusive for a run cancelled before dispatch", result.Status)
	}
	if result.TotalFrames != 100 {
		t.Errorf("total frames = %d, want 100", result.TotalFrames)
	}
}
