package processors

import (
	"testing"
	"time"

	"formcoach/core"
)

func validAnalysis() Analysis {
	return Analysis{
		Status:       core.StatusCompleted,
		OverallScore: 8.5,
		Issues: []core.FormIssue{{
			IssueType:   "insufficient_depth",
			Severity:    core.SeverityModerate,
			FrameStart:  2,
			FrameEnd:    8,
			CoachingCue: "Lower your hips.",
			Confidence:  0.85,
		}},
		Recommendations: []core.Recommendation{{Text: "Work on depth.", Priority: 2}},
	}
}

func TestAssembleValidResult(t *testing.T) {
	var asm ResultAssembler
	result, err := asm.Assemble("squat", "v1", validAnalysis(), 30, 25, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if result.Exercise != "squat" || result.RulesVersion != "v1" {
		t.Errorf("identity fields = %q/%q", result.Exercise, result.RulesVersion)
	}
	if result.ProcessingTime != 1.5 {
		t.Errorf("processing time = %v, want 1.5", result.ProcessingTime)
	}
	if result.TotalFrames != 30 || result.DetectedFrames != 25 {
		t.Errorf("frame counts = %d/%d, want 30/25", result.TotalFrames, result.DetectedFrames)
	}
}

func TestAssembleRejectsOutOfRangeScore(t *testing.T) {
	analysis := validAnalysis()
	analysis.OverallScore = 10.5

	var asm ResultAssembler
	_, err := asm.Assemble("squat", "v1", analysis, 30, 25, time.Second)
	if !core.IsConsistencyError(err) {
		t.Fatalf("err = %v, want consistency error", err)
	}
}

func TestAssembleRejectsUnroundedScore(t *testing.T) {
	analysis := validAnalysis()
	analysis.OverallScore = 8.55

	var asm ResultAssembler
	_, err := asm.Assemble("squat", "v1", analysis, 30, 25, time.Second)
	if !core.IsConsistencyError(err) {
		t.Fatalf("err = %v, want consistency error", err)
	}
}

func TestAssembleRejectsInvertedFrameRange(t *testing.T) {
	analysis := validAnalysis()
	analysis.Issues[0].FrameStart = 9
	analysis.Issues[0].FrameEnd = 2

	var asm ResultAssembler
	_, err := asm.Assemble("squat", "v1", analysis, 30, 25, time.Second)
	if !core.IsConsistencyError(err) {
		t.Fatalf("err = %v, want consistency error", err)
	}
}

func TestAssembleRejectsFrameRangeBeyondVideo(t *testing.T) {
	analysis := validAnalysis()
	analysis.Issues[0].FrameEnd = 30

	var asm ResultAssembler
	_, err := asm.Assemble("squat", "v1", analysis, 30, 25, time.Second)
	if !core.IsConsistencyError(err) {
		t.Fatalf("err = %v, want consistency error", err)
	}
}

func TestAssembleRejectsDetectedAboveTotal(t *testing.T) {
	var asm ResultAssembler
	_, err := asm.Assemble("squat", "v1", validAnalysis(), 30, 31, time.Second)
	if !core.IsConsistencyError(err) {
		t.Fatalf("err = %v, want consistency error", err)
	}
}

func TestAssembleInconclusiveCarriesNoFindings(t *testing.T) {
	var asm ResultAssembler
	result, err := asm.Assemble("squat", "v1", Analysis{Status: core.StatusInconclusive}, 30, 0, time.Second)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !result.Inconclusive() {
		t.Errorf("status = %q, want inconclusive", result.Status)
	}
	if len(result.Issues) != 0 || result.OverallScore != 0 {
		t.Errorf("inconclusive result carries findings: %+v", result)
	}
}

func TestAssembleInconclusiveWithIssuesRejected(t *testing.T) {
	analysis := validAnalysis()
	analysis.Status = core.StatusInconclusive
	analysis.OverallScore = 0

	var asm ResultAssembler
	_, err := asm.Assemble("squat", "v1", analysis, 30, 0, time.Second)
	if !core.IsConsistencyError(err) {
		t.Fatalf("err = %v, want consistency error", err)
	}
}

func TestAssembleInconclusiveMustBeEmpty(t *testing.T) {
	// An inconclusive run may not smuggle out any finding, not just issues
	// and score.
	cases := map[string]Analysis{
		"metrics": {Status: core.StatusInconclusive, Metrics: []core.MetricReport{{
			MetricName: "left_knee", ActualValue: "150.0 deg", TargetValue: "70-110 deg", Status: core.MetricFail,
		}}},
		"strengths":       {Status: core.StatusInconclusive, Strengths: []string{"Solid hip position."}},
		"recommendations": {Status: core.StatusInconclusive, Recommendations: []core.Recommendation{{Text: "Work on depth.", Priority: 1}}},
	}

	var asm ResultAssembler
	for name, analysis := range cases {
		if _, err := asm.Assemble("squat", "v1", analysis, 30, 0, time.Second); !core.IsConsistencyError(err) {
			t.Errorf("%s: err = %v, want consistency error", name, err)
		}
	}
}
