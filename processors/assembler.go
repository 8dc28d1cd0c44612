package processors

import (
	"math"
	"time"

	"formcoach/core"
)

// ResultAssembler packages an Analysis into the terminal AnalysisResult and
// verifies the output invariants one final time. It performs no computation;
// a violation here is a defect in an upstream stage and is reported as an
// internal consistency error, never silently corrected.
type ResultAssembler struct{}

// Assemble validates and freezes the run's outcome.
func (ResultAssembler) Assemble(
	exercise, rulesVersion string,
	analysis Analysis,
	totalFrames, detectedFrames int,
	elapsed time.Duration,
) (core.AnalysisResult, error) {
	result := core.AnalysisResult{
		Status:          analysis.Status,
		Exercise:        exercise,
		RulesVersion:    rulesVersion,
		OverallScore:    analysis.OverallScore,
		TotalFrames:     totalFrames,
		DetectedFrames:  detectedFrames,
		ProcessingTime:  core.ElapsedSeconds(elapsed),
		Issues:          append([]core.FormIssue(nil), analysis.Issues...),
		Metrics:         append([]core.MetricReport(nil), analysis.Metrics...),
		Strengths:       append([]string(nil), analysis.Strengths...),
		Recommendations: append([]core.Recommendation(nil), analysis.Recommendations...),
	}

	if err := validate(result); err != nil {
		return core.AnalysisResult{}, err
	}
	return result, nil
}

func validate(r core.AnalysisResult) error {
	fail := func(format string, args ...any) error {
		return core.NewConsistencyError(r.Exercise, r.TotalFrames, format, args...)
	}

	switch r.Status {
	case core.StatusCompleted:
		if r.OverallScore < 0 || r.OverallScore > 10 {
			return fail("overall score %v outside [0,10]", r.OverallScore)
		}
		if rounded := math.Round(r.OverallScore*10) / 10; rounded != r.OverallScore {
			return fail("overall score %v not rounded to one decimal", r.OverallScore)
		}
	case core.StatusInconclusive:
		if len(r.Issues) > 0 {
			return fail("inconclusive result carries %d issues", len(r.Issues))
		}
		if r.OverallScore != 0 {
			return fail("inconclusive result carries a score")
		}
		if len(r.Metrics) > 0 {
			return fail("inconclusive result carries %d metric reports", len(r.Metrics))
		}
		if len(r.Strengths) > 0 {
			return fail("inconclusive result carries %d strengths", len(r.Strengths))
		}
		if len(r.Recommendations) > 0 {
			return fail("inconclusive result carries %d recommendations", len(r.Recommendations))
		}
	default:
		return fail("unknown result status %q", r.Status)
	}

	if r.TotalFrames < 0 {
		return fail("negative total frame count %d", r.TotalFrames)
	}
	if r.DetectedFrames < 0 || r.DetectedFrames > r.TotalFrames {
		return fail("detected frame count %d outside [0,%d]", r.DetectedFrames, r.TotalFrames)
	}
	if r.ProcessingTime < 0 {
		return fail("negative processing time %v", r.ProcessingTime)
	}

	for _, issue := range r.Issues {
		if issue.FrameStart > issue.FrameEnd {
			return fail("issue %q has inverted frame range %d..%d",
				issue.IssueType, issue.FrameStart, issue.FrameEnd)
		}
		if issue.FrameStart < 0 || issue.FrameEnd >= r.TotalFrames {
			return fail("issue %q frame range %d..%d outside 0..%d",
				issue.IssueType, issue.FrameStart, issue.FrameEnd, r.TotalFrames-1)
		}
		if issue.Confidence < 0 || issue.Confidence > 1 {
			return fail("issue %q confidence %v outside [0,1]", issue.IssueType, issue.Confidence)
		}
		if _, err := core.ParseSeverity(issue.Severity.String()); err != nil {
			return fail("issue %q has invalid severity", issue.IssueType)
		}
	}

	for _, rec := range r.Recommendations {
		if rec.Priority < 1 {
			return fail("recommendation priority %d below 1", rec.Priority)
		}
	}

	return nil
}
