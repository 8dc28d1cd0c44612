package processors

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"formcoach/core"
	"formcoach/rules"
)

// Analysis is the form analyzer's output, handed to the result assembler.
type Analysis struct {
	Status          core.ResultStatus
	OverallScore    float64
	Issues          []core.FormIssue
	Metrics         []core.MetricReport
	Strengths       []string
	Recommendations []core.Recommendation
}

// FormAnalyzer evaluates a reduced video against an exercise rule table.
type FormAnalyzer struct {
	BaseScore float64
}

// NewFormAnalyzer starts every video from a perfect base score.
func NewFormAnalyzer() *FormAnalyzer {
	return &FormAnalyzer{BaseScore: 10.0}
}

// Analyze runs every rule against the aggregates, locates firing issues on
// the sampled frames, and derives score, metric reports, strengths and
// recommendations. When every required metric is undetermined the outcome is
// inconclusive: a distinct result class, never a fabricated score.
func (fa *FormAnalyzer) Analyze(rs *rules.RuleSet, red Reduction, totalFrames int) Analysis {
	if fa.inconclusive(rs, red) {
		log.Printf("analysis inconclusive: no determined metric for any required angle of %q", rs.Exercise)
		return Analysis{Status: core.StatusInconclusive}
	}

	issues := fa.evaluateRules(rs, red, totalFrames)
	return Analysis{
		Status:          core.StatusCompleted,
		OverallScore:    fa.score(issues),
		Issues:          issues,
		Metrics:         fa.metricReports(rs, red),
		Strengths:       fa.strengths(rs, red),
		Recommendations: fa.recommendations(rs, issues),
	}
}

// inconclusive is true when not a single required angle has evidence.
func (fa *FormAnalyzer) inconclusive(rs *rules.RuleSet, red Reduction) bool {
	for _, name := range rs.Angles() {
		if m, ok := red.Aggregates[name]; ok && m.Determined() {
			return false
		}
	}
	return true
}

func (fa *FormAnalyzer) evaluateRules(rs *rules.RuleSet, red Reduction, totalFrames int) []core.FormIssue {
	issues := make([]core.FormIssue, 0)
	for _, rule := range rs.Rules {
		m, ok := red.Aggregates[rule.Angle]
		if !ok || !m.Determined() {
			// Insufficient evidence is neither a pass nor a fail.
			continue
		}
		value := rule.Stat.Pick(m)
		if !rule.Op.Violates(value, rule.Threshold) {
			continue
		}
		start, end := fa.issueFrameRange(rule, red, totalFrames)
		issues = append(issues, core.FormIssue{
			IssueType:   rule.IssueType,
			Severity:    rule.Severity,
			FrameStart:  start,
			FrameEnd:    end,
			CoachingCue: rule.Cue(value),
			Confidence:  rule.Confidence,
		})
	}
	return issues
}

// issueFrameRange localizes a firing rule to the sampled frames whose own
// angle value violates the threshold, so the cue points at actual moments.
// When the aggregate fires but no individual sampled frame crosses the
// threshold, the whole sampled span is reported.
func (fa *FormAnalyzer) issueFrameRange(rule rules.Rule, red Reduction, totalFrames int) (int, int) {
	start, end := -1, -1
	for _, fs := range red.Sampled {
		deg, ok := fs.Angles[rule.Angle]
		if !ok || !rule.Op.Violates(deg, rule.Threshold) {
			continue
		}
		if start < 0 {
			start = fs.FrameIndex
		}
		end = fs.FrameIndex
	}
	if start >= 0 {
		return start, end
	}
	if n := len(red.Sampled); n > 0 {
		return red.Sampled[0].FrameIndex, red.Sampled[n-1].FrameIndex
	}
	if totalFrames > 0 {
		return 0, totalFrames - 1
	}
	return 0, 0
}

// score subtracts one severity-weighted penalty per issue from the base,
// clamps into [0,10] and rounds to one decimal (half away from zero).
func (fa *FormAnalyzer) score(issues []core.FormIssue) float64 {
	score := fa.BaseScore
	for _, issue := range issues {
		score -= issue.Severity.Penalty()
	}
	score = math.Max(0, math.Min(10, score))
	return math.Round(score*10) / 10
}

func (fa *FormAnalyzer) metricReports(rs *rules.RuleSet, red Reduction) []core.MetricReport {
	names := make([]string, 0, len(rs.Targets))
	for name := range rs.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	reports := make([]core.MetricReport, 0, len(names))
	for _, name := range names {
		m, ok := red.Aggregates[name]
		if !ok || !m.Determined() {
			// Undetermined metrics carry no actual value to compare.
			continue
		}
		target := rs.Targets[name]
		actual := target.Stat.Pick(m)
		reports = append(reports, core.MetricReport{
			MetricName:  name,
			ActualValue: fmt.Sprintf("%.1f deg", actual),
			TargetValue: target.Target(),
			Status:      metricStatus(actual, target, rs.StrengthMargin),
		})
	}
	return reports
}

func metricStatus(actual float64, target rules.Range, margin float64) core.MetricStatus {
	if !target.Contains(actual) {
		return core.MetricFail
	}
	if nearBoundary(actual, target, margin) {
		return core.MetricBorderline
	}
	return core.MetricPass
}

// nearBoundary checks the margin only against physically meaningful edges:
// 0 and 180 degrees bound the angle domain itself, not the rule table.
func nearBoundary(actual float64, target rules.Range, margin float64) bool {
	if target.Lo > 0 && actual < target.Lo+margin {
		return true
	}
	if target.Hi < 180 && actual > target.Hi-margin {
		return true
	}
	return false
}

// strengths praises tracked angles that sit comfortably inside the
// acceptable range with no rule fired against them. Flagging is per angle:
// a violation on the left side never disqualifies the right.
func (fa *FormAnalyzer) strengths(rs *rules.RuleSet, red Reduction) []string {
	flagged := map[string]bool{}
	for _, rule := range rs.Rules {
		m, ok := red.Aggregates[rule.Angle]
		if !ok || !m.Determined() {
			continue
		}
		if rule.Op.Violates(rule.Stat.Pick(m), rule.Threshold) {
			flagged[rule.Angle] = true
		}
	}

	names := make([]string, 0, len(rs.Targets))
	for name := range rs.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0)
	for _, name := range names {
		if flagged[name] {
			continue
		}
		m, ok := red.Aggregates[name]
		if !ok || !m.Determined() {
			continue
		}
		target := rs.Targets[name]
		actual := target.Stat.Pick(m)
		if !target.Contains(actual) || nearBoundary(actual, target, rs.StrengthMargin) {
			continue
		}
		out = append(out, fmt.Sprintf("Your %s stayed well within the target range (%s) throughout the movement. Keep it up.",
			strings.ReplaceAll(name, "_", " "), target.Target()))
	}
	return out
}

// recommendations collapses the fired issues to one entry per issue type,
// ordered by the worst severity seen for that type. Priority is the 1-based
// rank in that order, not the severity itself: the single most urgent fix is
// always priority 1.
func (fa *FormAnalyzer) recommendations(rs *rules.RuleSet, issues []core.FormIssue) []core.Recommendation {
	worst := map[string]core.Severity{}
	for _, issue := range issues {
		if issue.Severity > worst[issue.IssueType] {
			worst[issue.IssueType] = issue.Severity
		}
	}

	text := map[string]string{}
	for _, rule := range rs.Rules {
		if sev, ok := worst[rule.IssueType]; ok && rule.Severity == sev && text[rule.IssueType] == "" {
			text[rule.IssueType] = rule.Recommendation
		}
	}

	types := make([]string, 0, len(worst))
	for issueType := range worst {
		types = append(types, issueType)
	}
	sort.Slice(types, func(i, j int) bool {
		if worst[types[i]] != worst[types[j]] {
			return worst[types[i]] > worst[types[j]]
		}
		return types[i] < types[j]
	})

	recs := make([]core.Recommendation, 0, len(types))
	for i, issueType := range types {
		recs = append(recs, core.Recommendation{
			Text:     text[issueType],
			Priority: i + 1,
		})
	}
	return recs
}
