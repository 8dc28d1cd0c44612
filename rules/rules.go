// Package rules holds the versioned, per-exercise rule tables the form
// analyzer evaluates. Thresholds follow the biomechanics standards the
// service was tuned with; all magic numbers live here, not in the analyzer.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"formcoach/core"
)

// Operator compares an observed angle statistic against a rule threshold.
type Operator string

const (
	OpGreater Operator = ">"
	OpLess    Operator = "<"
)

// Violates reports whether value breaks the threshold under the operator.
func (op Operator) Violates(value, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	}
	return false
}

// Stat selects which aggregate statistic a rule evaluates.
type Stat string

const (
	StatMean Stat = "mean"
	StatMin  Stat = "min"
	StatMax  Stat = "max"
)

// Pick extracts the selected statistic from an aggregate metric.
func (s Stat) Pick(m core.AggregateMetric) float64 {
	switch s {
	case StatMin:
		return m.Min
	case StatMax:
		return m.Max
	default:
		return m.Mean
	}
}

// Rule is one form check: if Stat(angle) violates Threshold under Op, the
// analyzer emits a FormIssue of IssueType at Severity. CueTemplate takes the
// observed value and the threshold, in that order. Recommendation is the
// improvement text attached to the issue type.
type Rule struct {
	Angle          string        `json:"angle"`
	Stat           Stat          `json:"stat"`
	Op             Operator      `json:"operator"`
	Threshold      float64       `json:"threshold"`
	IssueType      string        `json:"issue_type"`
	Severity       core.Severity `json:"severity"`
	CueTemplate    string        `json:"cue_template"`
	Confidence     float64       `json:"confidence"`
	Recommendation string        `json:"recommendation"`
}

// Cue renders the coaching cue for an observed value.
func (r Rule) Cue(actual float64) string {
	return fmt.Sprintf(r.CueTemplate, actual, r.Threshold)
}

// Range is the acceptable band for an angle's tracked statistic, used for
// actual-vs-target metric reports and strength detection.
type Range struct {
	Lo   float64 `json:"lo"`
	Hi   float64 `json:"hi"`
	Stat Stat    `json:"stat"`
}

// Contains reports whether v lies within the band.
func (rg Range) Contains(v float64) bool { return v >= rg.Lo && v <= rg.Hi }

// Target renders the band for the persistence boundary.
func (rg Range) Target() string {
	return fmt.Sprintf("%.0f-%.0f deg", rg.Lo, rg.Hi)
}

// RuleSet is the named, versioned rule table for one exercise.
type RuleSet struct {
	Exercise string           `json:"exercise"`
	Version  string           `json:"version"`
	Rules    []Rule           `json:"rules"`
	Targets  map[string]Range `json:"targets"`
	// StrengthMargin is how far (degrees) a mean must sit inside every
	// threshold for the angle to count as a strength rather than borderline.
	StrengthMargin float64 `json:"strength_margin"`
}

// Angles returns the sorted set of angle names the rule set tracks. An
// exercise's required angles are exactly these.
func (rs *RuleSet) Angles() []string {
	seen := map[string]struct{}{}
	for _, r := range rs.Rules {
		seen[r.Angle] = struct{}{}
	}
	for name := range rs.Targets {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownExerciseError signals a configuration problem: the caller named an
// exercise with no registered rule set and the generic fallback was not
// selected.
type UnknownExerciseError struct {
	Exercise string
}

func (e *UnknownExerciseError) Error() string {
	return fmt.Sprintf("no rule set registered for exercise %q", e.Exercise)
}

// Registry maps exercise names to rule sets.
type Registry struct {
	sets map[string]*RuleSet
}

// NewRegistry returns a registry with the built-in exercise tables.
func NewRegistry() *Registry {
	reg := &Registry{sets: map[string]*RuleSet{}}
	reg.Register(squatRules())
	reg.Register(genericRules())
	return reg
}

// Register adds or replaces a rule set, keyed by lowercased exercise name.
func (reg *Registry) Register(rs *RuleSet) {
	reg.sets[strings.ToLower(rs.Exercise)] = rs
}

// Resolve finds the rule set for an exercise name. Unknown names are a
// configuration error unless allowGeneric is set, in which case the
// documented generic table is returned instead.
func (reg *Registry) Resolve(exercise string, allowGeneric bool) (*RuleSet, error) {
	key := strings.ToLower(strings.TrimSpace(exercise))
	if key == "" {
		return nil, &UnknownExerciseError{Exercise: exercise}
	}
	if rs, ok := reg.sets[key]; ok {
		return rs, nil
	}
	if allowGeneric {
		return reg.sets[GenericExercise], nil
	}
	return nil, &UnknownExerciseError{Exercise: exercise}
}

// Exercises lists the registered exercise names, sorted.
func (reg *Registry) Exercises() []string {
	names := make([]string, 0, len(reg.sets))
	for name := range reg.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenericExercise names the documented fallback rule set.
const GenericExercise = "generic"

func squatRules() *RuleSet {
	return &RuleSet{
		Exercise:       "squat",
		Version:        "v1",
		StrengthMargin: 5.0,
		Rules: []Rule{
			{
				Angle: "left_knee", Stat: StatMin, Op: OpGreater, Threshold: 110,
				IssueType: "insufficient_depth", Severity: core.SeverityModerate, Confidence: 0.85,
				CueTemplate:    "Lower your hips until your thighs are parallel to the floor. Your deepest left knee angle was %.0f deg (target below %.0f deg). Push the hips back and down, not just the knees forward.",
				Recommendation: "Work on hip mobility and ankle flexibility to improve squat depth. Goblet squats are a good way to groove the pattern.",
			},
			{
				Angle: "right_knee", Stat: StatMin, Op: OpGreater, Threshold: 110,
				IssueType: "insufficient_depth", Severity: core.SeverityModerate, Confidence: 0.85,
				CueTemplate:    "Lower your hips until your thighs are parallel to the floor. Your deepest right knee angle was %.0f deg (target below %.0f deg). Push the hips back and down, not just the knees forward.",
				Recommendation: "Work on hip mobility and ankle flexibility to improve squat depth. Goblet squats are a good way to groove the pattern.",
			},
			{
				Angle: "left_knee", Stat: StatMin, Op: OpLess, Threshold: 70,
				IssueType: "excessive_depth", Severity: core.SeverityMinor, Confidence: 0.70,
				CueTemplate:    "You are dropping below a safe depth: left knee reached %.0f deg (keep it above %.0f deg). Control the bottom of the movement to protect the knee joint.",
				Recommendation: "Squat to a box or bench set at parallel height to learn a consistent, safe depth.",
			},
			{
				Angle: "right_knee", Stat: StatMin, Op: OpLess, Threshold: 70,
				IssueType: "excessive_depth", Severity: core.SeverityMinor, Confidence: 0.70,
				CueTemplate:    "You are dropping below a safe depth: right knee reached %.0f deg (keep it above %.0f deg). Control the bottom of the movement to protect the knee joint.",
				Recommendation: "Squat to a box or bench set at parallel height to learn a consistent, safe depth.",
			},
			{
				Angle: "knee_asymmetry", Stat: StatMean, Op: OpGreater, Threshold: 15,
				IssueType: "knee_asymmetry", Severity: core.SeverityModerate, Confidence: 0.75,
				CueTemplate:    "Keep both knees aligned: they differ by %.0f deg on average (keep it under %.0f deg). Push the knees outward to track over the toes and engage the glutes.",
				Recommendation: "Address the left-right imbalance with unilateral exercises such as split squats and single-leg presses, and add mobility work for the weaker side.",
			},
			{
				Angle: "knee_asymmetry", Stat: StatMean, Op: OpGreater, Threshold: 25,
				IssueType: "knee_asymmetry", Severity: core.SeveritySevere, Confidence: 0.75,
				CueTemplate:    "One knee is caving hard: your knees differ by %.0f deg on average (keep it under %.0f deg). Reduce the load and rebuild the pattern with both knees tracking over the toes.",
				Recommendation: "Address the left-right imbalance with unilateral exercises such as split squats and single-leg presses, and add mobility work for the weaker side.",
			},
			{
				Angle: "left_hip", Stat: StatMean, Op: OpLess, Threshold: 145,
				IssueType: "forward_lean", Severity: core.SeverityModerate, Confidence: 0.70,
				CueTemplate:    "Maintain a more upright torso. Your average left hip angle was %.0f deg (target above %.0f deg). Keep the chest up and the core braced.",
				Recommendation: "Strengthen the upper back and brace the core before each rep; front-loaded variations like goblet squats encourage an upright torso.",
			},
			{
				Angle: "right_hip", Stat: StatMean, Op: OpLess, Threshold: 145,
				IssueType: "forward_lean", Severity: core.SeverityModerate, Confidence: 0.70,
				CueTemplate:    "Maintain a more upright torso. Your average right hip angle was %.0f deg (target above %.0f deg). Keep the chest up and the core braced.",
				Recommendation: "Strengthen the upper back and brace the core before each rep; front-loaded variations like goblet squats encourage an upright torso.",
			},
			{
				Angle: "left_hip", Stat: StatMean, Op: OpLess, Threshold: 135,
				IssueType: "forward_lean", Severity: core.SeveritySevere, Confidence: 0.70,
				CueTemplate:    "Your torso is collapsing forward: average left hip angle %.0f deg is well under the %.0f deg limit. Reduce the load and rebuild the pattern with an upright chest.",
				Recommendation: "Strengthen the upper back and brace the core before each rep; front-loaded variations like goblet squats encourage an upright torso.",
			},
			{
				Angle: "right_hip", Stat: StatMean, Op: OpLess, Threshold: 135,
				IssueType: "forward_lean", Severity: core.SeveritySevere, Confidence: 0.70,
				CueTemplate:    "Your torso is collapsing forward: average right hip angle %.0f deg is well under the %.0f deg limit. Reduce the load and rebuild the pattern with an upright chest.",
				Recommendation: "Strengthen the upper back and brace the core before each rep; front-loaded variations like goblet squats encourage an upright torso.",
			},
		},
		Targets: map[string]Range{
			"left_knee":      {Lo: 70, Hi: 110, Stat: StatMin},
			"right_knee":     {Lo: 70, Hi: 110, Stat: StatMin},
			"left_hip":       {Lo: 145, Hi: 180, Stat: StatMean},
			"right_hip":      {Lo: 145, Hi: 180, Stat: StatMean},
			"knee_asymmetry": {Lo: 0, Hi: 15, Stat: StatMean},
		},
	}
}

// genericRules is the documented fallback for exercises without a dedicated
// table: the universal checks that hold for any bilateral movement, namely
// left-right symmetry, range of motion and core stability.
func genericRules() *RuleSet {
	return &RuleSet{
		Exercise:       GenericExercise,
		Version:        "v1",
		StrengthMargin: 5.0,
		Rules: []Rule{
			{
				Angle: "knee_asymmetry", Stat: StatMean, Op: OpGreater, Threshold: 15,
				IssueType: "asymmetric_movement", Severity: core.SeverityModerate, Confidence: 0.80,
				CueTemplate:    "Your left and right knees show %.0f deg average difference (keep it under %.0f deg). Asymmetry builds muscle imbalances over time; focus on moving both sides equally.",
				Recommendation: "Address the left-right imbalance with unilateral exercises (single-arm or single-leg variations) and strengthen the weaker side.",
			},
			{
				Angle: "knee_asymmetry", Stat: StatMean, Op: OpGreater, Threshold: 25,
				IssueType: "asymmetric_movement", Severity: core.SeveritySevere, Confidence: 0.80,
				CueTemplate:    "Your left and right knees show %.0f deg average difference (keep it under %.0f deg). Reduce the weight until you can move both sides symmetrically.",
				Recommendation: "Address the left-right imbalance with unilateral exercises (single-arm or single-leg variations) and strengthen the weaker side.",
			},
			{
				Angle: "hip_asymmetry", Stat: StatMean, Op: OpGreater, Threshold: 15,
				IssueType: "asymmetric_movement", Severity: core.SeverityModerate, Confidence: 0.80,
				CueTemplate:    "Your left and right hips show %.0f deg average difference (keep it under %.0f deg). Asymmetry builds muscle imbalances over time; focus on moving both sides equally.",
				Recommendation: "Address the left-right imbalance with unilateral exercises (single-arm or single-leg variations) and strengthen the weaker side.",
			},
			{
				Angle: "hip_asymmetry", Stat: StatMean, Op: OpGreater, Threshold: 25,
				IssueType: "asymmetric_movement", Severity: core.SeveritySevere, Confidence: 0.80,
				CueTemplate:    "Your left and right hips show %.0f deg average difference (keep it under %.0f deg). Reduce the weight until you can move both sides symmetrically.",
				Recommendation: "Address the left-right imbalance with unilateral exercises (single-arm or single-leg variations) and strengthen the weaker side.",
			},
			{
				Angle: "knee_range_of_motion", Stat: StatMean, Op: OpLess, Threshold: 40,
				IssueType: "limited_range_of_motion", Severity: core.SeverityMinor, Confidence: 0.75,
				CueTemplate:    "Increase your range of motion: your knees traveled %.0f deg (aim above %.0f deg). Full-range movement activates more muscle and improves flexibility.",
				Recommendation: "Improve mobility with dynamic stretching and foam rolling, and practice the movement slowly without weight through the complete range.",
			},
			{
				Angle: "knee_range_of_motion", Stat: StatMean, Op: OpLess, Threshold: 20,
				IssueType: "limited_range_of_motion", Severity: core.SeverityModerate, Confidence: 0.75,
				CueTemplate:    "Your knees barely moved: %.0f deg of travel (aim above %.0f deg). Work through the complete range under control before adding load.",
				Recommendation: "Improve mobility with dynamic stretching and foam rolling, and practice the movement slowly without weight through the complete range.",
			},
			{
				Angle: "hip_excursion", Stat: StatMean, Op: OpGreater, Threshold: 25,
				IssueType: "core_instability", Severity: core.SeverityMinor, Confidence: 0.70,
				CueTemplate:    "Keep your core braced and hips stable: your hip angle varied by %.0f deg during the movement (keep it under %.0f deg). Avoid using momentum to move the weight.",
				Recommendation: "Add core bracing drills such as planks and dead bugs, engage the core before each rep and maintain a neutral spine.",
			},
			{
				Angle: "hip_excursion", Stat: StatMean, Op: OpGreater, Threshold: 35,
				IssueType: "core_instability", Severity: core.SeverityModerate, Confidence: 0.70,
				CueTemplate:    "Your hips are swinging: %.0f deg of hip movement during the set (keep it under %.0f deg). Brace hard and strip the body English out of the lift.",
				Recommendation: "Add core bracing drills such as planks and dead bugs, engage the core before each rep and maintain a neutral spine.",
			},
		},
		Targets: map[string]Range{
			"knee_asymmetry":       {Lo: 0, Hi: 15, Stat: StatMean},
			"hip_asymmetry":        {Lo: 0, Hi: 15, Stat: StatMean},
			"knee_range_of_motion": {Lo: 40, Hi: 180, Stat: StatMean},
			"hip_excursion":        {Lo: 0, Hi: 25, Stat: StatMean},
		},
	}
}
