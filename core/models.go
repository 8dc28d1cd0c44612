package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// LandmarkCount is the fixed landmark set size of the pose detector contract
// (MediaPipe full-body topology).
const LandmarkCount = 33

// MediaPipe pose landmark indices used by the angle definitions.
const (
	LandmarkLeftShoulder   = 11
	LandmarkRightShoulder  = 12
	LandmarkLeftElbow      = 13
	LandmarkRightElbow     = 14
	LandmarkLeftWrist      = 15
	LandmarkRightWrist     = 16
	LandmarkLeftHip        = 23
	LandmarkRightHip       = 24
	LandmarkLeftKnee       = 25
	LandmarkRightKnee      = 26
	LandmarkLeftAnkle      = 27
	LandmarkRightAnkle     = 28
	LandmarkLeftFootIndex  = 31
	LandmarkRightFootIndex = 32
)

// Landmark is one anatomical point with normalized image coordinates and the
// detector's confidence for it.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// LandmarkSet holds the full landmark collection for one frame. A frame where
// the detector found no person is represented by Detected=false, never by a
// set of zero-valued points.
type LandmarkSet struct {
	Detected  bool
	Landmarks [LandmarkCount]Landmark
}

// NoDetection is the explicit "pose absent" value for a frame.
func NoDetection() LandmarkSet { return LandmarkSet{} }

// Frame is a handle to one decoded video frame. Index is the zero-based
// ordinal in the decoded sequence, not wall-clock time.
type Frame struct {
	Index        int     `json:"index"`
	TimestampSec float64 `json:"timestamp_sec"`
	Path         string  `json:"path"`
}

// AngleSample maps angle names to degree values for one frame. Angles that
// could not be determined for the frame are simply absent from the map.
type AngleSample map[string]float64

// FrameSample pairs a frame index with the angles measured on it.
type FrameSample struct {
	FrameIndex int         `json:"frame"`
	Angles     AngleSample `json:"angles"`
}

// Valid reports whether the frame yielded at least one determined angle.
func (f FrameSample) Valid() bool { return len(f.Angles) > 0 }

// AggregateMetric summarizes one angle across every frame that yielded a valid
// sample for it. Count==0 means the metric is undetermined; Mean/Min/Max are
// meaningless in that case and must not be read as zeros.
type AggregateMetric struct {
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Determined reports whether any frame contributed to the metric.
func (m AggregateMetric) Determined() bool { return m.Count > 0 }

// Severity grades a detected form issue. The ordering is meaningful: a higher
// severity always carries a higher score penalty.
type Severity int

const (
	SeverityMinor Severity = iota + 1
	SeverityModerate
	SeveritySevere
)

var severityNames = map[Severity]string{
	SeverityMinor:    "minor",
	SeverityModerate: "moderate",
	SeveritySevere:   "severe",
}

// Penalty returns the fixed score deduction for one issue of this severity.
func (s Severity) Penalty() float64 {
	switch s {
	case SeveritySevere:
		return 3.0
	case SeverityModerate:
		return 1.5
	case SeverityMinor:
		return 0.5
	}
	return 0
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

func (s Severity) MarshalJSON() ([]byte, error) {
	name, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown severity %d", int(s))
	}
	return json.Marshal(name)
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity converts the wire form ("minor", "moderate", "severe").
func ParseSeverity(name string) (Severity, error) {
	for sev, n := range severityNames {
		if n == name {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// FormIssue is one detected deviation from acceptable form, located on the
// original frame sequence.
type FormIssue struct {
	IssueType   string   `json:"issue_type"`
	Severity    Severity `json:"severity"`
	FrameStart  int      `json:"frame_start"`
	FrameEnd    int      `json:"frame_end"`
	CoachingCue string   `json:"coaching_cue"`
	Confidence  float64  `json:"confidence_score"`
}

// MetricStatus is the pass/fail/borderline grade of a reported metric.
type MetricStatus string

const (
	MetricPass       MetricStatus = "pass"
	MetricBorderline MetricStatus = "borderline"
	MetricFail       MetricStatus = "fail"
)

// MetricReport re-expresses one aggregate metric as actual-vs-target for the
// persistence boundary.
type MetricReport struct {
	MetricName  string       `json:"metric_name"`
	ActualValue string       `json:"actual_value"`
	TargetValue string       `json:"target_value"`
	Status      MetricStatus `json:"status"`
}

// Recommendation is a prioritized improvement suggestion. Priority 1 is the
// most urgent.
type Recommendation struct {
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

// ResultStatus tags the outcome class of an analysis run.
type ResultStatus string

const (
	// StatusCompleted means the analyzer had enough evidence to score the video.
	StatusCompleted ResultStatus = "completed"
	// StatusInconclusive means every required metric was undetermined (pose
	// never reliably detected). It is a valid outcome, not an error, and
	// carries no score.
	StatusInconclusive ResultStatus = "inconclusive"
)

// AnalysisResult is the terminal, immutable record of one analysis run. It is
// the only value that crosses the core's output boundary.
type AnalysisResult struct {
	Status          ResultStatus     `json:"status"`
	Exercise        string           `json:"exercise"`
	RulesVersion    string           `json:"rules_version"`
	OverallScore    float64          `json:"overall_score"`
	TotalFrames     int              `json:"total_frames"`
	DetectedFrames  int              `json:"detected_frames"`
	ProcessingTime  float64          `json:"processing_time"`
	Issues          []FormIssue      `json:"issues"`
	Metrics         []MetricReport   `json:"metrics"`
	Strengths       []string         `json:"strengths"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Inconclusive reports whether the run produced no scoreable evidence.
func (r AnalysisResult) Inconclusive() bool { return r.Status == StatusInconclusive }

// SampleCap is the maximum number of representative frames carried through to
// the analyzer and any downstream consumer with a bounded input budget.
const SampleCap = 20

// ElapsedSeconds rounds a processing duration to the persistence contract's
// decimal-seconds shape.
func ElapsedSeconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000.0
}
