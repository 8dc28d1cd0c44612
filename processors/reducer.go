package processors

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"formcoach/core"
)

// Reduction is the two-track summary of a full frame sequence: aggregates
// keep full-sequence fidelity, the sampled frames give bounded per-frame
// detail for budget-constrained consumers.
type Reduction struct {
	Aggregates map[string]core.AggregateMetric
	Sampled    []core.FrameSample
	// ValidFrames counts frames that yielded at least one determined angle.
	ValidFrames int
}

// Cross-angle measurements derived from the raw joint angles. Asymmetries
// are per-frame left/right differences and behave like any other angle
// series; the span metrics summarize the whole movement and surface as
// scalar aggregates.
const (
	AngleKneeAsymmetry = "knee_asymmetry"
	AngleHipAsymmetry  = "hip_asymmetry"
	MetricKneeRange    = "knee_range_of_motion"
	MetricHipExcursion = "hip_excursion"
)

var asymmetryPairs = []struct {
	name, left, right string
}{
	{AngleKneeAsymmetry, "left_knee", "right_knee"},
	{AngleHipAsymmetry, "left_hip", "right_hip"},
}

// TemporalReducer collapses the ordered per-frame angle sequence for one
// video. The sample cap bounds how many representative frames survive.
type TemporalReducer struct {
	Cap int
}

// NewTemporalReducer uses the standard sample cap.
func NewTemporalReducer() *TemporalReducer {
	return &TemporalReducer{Cap: core.SampleCap}
}

// Reduce computes per-angle aggregates over all valid frames, derives the
// cross-angle measurements, and selects the representative sample. The input
// must be ordered by frame index; the output sample preserves that order.
// Fully deterministic.
func (tr *TemporalReducer) Reduce(samples []core.FrameSample) Reduction {
	red := Reduction{Aggregates: map[string]core.AggregateMetric{}}

	series := map[string][]float64{}
	valid := make([]core.FrameSample, 0, len(samples))
	for _, fs := range samples {
		if !fs.Valid() {
			continue
		}
		angles := core.AngleSample{}
		for name, deg := range fs.Angles {
			angles[name] = deg
			series[name] = append(series[name], deg)
		}
		for _, pair := range asymmetryPairs {
			left, lok := fs.Angles[pair.left]
			right, rok := fs.Angles[pair.right]
			if lok && rok {
				diff := math.Abs(left - right)
				angles[pair.name] = diff
				series[pair.name] = append(series[pair.name], diff)
			}
		}
		valid = append(valid, core.FrameSample{FrameIndex: fs.FrameIndex, Angles: angles})
	}
	red.ValidFrames = len(valid)

	for name, vals := range series {
		red.Aggregates[name] = core.AggregateMetric{
			Mean:  stat.Mean(vals, nil),
			Min:   floats.Min(vals),
			Max:   floats.Max(vals),
			Count: len(vals),
		}
	}

	if m, ok := rangeOfMotion(red.Aggregates, "left_knee", "right_knee"); ok {
		red.Aggregates[MetricKneeRange] = m
	}
	if m, ok := excursion(red.Aggregates, "left_hip", "right_hip"); ok {
		red.Aggregates[MetricHipExcursion] = m
	}

	red.Sampled = tr.sample(valid)
	return red
}

// rangeOfMotion is the widest single-side max-minus-min travel: the joint
// must go through the range on one side, not half on each.
func rangeOfMotion(aggs map[string]core.AggregateMetric, sides ...string) (core.AggregateMetric, bool) {
	span, count := 0.0, 0
	for _, side := range sides {
		m, ok := aggs[side]
		if !ok || !m.Determined() {
			continue
		}
		span = math.Max(span, m.Max-m.Min)
		count += m.Count
	}
	if count == 0 {
		return core.AggregateMetric{}, false
	}
	return scalarMetric(span, count), true
}

// excursion is the total min-to-max travel across both sides combined, the
// measure of how much the joint pair moved over the whole video.
func excursion(aggs map[string]core.AggregateMetric, sides ...string) (core.AggregateMetric, bool) {
	lo, hi, count := math.Inf(1), math.Inf(-1), 0
	for _, side := range sides {
		m, ok := aggs[side]
		if !ok || !m.Determined() {
			continue
		}
		lo = math.Min(lo, m.Min)
		hi = math.Max(hi, m.Max)
		count += m.Count
	}
	if count == 0 {
		return core.AggregateMetric{}, false
	}
	return scalarMetric(hi-lo, count), true
}

// scalarMetric wraps a whole-movement value so it flows through the same
// aggregate machinery as the per-frame series.
func scalarMetric(v float64, count int) core.AggregateMetric {
	return core.AggregateMetric{Mean: v, Min: v, Max: v, Count: count}
}

// sample picks at most Cap frames from the valid sequence with an even
// stride, always spanning from the first to the last valid frame. Below the
// cap every valid frame is kept.
func (tr *TemporalReducer) sample(valid []core.FrameSample) []core.FrameSample {
	n := len(valid)
	if n == 0 {
		return nil
	}
	if tr.Cap <= 0 || n <= tr.Cap {
		out := make([]core.FrameSample, n)
		copy(out, valid)
		return out
	}
	if tr.Cap == 1 {
		return []core.FrameSample{valid[0]}
	}

	out := make([]core.FrameSample, 0, tr.Cap)
	last := -1
	for i := 0; i < tr.Cap; i++ {
		// Evenly spread positions over [0, n-1], endpoints included.
		pos := (i*(n-1) + (tr.Cap-1)/2) / (tr.Cap - 1)
		if pos == last {
			continue
		}
		last = pos
		out = append(out, valid[pos])
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].FrameIndex < out[b].FrameIndex })
	return out
}
