package processors

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"formcoach/core"
	"formcoach/rules"
)

// PipelineConfig tunes one analysis pipeline instance.
type PipelineConfig struct {
	// MinConfidence is the landmark visibility floor below which an angle is
	// undetermined.
	MinConfidence float64 `json:"min_confidence"`
	// SampleCap bounds the representative frame sample.
	SampleCap int `json:"sample_cap"`
	// Workers bounds per-frame extraction parallelism; 0 means NumCPU.
	Workers int `json:"workers"`
	// AllowGenericRules selects the documented generic fallback for unknown
	// exercises instead of failing with a configuration error.
	AllowGenericRules bool `json:"allow_generic_rules"`
}

// DefaultPipelineConfig mirrors the tuning the service ships with.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinConfidence: 0.5,
		SampleCap:     core.SampleCap,
	}
}

// Pipeline runs one video through detection, angle computation, temporal
// reduction, form analysis and assembly. A Pipeline holds no per-run state
// and is safe to share across concurrent analyses.
type Pipeline struct {
	detector  PoseDetector
	angles    *AngleComputer
	reducer   *TemporalReducer
	analyzer  *FormAnalyzer
	assembler ResultAssembler
	registry  *rules.Registry
	config    PipelineConfig
}

// NewPipeline wires the stages around the given landmark source.
func NewPipeline(detector PoseDetector, registry *rules.Registry, config PipelineConfig) *Pipeline {
	reducer := NewTemporalReducer()
	if config.SampleCap > 0 {
		reducer.Cap = config.SampleCap
	}
	return &Pipeline{
		detector: detector,
		angles:   NewAngleComputer(config.MinConfidence),
		reducer:  reducer,
		analyzer: NewFormAnalyzer(),
		registry: registry,
		config:   config,
	}
}

// Analyze processes the ordered frame sequence for one video. Individual
// detection failures are tolerated as gaps; only configuration errors and
// broken output invariants abort the run. On context cancellation the run
// finalizes with the frames processed so far instead of hanging.
func (p *Pipeline) Analyze(ctx context.Context, frames []core.Frame, exercise string) (core.AnalysisResult, error) {
	start := time.Now()

	rs, err := p.registry.Resolve(exercise, p.config.AllowGenericRules)
	if err != nil {
		return core.AnalysisResult{}, core.NewInputError("configuration", "%v", err)
	}
	if len(frames) == 0 {
		return core.AnalysisResult{}, core.NewInputError("extraction", "empty frame sequence for exercise %q", exercise)
	}

	samples := p.extract(ctx, frames)
	reduction := p.reducer.Reduce(samples)
	log.Printf("reduced %d frames for %q: %d with a detected pose, %d sampled",
		len(frames), exercise, reduction.ValidFrames, len(reduction.Sampled))

	analysis := p.analyzer.Analyze(rs, reduction, len(frames))

	result, err := p.assembler.Assemble(rs.Exercise, rs.Version, analysis,
		len(frames), reduction.ValidFrames, time.Since(start))
	if err != nil {
		return core.AnalysisResult{}, err
	}
	return result, nil
}

// extract runs detection and angle computation across the frames with a
// bounded worker pool. Frames are independent; results land in order by
// slot, so no synchronization beyond the pool itself is needed. Cancellation
// is cooperative at frame granularity: frames not yet dispatched stay
// undetected gaps.
func (p *Pipeline) extract(ctx context.Context, frames []core.Frame) []core.FrameSample {
	samples := make([]core.FrameSample, len(frames))
	for i, frame := range frames {
		samples[i] = core.FrameSample{FrameIndex: frame.Index}
	}

	workers := p.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(frames) {
		workers = len(frames)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				frame := frames[idx]
				set, err := p.detector.Detect(ctx, frame)
				if err != nil {
					// A failed frame is a detection gap, not a run failure.
					log.Printf("frame %d: detection failed: %v", frame.Index, err)
					set = core.NoDetection()
				}
				samples[idx].Angles = p.angles.Compute(set)
			}
		}()
	}

dispatch:
	for idx := range frames {
		if ctx.Err() != nil {
			log.Printf("analysis cancelled after dispatching %d/%d frames, finalizing with what was processed",
				idx, len(frames))
			break
		}
		select {
		case <-ctx.Done():
			log.Printf("analysis cancelled after dispatching %d/%d frames, finalizing with what was processed",
				idx, len(frames))
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	return samples
}
