package processors

import (
	"math"

	"formcoach/core"
)

// AngleDef names a joint angle and the three landmarks that define it: the
// vertex plus the two ray endpoints.
type AngleDef struct {
	Name   string `json:"name"`
	RayA   int    `json:"ray_a"`
	Vertex int    `json:"vertex"`
	RayB   int    `json:"ray_b"`
}

// DefaultAngles is the tracked joint set: knee flexion (hip-knee-ankle) and
// hip hinge (shoulder-hip-knee) on both sides.
var DefaultAngles = []AngleDef{
	{Name: "left_knee", RayA: core.LandmarkLeftHip, Vertex: core.LandmarkLeftKnee, RayB: core.LandmarkLeftAnkle},
	{Name: "right_knee", RayA: core.LandmarkRightHip, Vertex: core.LandmarkRightKnee, RayB: core.LandmarkRightAnkle},
	{Name: "left_hip", RayA: core.LandmarkLeftShoulder, Vertex: core.LandmarkLeftHip, RayB: core.LandmarkLeftKnee},
	{Name: "right_hip", RayA: core.LandmarkRightShoulder, Vertex: core.LandmarkRightHip, RayB: core.LandmarkRightKnee},
}

// AngleComputer turns one frame's landmark set into named joint angles.
// Landmarks below the confidence threshold make the affected angle
// undetermined; other angles are unaffected.
type AngleComputer struct {
	Definitions   []AngleDef
	MinConfidence float64
}

// NewAngleComputer uses the default joint set and confidence floor.
func NewAngleComputer(minConfidence float64) *AngleComputer {
	return &AngleComputer{Definitions: DefaultAngles, MinConfidence: minConfidence}
}

// Compute returns the angles determinable from the landmark set. An absent
// detection yields an empty sample.
func (ac *AngleComputer) Compute(set core.LandmarkSet) core.AngleSample {
	sample := core.AngleSample{}
	if !set.Detected {
		return sample
	}
	for _, def := range ac.Definitions {
		if deg, ok := ac.angleAt(set, def); ok {
			sample[def.Name] = deg
		}
	}
	return sample
}

// angleAt computes the angle in degrees at the definition's vertex. It fails
// when any required landmark falls below the confidence threshold.
func (ac *AngleComputer) angleAt(set core.LandmarkSet, def AngleDef) (float64, bool) {
	for _, idx := range []int{def.RayA, def.Vertex, def.RayB} {
		if idx < 0 || idx >= core.LandmarkCount {
			return 0, false
		}
		if set.Landmarks[idx].Confidence < ac.MinConfidence {
			return 0, false
		}
	}
	a := set.Landmarks[def.RayA]
	v := set.Landmarks[def.Vertex]
	b := set.Landmarks[def.RayB]

	ax, ay := a.X-v.X, a.Y-v.Y
	bx, by := b.X-v.X, b.Y-v.Y

	na := math.Hypot(ax, ay)
	nb := math.Hypot(bx, by)
	if na == 0 || nb == 0 {
		// Coincident landmarks leave the angle undefined.
		return 0, false
	}

	cos := (ax*bx + ay*by) / (na * nb)
	// Floating-point overshoot past +-1 would put Acos out of domain for
	// near-collinear rays.
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi, true
}
