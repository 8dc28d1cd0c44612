package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"formcoach/core"
)

// PoseDetector is the external landmark source boundary: one frame in, one
// landmark set (or "absent") out. Implementations must be safe for concurrent
// use; the pipeline calls Detect from multiple workers.
type PoseDetector interface {
	Detect(ctx context.Context, frame core.Frame) (core.LandmarkSet, error)
}

// MediaPipeDetector shells out to a Python helper running MediaPipe Pose on a
// single frame image. The helper prints a JSON array of 33 landmarks, or the
// literal "null" when no person is found.
type MediaPipeDetector struct {
	PythonBin  string
	scriptPath string
}

const mediapipeScript = `#!/usr/bin/env python3
import json
import sys

import cv2
import mediapipe as mp

def detect(image_path):
    img = cv2.imread(image_path)
    if img is None:
        return None
    with mp.solutions.pose.Pose(static_image_mode=True, model_complexity=1) as pose:
        res = pose.process(cv2.cvtColor(img, cv2.COLOR_BGR2RGB))
    if not res.pose_landmarks:
        return None
    return [
        {"x": float(lm.x), "y": float(lm.y), "confidence": float(lm.visibility)}
        for lm in res.pose_landmarks.landmark
    ]

if __name__ == "__main__":
    if len(sys.argv) != 2:
        print("usage: detect_pose.py <image>", file=sys.stderr)
        sys.exit(1)
    print(json.dumps(detect(sys.argv[1])))
`

// NewMediaPipeDetector materializes the helper script into the temp dir.
func NewMediaPipeDetector(pythonBin string) (*MediaPipeDetector, error) {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	scriptPath := filepath.Join(os.TempDir(), "formcoach_detect_pose.py")
	if err := os.WriteFile(scriptPath, []byte(mediapipeScript), 0644); err != nil {
		return nil, fmt.Errorf("write pose helper script: %w", err)
	}
	return &MediaPipeDetector{PythonBin: pythonBin, scriptPath: scriptPath}, nil
}

type wireLandmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Detect runs the helper on one frame image.
func (d *MediaPipeDetector) Detect(ctx context.Context, frame core.Frame) (core.LandmarkSet, error) {
	cmd := exec.CommandContext(ctx, d.PythonBin, d.scriptPath, frame.Path)
	output, err := cmd.Output()
	if err != nil {
		return core.NoDetection(), fmt.Errorf("pose helper failed on frame %d: %w", frame.Index, err)
	}

	var raw []wireLandmark
	if err := json.Unmarshal(output, &raw); err != nil {
		return core.NoDetection(), fmt.Errorf("parse pose helper output for frame %d: %w", frame.Index, err)
	}
	if raw == nil {
		return core.NoDetection(), nil
	}
	if len(raw) != core.LandmarkCount {
		return core.NoDetection(), fmt.Errorf("pose helper returned %d landmarks for frame %d, want %d",
			len(raw), frame.Index, core.LandmarkCount)
	}

	set := core.LandmarkSet{Detected: true}
	for i, lm := range raw {
		set.Landmarks[i] = core.Landmark{X: lm.X, Y: lm.Y, Confidence: lm.Confidence}
	}
	return set, nil
}

// StaticDetector replays a fixed landmark sequence keyed by frame index. It
// backs tests and offline runs where MediaPipe is unavailable.
type StaticDetector struct {
	Sets map[int]core.LandmarkSet
}

func (d *StaticDetector) Detect(_ context.Context, frame core.Frame) (core.LandmarkSet, error) {
	if set, ok := d.Sets[frame.Index]; ok {
		return set, nil
	}
	return core.NoDetection(), nil
}
