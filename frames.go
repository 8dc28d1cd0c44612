package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"formcoach/core"
)

// extractFrames decodes the video into still frames at the configured rate
// and returns them in playback order with sequential indices.
func extractFrames(videoPath, sessionID string, fps int) ([]core.Frame, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, core.NewInputError("extraction", "video file not found: %s", videoPath)
	}

	framesDir := filepath.Join(dataRoot(), sessionID, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	pattern := filepath.Join(framesDir, "%05d.jpg")
	args := []string{"-y", "-i", videoPath, "-vf", fmt.Sprintf("fps=%d", fps), pattern}
	if err := runFFmpeg(args); err != nil {
		return nil, core.NewInputError("extraction", "ffmpeg failed for %s: %v", videoPath, err)
	}

	frames, err := enumerateFrames(framesDir, fps)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, core.NewInputError("extraction", "no frames decoded from %s", videoPath)
	}
	return frames, nil
}

func enumerateFrames(framesDir string, fps int) ([]core.Frame, error) {
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jpg") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]core.Frame, 0, len(names))
	for i, name := range names {
		frames = append(frames, core.Frame{
			Index:        i,
			TimestampSec: float64(i) / float64(fps),
			Path:         filepath.Join(framesDir, name),
		})
	}
	return frames, nil
}

func runFFmpeg(args []string) error {
	cmd := exec.Command("ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
