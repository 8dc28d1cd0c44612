package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnumerateFramesOrderAndIndices(t *testing.T) {
	dir := t.TempDir()
	// Written out of order on purpose; enumeration must sort by name.
	for _, name := range []string{"00003.jpg", "00001.jpg", "00002.jpg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	frames, err := enumerateFrames(dir, 3)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3 (non-jpg files excluded)", len(frames))
	}
	for i, frame := range frames {
		if frame.Index != i {
			t.Errorf("frame %d has index %d", i, frame.Index)
		}
	}
	if frames[1].TimestampSec != 1.0/3.0 {
		t.Errorf("frame 1 timestamp = %v, want 1/3", frames[1].TimestampSec)
	}
	if filepath.Base(frames[0].Path) != "00001.jpg" {
		t.Errorf("first frame = %s, want 00001.jpg", frames[0].Path)
	}
}

func TestExtractFramesMissingVideo(t *testing.T) {
	_, err := extractFrames(filepath.Join(t.TempDir(), "missing.mp4"), "session", 3)
	if err == nil {
		t.Fatal("missing video accepted")
	}
}
