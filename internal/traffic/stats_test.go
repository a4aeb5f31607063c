package traffic

import (
	"testing"
	"time"
)

func TestFrameStatsCounters(t *testing.T) {
	fs := NewFrameStats()

	fs.AddFrame(5, 2*time.Millisecond)
	fs.AddFrame(3, 1*time.Millisecond)
	fs.AddDropped(2)
	fs.AddSkippedFrame()

	snap := fs.Snapshot()
	if snap.Frames != 2 || snap.Observations != 8 {
		t.Errorf("snapshot = %+v, want 2 frames with 8 observations", snap)
	}
	if snap.DroppedObs != 2 || snap.SkippedFrames != 1 {
		t.Errorf("snapshot = %+v, want 2 dropped and 1 skipped", snap)
	}
	if snap.Processing != 3*time.Millisecond {
		t.Errorf("processing = %v, want 3ms", snap.Processing)
	}

	// Snapshot does not reset.
	if again := fs.Snapshot(); again.Frames != 2 {
		t.Errorf("second snapshot frames = %d, want 2", again.Frames)
	}
}

func TestFrameStatsGetAndReset(t *testing.T) {
	fs := NewFrameStats()
	fs.AddFrame(5, time.Millisecond)

	snap := fs.GetAndReset()
	if snap.Frames != 1 {
		t.Fatalf("frames = %d, want 1", snap.Frames)
	}

	after := fs.Snapshot()
	if after.Frames != 0 || after.Observations != 0 || after.Processing != 0 {
		t.Errorf("counters after reset = %+v, want zeroed", after)
	}
}
