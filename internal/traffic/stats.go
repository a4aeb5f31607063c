package traffic

import (
	"sync"
	"time"

	"github.com/banshee-data/traffic.report/internal/monitoring"
)

// FrameStats tracks pipeline throughput with thread-safe counters.
type FrameStats struct {
	mu            sync.Mutex
	frameCount    int64
	obsCount      int64
	droppedObs    int64
	skippedFrames int64
	processing    time.Duration
	lastReset     time.Time
}

// NewFrameStats creates a FrameStats instance.
func NewFrameStats() *FrameStats {
	return &FrameStats{lastReset: time.Now()}
}

// AddFrame records one processed frame with its observation count and
// processing duration.
func (fs *FrameStats) AddFrame(observations int, elapsed time.Duration) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.frameCount++
	fs.obsCount += int64(observations)
	fs.processing += elapsed
}

// AddDropped records observations dropped for malformed input.
func (fs *FrameStats) AddDropped(n int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.droppedObs += int64(n)
}

// AddSkippedFrame records a frame rejected before processing.
func (fs *FrameStats) AddSkippedFrame() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.skippedFrames++
}

// StatsSnapshot is a copy of the counters for status reporting.
type StatsSnapshot struct {
	Frames        int64         `json:"frames"`
	Observations  int64         `json:"observations"`
	DroppedObs    int64         `json:"dropped_observations"`
	SkippedFrames int64         `json:"skipped_frames"`
	Processing    time.Duration `json:"-"`
	Window        time.Duration `json:"-"`
}

// Snapshot returns the current counters without resetting them.
func (fs *FrameStats) Snapshot() StatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return StatsSnapshot{
		Frames:        fs.frameCount,
		Observations:  fs.obsCount,
		DroppedObs:    fs.droppedObs,
		SkippedFrames: fs.skippedFrames,
		Processing:    fs.processing,
		Window:        time.Since(fs.lastReset),
	}
}

// GetAndReset returns current stats and resets the counters.
func (fs *FrameStats) GetAndReset() StatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now()
	snap := StatsSnapshot{
		Frames:        fs.frameCount,
		Observations:  fs.obsCount,
		DroppedObs:    fs.droppedObs,
		SkippedFrames: fs.skippedFrames,
		Processing:    fs.processing,
		Window:        now.Sub(fs.lastReset),
	}

	fs.frameCount = 0
	fs.obsCount = 0
	fs.droppedObs = 0
	fs.skippedFrames = 0
	fs.processing = 0
	fs.lastReset = now

	return snap
}

// LogStats logs a one-line throughput summary and resets the counters.
func (fs *FrameStats) LogStats() {
	snap := fs.GetAndReset()
	if snap.Frames == 0 && snap.SkippedFrames == 0 {
		return
	}

	framesPerSec := float64(snap.Frames) / snap.Window.Seconds()
	avgProcess := time.Duration(0)
	if snap.Frames > 0 {
		avgProcess = snap.Processing / time.Duration(snap.Frames)
	}

	monitoring.Logf("Traffic stats: %.1f frames/sec, %d observations, avg %s/frame, %d dropped, %d skipped frames",
		framesPerSec, snap.Observations, avgProcess.Round(time.Microsecond), snap.DroppedObs, snap.SkippedFrames)
}
