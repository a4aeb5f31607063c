package traffic

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Calibration defaults, matching typical fixed-camera installs.
const (
	DefaultPixelsPerMeter = 50.0
	DefaultFPS            = 30.0
)

// Kinematics window parameters.
const (
	// KinematicsWindow is the trailing sample window used to smooth
	// displacement noise.
	KinematicsWindow = 10
	// MinKinematicsSamples is the minimum trajectory length below which no
	// kinematic state is produced.
	MinKinematicsSamples = 2
)

// Calibration holds the pixel-to-meter scale and the frame rate. It is
// explicit process-wide configuration with a defined update operation, not a
// hidden global: updates take effect on the next kinematics computation.
type Calibration struct {
	mu             sync.RWMutex
	pixelsPerMeter float64
	fps            float64
}

// NewCalibration creates a calibration object. Non-positive arguments fall
// back to defaults.
func NewCalibration(pixelsPerMeter, fps float64) *Calibration {
	if pixelsPerMeter <= 0 {
		pixelsPerMeter = DefaultPixelsPerMeter
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Calibration{pixelsPerMeter: pixelsPerMeter, fps: fps}
}

// Calibrate recomputes the pixel-to-meter scale from a known pixel distance
// and its real-world meter equivalent.
func (c *Calibration) Calibrate(pixelDistance, meterDistance float64) error {
	if pixelDistance <= 0 || meterDistance <= 0 {
		return fmt.Errorf("calibrate: distances must be positive, got %gpx / %gm", pixelDistance, meterDistance)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pixelsPerMeter = pixelDistance / meterDistance
	return nil
}

// PixelsPerMeter returns the current scale.
func (c *Calibration) PixelsPerMeter() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pixelsPerMeter
}

// FPS returns the configured frame rate.
func (c *Calibration) FPS() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fps
}

// Set replaces both calibration values directly. Non-positive arguments
// keep the current value.
func (c *Calibration) Set(pixelsPerMeter, fps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pixelsPerMeter > 0 {
		c.pixelsPerMeter = pixelsPerMeter
	}
	if fps > 0 {
		c.fps = fps
	}
}

// KinematicState is the per-identity derived motion state, recomputed each
// frame from the trailing window of a trajectory.
type KinematicState struct {
	SpeedPxPerFrame float64 `json:"speed_px_per_frame"`
	SpeedMps        float64 `json:"speed_mps"`
	DirectionRad    float64 `json:"direction_rad"`
	DirectionDeg    float64 `json:"direction_deg"`
	Stability       float64 `json:"stability"` // [0,1]; low step variance = high stability
	SampleCount     int     `json:"sample_count"`

	// Mean displacement per frame, used by the collision scorer.
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// EstimateKinematics derives a KinematicState from the trailing window of a
// trajectory. It is a pure function of the trajectory and calibration. The
// second return is false when fewer than MinKinematicsSamples exist; no
// fabricated state is ever returned.
func EstimateKinematics(traj Trajectory, calib *Calibration) (KinematicState, bool) {
	if len(traj) < MinKinematicsSamples {
		return KinematicState{}, false
	}

	start := 0
	if len(traj) > KinematicsWindow {
		start = len(traj) - KinematicsWindow
	}
	recent := traj[start:]

	steps := make([]float64, 0, len(recent)-1)
	var sumDX, sumDY float64
	for i := 1; i < len(recent); i++ {
		dx := recent[i].X - recent[i-1].X
		dy := recent[i].Y - recent[i-1].Y
		sumDX += dx
		sumDY += dy
		steps = append(steps, math.Sqrt(dx*dx+dy*dy))
	}

	speedPF := stat.Mean(steps, nil)

	var stdPF float64
	if len(steps) >= 2 {
		stdPF = stat.StdDev(steps, nil)
	}
	stability := 1.0 - math.Min(stdPF/(speedPF+0.1), 1.0)
	stability = math.Max(0, math.Min(1, stability))

	n := float64(len(steps))
	dirRad := math.Atan2(sumDY/n, sumDX/n)

	return KinematicState{
		SpeedPxPerFrame: speedPF,
		SpeedMps:        speedPF * calib.FPS() / calib.PixelsPerMeter(),
		DirectionRad:    dirRad,
		DirectionDeg:    dirRad * 180 / math.Pi,
		Stability:       stability,
		SampleCount:     len(recent),
		VX:              sumDX / n,
		VY:              sumDY / n,
	}, true
}

// EstimateAllKinematics computes kinematic states for every trajectory that
// has enough history.
func EstimateAllKinematics(trajs map[int64]Trajectory, calib *Calibration) map[int64]KinematicState {
	out := make(map[int64]KinematicState, len(trajs))
	for id, traj := range trajs {
		if ks, ok := EstimateKinematics(traj, calib); ok {
			out[id] = ks
		}
	}
	return out
}

// SpeedSummary is a fleet-wide summary of current speeds in m/s.
type SpeedSummary struct {
	MeanMps float64 `json:"mean_mps"`
	MinMps  float64 `json:"min_mps"`
	MaxMps  float64 `json:"max_mps"`
	StdMps  float64 `json:"std_mps"`
	Samples int     `json:"samples"`
}

// SummariseSpeeds aggregates per-identity speeds into a SpeedSummary.
// Returns a zero summary when no kinematics exist.
func SummariseSpeeds(kin map[int64]KinematicState) SpeedSummary {
	if len(kin) == 0 {
		return SpeedSummary{}
	}
	speeds := make([]float64, 0, len(kin))
	for _, ks := range kin {
		speeds = append(speeds, ks.SpeedMps)
	}
	s := SpeedSummary{
		MeanMps: stat.Mean(speeds, nil),
		MinMps:  speeds[0],
		MaxMps:  speeds[0],
		Samples: len(speeds),
	}
	for _, v := range speeds {
		s.MinMps = math.Min(s.MinMps, v)
		s.MaxMps = math.Max(s.MaxMps, v)
	}
	if len(speeds) >= 2 {
		s.StdMps = stat.StdDev(speeds, nil)
	}
	return s
}
