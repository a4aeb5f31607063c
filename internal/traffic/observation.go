// Package traffic implements the frame-synchronous stream-analytics core:
// per-identity trajectory history, kinematics, pairwise collision risk,
// incident classification, spatial density grids, short-horizon forecasts,
// and the per-frame aggregate report.
//
// The detector and identity tracker are external collaborators. The core
// receives one list of Observations per video frame via Pipeline.ProcessFrame
// and exposes structured results only; it never renders anything.
package traffic

import (
	"fmt"
	"math"
)

// Point is a position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance to q.
func (p Point) Dist(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// BBox is an axis-aligned bounding box in frame pixel coordinates.
// X,Y is the top-left corner.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the box centre point.
func (b BBox) Center() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// Area returns the box area in square pixels.
func (b BBox) Area() float64 {
	return b.W * b.H
}

// Diagonal returns the box diagonal length in pixels.
func (b BBox) Diagonal() float64 {
	return math.Sqrt(b.W*b.W + b.H*b.H)
}

// IoU returns the intersection-over-union with o, in [0,1].
func (b BBox) IoU(o BBox) float64 {
	ix := math.Max(b.X, o.X)
	iy := math.Max(b.Y, o.Y)
	ix2 := math.Min(b.X+b.W, o.X+o.W)
	iy2 := math.Min(b.Y+b.H, o.Y+o.H)

	if ix2 <= ix || iy2 <= iy {
		return 0
	}

	inter := (ix2 - ix) * (iy2 - iy)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Observation is one tracked object in one frame, produced by the external
// detector+tracker pair. ID is the tracker's persistent identity: unique
// among simultaneously-visible objects, stable across frames for the same
// physical object. Observations are immutable once recorded.
type Observation struct {
	ID          int64   `json:"id"`
	BBox        BBox    `json:"bbox"`
	Class       string  `json:"class"`
	Confidence  float64 `json:"confidence"`
	TSUnixNanos int64   `json:"ts_unix_nanos"`
}

// Position returns the observation's bounding-box centre.
func (o Observation) Position() Point {
	return o.BBox.Center()
}

// Validate rejects observations with degenerate geometry or out-of-range
// confidence. Invalid observations are dropped by the pipeline, not the
// whole frame.
func (o Observation) Validate() error {
	if o.BBox.W <= 0 || o.BBox.H <= 0 {
		return fmt.Errorf("observation %d: invalid bbox %gx%g", o.ID, o.BBox.W, o.BBox.H)
	}
	if math.IsNaN(o.BBox.X) || math.IsNaN(o.BBox.Y) || math.IsNaN(o.BBox.W) || math.IsNaN(o.BBox.H) {
		return fmt.Errorf("observation %d: bbox contains NaN", o.ID)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("observation %d: confidence %g outside [0,1]", o.ID, o.Confidence)
	}
	return nil
}
