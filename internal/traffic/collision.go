package traffic

import (
	"math"
	"sort"
)

// CollisionConfig holds configuration for the pairwise collision risk scan.
type CollisionConfig struct {
	// SafetyDistance is the minimum clear gap (pixels) added on top of the
	// two bodies' extents when computing the safe separation.
	SafetyDistance float64
	// ClearMargin is the extra separation (pixels) beyond the safe distance
	// past which risk is always zero.
	ClearMargin float64
	// Sensitivity is the alert threshold on risk; lower is more sensitive.
	// Recommended range [0.3, 1.0].
	Sensitivity float64
}

// DefaultCollisionConfig returns defaults tuned for tens of objects in a
// fixed traffic camera view.
func DefaultCollisionConfig() CollisionConfig {
	return CollisionConfig{
		SafetyDistance: 50,
		ClearMargin:    40,
		Sensitivity:    0.6,
	}
}

// CollisionAlert is a pairwise risk result, valid only for the frame that
// produced it.
type CollisionAlert struct {
	IDA      int64   `json:"id_a"`
	IDB      int64   `json:"id_b"`
	Risk     float64 `json:"risk"` // [0,1]
	PosA     Point   `json:"pos_a"`
	PosB     Point   `json:"pos_b"`
	Distance float64 `json:"distance"`
}

// CollisionScorer evaluates every unordered pair of identities present in
// the current frame. O(n²) in the active identity count; acceptable at the
// tens-of-objects scale this system targets. Callers with much larger n
// should pre-filter pairs with a spatial index.
type CollisionScorer struct {
	config CollisionConfig
}

// NewCollisionScorer creates a scorer with the given configuration.
func NewCollisionScorer(config CollisionConfig) *CollisionScorer {
	return &CollisionScorer{config: config}
}

// Config returns the current configuration.
func (cs *CollisionScorer) Config() CollisionConfig { return cs.config }

// SetConfig replaces the configuration (used for runtime tuning updates).
func (cs *CollisionScorer) SetConfig(config CollisionConfig) { cs.config = config }

// Score computes collision alerts for the current frame. Pairs where either
// identity lacks a kinematic state are skipped. Alerts whose risk reaches
// the sensitivity threshold are returned sorted by descending risk.
func (cs *CollisionScorer) Score(current []Observation, kin map[int64]KinematicState) []CollisionAlert {
	var alerts []CollisionAlert

	for i := 0; i < len(current); i++ {
		ka, ok := kin[current[i].ID]
		if !ok {
			continue
		}
		for j := i + 1; j < len(current); j++ {
			kb, ok := kin[current[j].ID]
			if !ok {
				continue
			}

			risk, dist := cs.pairRisk(current[i], ka, current[j], kb)
			if risk >= cs.config.Sensitivity {
				alerts = append(alerts, CollisionAlert{
					IDA:      current[i].ID,
					IDB:      current[j].ID,
					Risk:     risk,
					PosA:     current[i].Position(),
					PosB:     current[j].Position(),
					Distance: dist,
				})
			}
		}
	}

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Risk > alerts[j].Risk })
	return alerts
}

// pairRisk computes the risk in [0,1] for one pair plus their separation.
//
// Risk is a weighted blend of a distance term (how far inside the safe
// separation the pair already is) and a closing term (closing speed relative
// to the pair's combined speed). Risk is zero for stationary pairs, for
// pairs that are not closing, and for pairs separated by more than the safe
// distance plus the clear margin.
func (cs *CollisionScorer) pairRisk(a Observation, ka KinematicState, b Observation, kb KinematicState) (risk, dist float64) {
	pa := a.Position()
	pb := b.Position()
	dx := pb.X - pa.X
	dy := pb.Y - pa.Y
	dist = math.Sqrt(dx*dx + dy*dy)

	speedA := math.Hypot(ka.VX, ka.VY)
	speedB := math.Hypot(kb.VX, kb.VY)
	if speedA < 0.1 && speedB < 0.1 {
		return 0, dist // both effectively stationary
	}

	minSafe := a.BBox.Diagonal()/2 + b.BBox.Diagonal()/2 + cs.config.SafetyDistance
	if dist >= minSafe+cs.config.ClearMargin {
		return 0, dist
	}

	// Separation rate: d|pb-pa|/dt = ((pb-pa)·(vb-va))/|pb-pa|.
	// Negative means closing.
	relVX := kb.VX - ka.VX
	relVY := kb.VY - ka.VY
	closing := -(relVX*dx + relVY*dy) / (dist + 0.1)
	if closing <= 0 {
		return 0, dist
	}

	distanceRisk := 0.0
	if dist < minSafe {
		distanceRisk = 1 - dist/minSafe
	}

	closingRisk := closing / (speedA + speedB + 0.1)
	closingRisk = math.Min(closingRisk, 1)

	// Inside the clear margin but beyond the safe distance, the closing term
	// fades out linearly so risk is continuous down to the zero boundary.
	proximity := 1.0
	if dist > minSafe {
		proximity = 1 - (dist-minSafe)/cs.config.ClearMargin
	}

	risk = 0.6*distanceRisk + 0.4*closingRisk*proximity
	return math.Max(0, math.Min(risk, 1)), dist
}
