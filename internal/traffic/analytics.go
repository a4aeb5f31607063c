package traffic

import (
	"math"
	"sync"
)

// EmissionFactors maps object class to estimated idling emissions in
// g CO2 per minute. Classes not listed contribute nothing.
var EmissionFactors = map[string]float64{
	"car":        120.0,
	"bus":        450.0,
	"truck":      500.0,
	"motorcycle": 60.0,
	"bicycle":    0.0,
}

// Risk index weights. The index is a 0-100 blend of the worst current
// collision risk, open incident severity, and congestion.
const (
	riskWeightCollision  = 45.0
	riskWeightIncidents  = 30.0
	riskWeightCongestion = 25.0
)

// Signal recommendation thresholds on active vehicle count.
const (
	signalHighTraffic     = 15
	signalModerateTraffic = 5
	// A congestion trend rising faster than this per frame upgrades the
	// recommendation one level.
	signalRisingTrend = 0.002
)

// Violation is an externally-detected rule violation (e.g. stop-line
// crossing) fed into the aggregator; this core does not compute them.
type Violation struct {
	TrackID     int64  `json:"track_id"`
	Type        string `json:"type"`
	Class       string `json:"class"`
	TSUnixNanos int64  `json:"ts_unix_nanos"`
}

// AggregateTotals are the aggregator's small rolling counters.
type AggregateTotals struct {
	PerClass           map[string]int64 `json:"per_class"`
	CumulativeVehicles int64            `json:"cumulative_vehicles"`
	PeakConcurrent     int              `json:"peak_concurrent"`
	Violations         int64            `json:"violations"`
	FramesProcessed    int64            `json:"frames_processed"`
}

// Aggregator combines the per-frame outputs of the analytics modules into
// report-level figures. Apart from its rolling counters it owns no data and
// is a pure function of the other modules' outputs.
type Aggregator struct {
	mu sync.Mutex

	perClass   map[string]int64
	recorded   map[int64]struct{}
	peak       int
	frames     int64
	violations []Violation // bounded
	violTotal  int64
}

const violationLogLimit = 100

// NewAggregator creates an aggregator with zeroed counters.
func NewAggregator() *Aggregator {
	return &Aggregator{
		perClass: make(map[string]int64),
		recorded: make(map[int64]struct{}),
	}
}

// ObserveFrame updates the rolling counters from the current frame's
// observations: each identity is counted once per class on first sighting,
// and the peak concurrent count is tracked.
func (a *Aggregator) ObserveFrame(current []Observation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frames++
	if len(current) > a.peak {
		a.peak = len(current)
	}
	for _, obs := range current {
		if _, seen := a.recorded[obs.ID]; seen {
			continue
		}
		a.recorded[obs.ID] = struct{}{}
		a.perClass[obs.Class]++
	}
}

// RecordViolation logs an externally-detected violation.
func (a *Aggregator) RecordViolation(v Violation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.violTotal++
	a.violations = append(a.violations, v)
	if len(a.violations) > violationLogLimit {
		a.violations = a.violations[len(a.violations)-violationLogLimit:]
	}
}

// Violations returns a copy of the recent violation log.
func (a *Aggregator) Violations() []Violation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Violation, len(a.violations))
	copy(out, a.violations)
	return out
}

// Totals returns a snapshot of the rolling counters.
func (a *Aggregator) Totals() AggregateTotals {
	a.mu.Lock()
	defer a.mu.Unlock()

	perClass := make(map[string]int64, len(a.perClass))
	var cumulative int64
	for class, n := range a.perClass {
		perClass[class] = n
		cumulative += n
	}
	return AggregateTotals{
		PerClass:           perClass,
		CumulativeVehicles: cumulative,
		PeakConcurrent:     a.peak,
		Violations:         a.violTotal,
		FramesProcessed:    a.frames,
	}
}

// RiskIndex computes the 0-100 safety risk index for the current frame.
func RiskIndex(alerts []CollisionAlert, openIncidents []Incident, congestion float64) float64 {
	var maxCollision float64
	for _, al := range alerts {
		if al.Risk > maxCollision {
			maxCollision = al.Risk
		}
	}

	// Incident component: severity-weighted sum, saturating at three
	// high-severity equivalents.
	var sevSum float64
	for _, inc := range openIncidents {
		switch inc.Severity {
		case SeverityHigh:
			sevSum += 1.0
		case SeverityMedium:
			sevSum += 0.6
		default:
			sevSum += 0.3
		}
	}
	incidentScore := math.Min(sevSum/3.0, 1.0)

	congestion = math.Max(0, math.Min(congestion, 1))

	idx := riskWeightCollision*maxCollision + riskWeightIncidents*incidentScore + riskWeightCongestion*congestion
	return math.Max(0, math.Min(idx, 100))
}

// SignalRecommendation derives a signal-timing suggestion from the active
// vehicle count and the congestion trend. A strongly rising trend upgrades
// the recommendation one level.
func SignalRecommendation(activeVehicles int, congestionTrend float64) string {
	level := 0
	switch {
	case activeVehicles > signalHighTraffic:
		level = 2
	case activeVehicles > signalModerateTraffic:
		level = 1
	}
	if congestionTrend > signalRisingTrend && level < 2 {
		level++
	}

	switch level {
	case 2:
		return "High Traffic: Increase Green by 15s"
	case 1:
		return "Moderate Traffic: Increase Green by 5s"
	default:
		return "Low Traffic: Maintain Standard Timing"
	}
}

// EstimateEmissions estimates CO2 output in g/min from cumulative per-class
// counts, using the per-class idling factors.
func EstimateEmissions(perClass map[string]int64) float64 {
	var total float64
	for class, count := range perClass {
		factor, ok := EmissionFactors[class]
		if !ok {
			continue
		}
		total += float64(count) * factor / 60.0
	}
	return total
}
