package traffic

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// IncidentType identifies a behavioural incident rule.
type IncidentType string

const (
	IncidentStalled           IncidentType = "stalled"
	IncidentErratic           IncidentType = "erratic"
	IncidentPotentialAccident IncidentType = "potential_accident"
	IncidentSuddenSpeedChange IncidentType = "sudden_speed_change"
)

// Severity is the incident severity level.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Incident is one open or closed behavioural incident for an identity. An
// incident opens when its rule first fires, extends while the rule keeps
// holding for the same identity, and closes (moving into bounded history)
// when the rule stops holding or the identity disappears.
type Incident struct {
	IncidentID      string       `json:"incident_id"`
	Type            IncidentType `json:"type"`
	TrackID         int64        `json:"track_id"`
	OtherID         int64        `json:"other_id,omitempty"` // second participant for potential_accident
	Position        Point        `json:"position"`
	Severity        Severity     `json:"severity"`
	DurationFrames  int          `json:"duration_frames"`
	Value           float64      `json:"value"` // rule metric: stall frames, variance, IoU, or speed delta
	OpenedUnixNanos int64        `json:"opened_unix_nanos"`
	ClosedUnixNanos int64        `json:"closed_unix_nanos,omitempty"` // zero while open
}

// IncidentConfig holds the detection thresholds. The potential-accident rule
// is a heuristic: box overlap plus nonzero recent speed cannot distinguish a
// collision from adjacent slow traffic or occlusion, so its thresholds are
// tunable rather than trusted.
type IncidentConfig struct {
	StallSpeedPxPerFrame float64 // below this an object counts as stopped
	StallFrames          int     // consecutive stopped frames before opening
	StallMediumFrames    int     // duration escalation thresholds
	StallHighFrames      int
	ErraticVariance      float64 // step-distance variance threshold
	ErraticHighVariance  float64
	ErraticWindow        int // trailing steps examined
	AccidentIoU          float64
	// Overlap above AccidentIoU but at or below AccidentHighIoU grades
	// medium rather than high; set both equal to make every overlap high.
	AccidentHighIoU float64
	SpeedJumpPxPerFrame  float64 // |Δspeed| between consecutive frames
	SpeedJumpHigh        float64
	HistoryLimit         int // closed incidents retained
}

// DefaultIncidentConfig returns thresholds matching a 30fps fixed camera.
func DefaultIncidentConfig() IncidentConfig {
	return IncidentConfig{
		StallSpeedPxPerFrame: 0.5,
		StallFrames:          30,
		StallMediumFrames:    90,
		StallHighFrames:      180,
		ErraticVariance:      50,
		ErraticHighVariance:  150,
		ErraticWindow:        10,
		AccidentIoU:          0.3,
		AccidentHighIoU:      0.5,
		SpeedJumpPxPerFrame:  4,
		SpeedJumpHigh:        8,
		HistoryLimit:         100,
	}
}

// IncidentSummary aggregates incident counts for the report.
type IncidentSummary struct {
	TotalOpen    int                  `json:"total_open"`
	HighSeverity int                  `json:"high_severity"`
	OpenByType   map[IncidentType]int `json:"open_by_type"`
	ClosedByType map[IncidentType]int `json:"closed_by_type"`
}

// incidentKey identifies one state machine instance: the (identity, rule)
// pair. The potential-accident rule keys on the lower of the two identities.
type incidentKey struct {
	id  int64
	typ IncidentType
}

// IncidentClassifier re-evaluates all rules each frame against the frozen
// trajectory and kinematics state, maintaining an explicit open/closed state
// machine per (identity, incident type).
type IncidentClassifier struct {
	mu     sync.Mutex
	config IncidentConfig

	open        map[incidentKey]*Incident
	stallFrames map[int64]int
	lastSpeed   map[int64]float64
	history     []Incident // closed, oldest first, capped
	closedTotal map[IncidentType]int
}

// NewIncidentClassifier creates a classifier with the given thresholds.
func NewIncidentClassifier(config IncidentConfig) *IncidentClassifier {
	if config.HistoryLimit < 1 {
		config.HistoryLimit = 100
	}
	return &IncidentClassifier{
		config:      config,
		open:        make(map[incidentKey]*Incident),
		stallFrames: make(map[int64]int),
		lastSpeed:   make(map[int64]float64),
		closedTotal: make(map[IncidentType]int),
	}
}

// SetConfig replaces the rule thresholds (used for runtime tuning updates).
// Open incidents are re-judged against the new thresholds next frame.
func (ic *IncidentClassifier) SetConfig(config IncidentConfig) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if config.HistoryLimit < 1 {
		config.HistoryLimit = 100
	}
	ic.config = config
}

// Evaluate runs all rules against the current frame and returns a snapshot
// of the open incidents, sorted by descending duration.
func (ic *IncidentClassifier) Evaluate(current []Observation, trajs map[int64]Trajectory, kin map[int64]KinematicState, nowNanos int64) []Incident {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	present := make(map[int64]Observation, len(current))
	for _, obs := range current {
		present[obs.ID] = obs
	}

	firing := make(map[incidentKey]*ruleResult)

	for _, obs := range current {
		ks, hasKin := kin[obs.ID]
		if !hasKin {
			continue
		}

		ic.evalStalled(obs, ks, firing)
		ic.evalSuddenSpeedChange(obs, ks, firing)
		ic.evalErratic(obs, trajs[obs.ID], firing)
	}
	ic.evalPotentialAccidents(current, kin, firing)

	// Record last speeds for the next frame's sudden-change rule.
	for id := range ic.lastSpeed {
		if _, ok := present[id]; !ok {
			delete(ic.lastSpeed, id)
			delete(ic.stallFrames, id)
		}
	}
	for _, obs := range current {
		if ks, ok := kin[obs.ID]; ok {
			ic.lastSpeed[obs.ID] = ks.SpeedPxPerFrame
		}
	}

	// Extend or open incidents for firing rules; close the rest.
	for key, res := range firing {
		if inc, ok := ic.open[key]; ok {
			inc.DurationFrames++
			inc.Position = res.position
			inc.Severity = res.severity
			inc.Value = res.value
			inc.OtherID = res.otherID
			continue
		}
		ic.open[key] = &Incident{
			IncidentID:      uuid.New().String(),
			Type:            key.typ,
			TrackID:         key.id,
			OtherID:         res.otherID,
			Position:        res.position,
			Severity:        res.severity,
			DurationFrames:  1,
			Value:           res.value,
			OpenedUnixNanos: nowNanos,
		}
	}
	for key, inc := range ic.open {
		if _, stillFiring := firing[key]; !stillFiring {
			ic.close(inc, nowNanos)
			delete(ic.open, key)
		}
	}

	out := make([]Incident, 0, len(ic.open))
	for _, inc := range ic.open {
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DurationFrames != out[j].DurationFrames {
			return out[i].DurationFrames > out[j].DurationFrames
		}
		return out[i].TrackID < out[j].TrackID
	})
	return out
}

type ruleResult struct {
	position Point
	severity Severity
	value    float64
	otherID  int64
}

func (ic *IncidentClassifier) evalStalled(obs Observation, ks KinematicState, firing map[incidentKey]*ruleResult) {
	if ks.SpeedPxPerFrame < ic.config.StallSpeedPxPerFrame {
		ic.stallFrames[obs.ID]++
	} else {
		ic.stallFrames[obs.ID] = 0
		return
	}

	frames := ic.stallFrames[obs.ID]
	if frames <= ic.config.StallFrames {
		return
	}
	sev := SeverityLow
	switch {
	case frames > ic.config.StallHighFrames:
		sev = SeverityHigh
	case frames > ic.config.StallMediumFrames:
		sev = SeverityMedium
	}
	firing[incidentKey{obs.ID, IncidentStalled}] = &ruleResult{
		position: obs.Position(),
		severity: sev,
		value:    float64(frames),
	}
}

func (ic *IncidentClassifier) evalSuddenSpeedChange(obs Observation, ks KinematicState, firing map[incidentKey]*ruleResult) {
	last, ok := ic.lastSpeed[obs.ID]
	if !ok {
		return
	}
	delta := ks.SpeedPxPerFrame - last
	if delta < 0 {
		delta = -delta
	}
	if delta <= ic.config.SpeedJumpPxPerFrame {
		return
	}
	sev := SeverityMedium
	if delta > ic.config.SpeedJumpHigh {
		sev = SeverityHigh
	}
	firing[incidentKey{obs.ID, IncidentSuddenSpeedChange}] = &ruleResult{
		position: obs.Position(),
		severity: sev,
		value:    delta,
	}
}

func (ic *IncidentClassifier) evalErratic(obs Observation, traj Trajectory, firing map[incidentKey]*ruleResult) {
	steps := traj.StepDistances(ic.config.ErraticWindow)
	if len(steps) < 4 {
		return
	}
	variance := stat.Variance(steps, nil)
	if variance <= ic.config.ErraticVariance {
		return
	}
	sev := SeverityMedium
	if variance > ic.config.ErraticHighVariance {
		sev = SeverityHigh
	}
	firing[incidentKey{obs.ID, IncidentErratic}] = &ruleResult{
		position: obs.Position(),
		severity: sev,
		value:    variance,
	}
}

// evalPotentialAccidents flags pairs whose boxes overlap beyond the IoU
// threshold while at least one participant has recent nonzero speed. Keyed
// by the lower identity so a pair maps to one state machine.
func (ic *IncidentClassifier) evalPotentialAccidents(current []Observation, kin map[int64]KinematicState, firing map[incidentKey]*ruleResult) {
	for i := 0; i < len(current); i++ {
		for j := i + 1; j < len(current); j++ {
			a, b := current[i], current[j]
			iou := a.BBox.IoU(b.BBox)
			if iou <= ic.config.AccidentIoU {
				continue
			}
			ka, okA := kin[a.ID]
			kb, okB := kin[b.ID]
			moving := (okA && ka.SpeedPxPerFrame > ic.config.StallSpeedPxPerFrame) ||
				(okB && kb.SpeedPxPerFrame > ic.config.StallSpeedPxPerFrame)
			if !moving {
				continue
			}

			lo, hi := a, b
			if b.ID < a.ID {
				lo, hi = b, a
			}
			sev := SeverityHigh
			if iou <= ic.config.AccidentHighIoU {
				sev = SeverityMedium
			}
			firing[incidentKey{lo.ID, IncidentPotentialAccident}] = &ruleResult{
				position: lo.Position(),
				severity: sev,
				value:    iou,
				otherID:  hi.ID,
			}
		}
	}
}

func (ic *IncidentClassifier) close(inc *Incident, nowNanos int64) {
	inc.ClosedUnixNanos = nowNanos
	ic.closedTotal[inc.Type]++
	ic.history = append(ic.history, *inc)
	if len(ic.history) > ic.config.HistoryLimit {
		ic.history = ic.history[len(ic.history)-ic.config.HistoryLimit:]
	}
}

// GetIncidents returns a snapshot of currently-open incidents.
func (ic *IncidentClassifier) GetIncidents() []Incident {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	out := make([]Incident, 0, len(ic.open))
	for _, inc := range ic.open {
		out = append(out, *inc)
	}
	return out
}

// GetHistory returns the closed-incident history, oldest first.
func (ic *IncidentClassifier) GetHistory() []Incident {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	out := make([]Incident, len(ic.history))
	copy(out, ic.history)
	return out
}

// GetIncidentSummary aggregates counts by type and severity.
func (ic *IncidentClassifier) GetIncidentSummary() IncidentSummary {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	s := IncidentSummary{
		OpenByType:   make(map[IncidentType]int),
		ClosedByType: make(map[IncidentType]int),
	}
	for _, inc := range ic.open {
		s.TotalOpen++
		s.OpenByType[inc.Type]++
		if inc.Severity == SeverityHigh {
			s.HighSeverity++
		}
	}
	for typ, n := range ic.closedTotal {
		s.ClosedByType[typ] = n
	}
	return s
}
