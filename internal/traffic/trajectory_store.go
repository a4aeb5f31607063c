package traffic

import (
	"sync"
)

// Default trajectory store parameters.
const (
	// DefaultTrajectoryCapacity is the per-identity ring buffer length.
	DefaultTrajectoryCapacity = 120
	// DefaultAbsenceGraceFrames is how many frames an identity may be absent
	// before its trajectory is pruned.
	DefaultAbsenceGraceFrames = 30
)

// TrajectorySample is one recorded position for one identity.
type TrajectorySample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TSUnixNanos int64   `json:"ts_unix_nanos"`
}

// Trajectory is a chronological, bounded position history for one identity.
// It is a snapshot: callers receive their own copy scoped to the current
// frame and must not assume it tracks later updates.
type Trajectory []TrajectorySample

// Last returns the most recent sample. Callers must check len > 0 first.
func (tr Trajectory) Last() TrajectorySample {
	return tr[len(tr)-1]
}

// StepDistances returns the per-step displacement magnitudes between
// consecutive samples, at most the trailing window of them. Returns nil when
// the trajectory has fewer than two samples.
func (tr Trajectory) StepDistances(window int) []float64 {
	if len(tr) < 2 {
		return nil
	}
	start := 0
	if window > 0 && len(tr) > window {
		start = len(tr) - window
	}
	recent := tr[start:]
	steps := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		a := Point{X: recent[i-1].X, Y: recent[i-1].Y}
		b := Point{X: recent[i].X, Y: recent[i].Y}
		steps = append(steps, a.Dist(b))
	}
	return steps
}

// trajectoryRing is a fixed-capacity ring buffer of samples, oldest
// overwritten first.
type trajectoryRing struct {
	samples   []TrajectorySample
	head      int // next write position
	size      int
	lastFrame int64 // frame index of most recent append
}

func (r *trajectoryRing) append(s TrajectorySample, frame int64) {
	r.samples[r.head] = s
	r.head = (r.head + 1) % len(r.samples)
	if r.size < len(r.samples) {
		r.size++
	}
	r.lastFrame = frame
}

func (r *trajectoryRing) last() (TrajectorySample, bool) {
	if r.size == 0 {
		return TrajectorySample{}, false
	}
	idx := (r.head - 1 + len(r.samples)) % len(r.samples)
	return r.samples[idx], true
}

// snapshot copies the ring contents out in chronological order.
func (r *trajectoryRing) snapshot() Trajectory {
	out := make(Trajectory, r.size)
	start := (r.head - r.size + len(r.samples)) % len(r.samples)
	for i := 0; i < r.size; i++ {
		out[i] = r.samples[(start+i)%len(r.samples)]
	}
	return out
}

// TrajectoryStoreConfig configures the trajectory store.
type TrajectoryStoreConfig struct {
	Capacity           int // samples per identity
	AbsenceGraceFrames int // frames an identity may be absent before pruning
}

// DefaultTrajectoryStoreConfig returns the default store configuration.
func DefaultTrajectoryStoreConfig() TrajectoryStoreConfig {
	return TrajectoryStoreConfig{
		Capacity:           DefaultTrajectoryCapacity,
		AbsenceGraceFrames: DefaultAbsenceGraceFrames,
	}
}

// TrajectoryStore owns all trajectory data: a bounded per-identity history
// of positions over time. All analytics modules read from it through
// snapshot views. The store is updated exactly once per frame, before any
// reader runs.
type TrajectoryStore struct {
	mu       sync.RWMutex
	config   TrajectoryStoreConfig
	tracks   map[int64]*trajectoryRing
	frameIdx int64
	dropped  int64 // samples rejected for non-increasing timestamps
}

// NewTrajectoryStore creates a store with the given configuration. Zero or
// negative fields fall back to defaults.
func NewTrajectoryStore(config TrajectoryStoreConfig) *TrajectoryStore {
	if config.Capacity < 1 {
		config.Capacity = DefaultTrajectoryCapacity
	}
	if config.AbsenceGraceFrames < 1 {
		config.AbsenceGraceFrames = DefaultAbsenceGraceFrames
	}
	return &TrajectoryStore{
		config: config,
		tracks: make(map[int64]*trajectoryRing),
	}
}

// Update appends the current frame's positions, creating trajectories for
// identities seen for the first time and evicting the oldest sample when a
// trajectory exceeds capacity. Samples whose timestamp does not strictly
// increase the identity's history are dropped, keeping the ordering
// invariant. Identities absent for longer than the grace period are pruned.
func (s *TrajectoryStore) Update(observations []Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frameIdx++

	for _, obs := range observations {
		ring, ok := s.tracks[obs.ID]
		if !ok {
			ring = &trajectoryRing{samples: make([]TrajectorySample, s.config.Capacity)}
			s.tracks[obs.ID] = ring
		}
		if prev, ok := ring.last(); ok && obs.TSUnixNanos <= prev.TSUnixNanos {
			s.dropped++
			ring.lastFrame = s.frameIdx // still counts as seen
			continue
		}
		pos := obs.Position()
		ring.append(TrajectorySample{X: pos.X, Y: pos.Y, TSUnixNanos: obs.TSUnixNanos}, s.frameIdx)
	}

	for id, ring := range s.tracks {
		if s.frameIdx-ring.lastFrame > int64(s.config.AbsenceGraceFrames) {
			delete(s.tracks, id)
		}
	}
}

// Get returns a snapshot of one identity's trajectory. The second return is
// false when the identity is unknown.
func (s *TrajectoryStore) Get(id int64) (Trajectory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.tracks[id]
	if !ok {
		return nil, false
	}
	return ring.snapshot(), true
}

// GetAll returns snapshots of every stored trajectory, keyed by identity.
// Repeated calls between updates return equal values and never mutate state.
func (s *TrajectoryStore) GetAll() map[int64]Trajectory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]Trajectory, len(s.tracks))
	for id, ring := range s.tracks {
		out[id] = ring.snapshot()
	}
	return out
}

// Len returns the number of identities currently stored.
func (s *TrajectoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// DroppedSamples returns the count of samples rejected for violating the
// strictly-increasing timestamp invariant.
func (s *TrajectoryStore) DroppedSamples() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}
