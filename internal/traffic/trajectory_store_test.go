package traffic

import (
	"testing"
)

// obsAt builds a centred observation for tests: a 10x10 box whose centre
// lands at (x, y).
func obsAt(id int64, x, y float64, ts int64) Observation {
	return Observation{
		ID:          id,
		BBox:        BBox{X: x - 5, Y: y - 5, W: 10, H: 10},
		Class:       "car",
		Confidence:  0.9,
		TSUnixNanos: ts,
	}
}

func TestTrajectoryStoreCapacityBound(t *testing.T) {
	store := NewTrajectoryStore(TrajectoryStoreConfig{Capacity: 5, AbsenceGraceFrames: 100})

	for i := 0; i < 12; i++ {
		store.Update([]Observation{obsAt(1, float64(i), 0, int64(i+1))})
	}

	traj, ok := store.Get(1)
	if !ok {
		t.Fatal("expected trajectory for id 1")
	}
	if len(traj) != 5 {
		t.Fatalf("trajectory length = %d, want capacity 5", len(traj))
	}

	// Oldest samples evicted first: the survivors are the last five.
	for i, s := range traj {
		wantX := float64(7 + i)
		if s.X != wantX {
			t.Errorf("sample %d X = %v, want %v", i, s.X, wantX)
		}
	}
	if traj.Last().TSUnixNanos != 12 {
		t.Errorf("last sample ts = %d, want 12", traj.Last().TSUnixNanos)
	}
}

func TestTrajectoryStoreChronologicalOrder(t *testing.T) {
	store := NewTrajectoryStore(DefaultTrajectoryStoreConfig())

	for i := 0; i < 10; i++ {
		store.Update([]Observation{obsAt(7, float64(i*2), float64(i), int64(100+i))})
	}

	traj, _ := store.Get(7)
	for i := 1; i < len(traj); i++ {
		if traj[i].TSUnixNanos <= traj[i-1].TSUnixNanos {
			t.Fatalf("samples out of order at %d: %d then %d", i, traj[i-1].TSUnixNanos, traj[i].TSUnixNanos)
		}
	}
}

func TestTrajectoryStoreDropsNonIncreasingTimestamps(t *testing.T) {
	store := NewTrajectoryStore(DefaultTrajectoryStoreConfig())

	store.Update([]Observation{obsAt(1, 0, 0, 100)})
	store.Update([]Observation{obsAt(1, 10, 0, 100)}) // same ts, dropped
	store.Update([]Observation{obsAt(1, 20, 0, 50)})  // older ts, dropped
	store.Update([]Observation{obsAt(1, 30, 0, 200)})

	traj, _ := store.Get(1)
	if len(traj) != 2 {
		t.Fatalf("trajectory length = %d, want 2", len(traj))
	}
	if traj[0].X != 0 || traj[1].X != 30 {
		t.Errorf("kept samples X = %v, %v; want 0, 30", traj[0].X, traj[1].X)
	}
	if got := store.DroppedSamples(); got != 2 {
		t.Errorf("dropped samples = %d, want 2", got)
	}
}

func TestTrajectoryStorePrunesAbsentIdentities(t *testing.T) {
	store := NewTrajectoryStore(TrajectoryStoreConfig{Capacity: 10, AbsenceGraceFrames: 2})

	store.Update([]Observation{obsAt(1, 0, 0, 1), obsAt(2, 5, 5, 1)})
	if store.Len() != 2 {
		t.Fatalf("store len = %d, want 2", store.Len())
	}

	// Identity 2 disappears; identity 1 keeps reporting.
	for i := 0; i < 3; i++ {
		store.Update([]Observation{obsAt(1, float64(i), 0, int64(i+2))})
	}

	if store.Len() != 1 {
		t.Fatalf("store len = %d after grace expiry, want 1", store.Len())
	}
	if _, ok := store.Get(2); ok {
		t.Error("identity 2 should have been pruned")
	}
	if _, ok := store.Get(1); !ok {
		t.Error("identity 1 should survive")
	}
}

// A dropped sample still counts as presence, so an identity emitting only
// stale timestamps is not pruned while it keeps appearing.
func TestTrajectoryStoreDroppedSampleCountsAsSeen(t *testing.T) {
	store := NewTrajectoryStore(TrajectoryStoreConfig{Capacity: 10, AbsenceGraceFrames: 2})

	store.Update([]Observation{obsAt(1, 0, 0, 100)})
	for i := 0; i < 5; i++ {
		store.Update([]Observation{obsAt(1, 1, 1, 100)}) // always stale
	}

	if _, ok := store.Get(1); !ok {
		t.Fatal("identity 1 pruned despite being present every frame")
	}
}

func TestTrajectoryStoreSnapshotIsolation(t *testing.T) {
	store := NewTrajectoryStore(DefaultTrajectoryStoreConfig())
	store.Update([]Observation{obsAt(1, 0, 0, 1)})
	store.Update([]Observation{obsAt(1, 10, 0, 2)})

	first, _ := store.Get(1)
	second, _ := store.Get(1)
	if len(first) != len(second) {
		t.Fatalf("repeated reads differ: %d vs %d", len(first), len(second))
	}

	// Mutating a snapshot must not affect the store.
	first[0].X = 999
	third, _ := store.Get(1)
	if third[0].X == 999 {
		t.Error("snapshot mutation leaked into the store")
	}

	all := store.GetAll()
	if len(all) != 1 || len(all[1]) != 2 {
		t.Errorf("GetAll = %v, want one identity with two samples", all)
	}
}

func TestStepDistances(t *testing.T) {
	traj := Trajectory{
		{X: 0, Y: 0}, {X: 3, Y: 4}, {X: 3, Y: 4}, {X: 6, Y: 8},
	}

	steps := traj.StepDistances(0)
	want := []float64{5, 0, 5}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("step %d = %v, want %v", i, steps[i], want[i])
		}
	}

	// Window limits to the trailing samples.
	if got := traj.StepDistances(2); len(got) != 1 {
		t.Errorf("windowed steps = %v, want one step", got)
	}

	if got := (Trajectory{{X: 1, Y: 1}}).StepDistances(5); got != nil {
		t.Errorf("single-sample steps = %v, want nil", got)
	}
}
