package traffic

import (
	"math"
	"testing"
)

// headOnPair builds two 20x20 boxes whose centres sit gap pixels apart on the
// x axis, with kinematics approaching each other at 5 px/frame each.
func headOnPair(gap float64) ([]Observation, map[int64]KinematicState) {
	obs := []Observation{
		{ID: 1, BBox: BBox{X: -10, Y: -10, W: 20, H: 20}, Class: "car", Confidence: 0.9},
		{ID: 2, BBox: BBox{X: gap - 10, Y: -10, W: 20, H: 20}, Class: "car", Confidence: 0.9},
	}
	kin := map[int64]KinematicState{
		1: {VX: 5, VY: 0},
		2: {VX: -5, VY: 0},
	}
	return obs, kin
}

func TestCollisionHeadOnApproach(t *testing.T) {
	scorer := NewCollisionScorer(DefaultCollisionConfig())

	obs, kin := headOnPair(40)
	alerts := scorer.Score(obs, kin)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}

	a := alerts[0]
	if a.IDA != 1 || a.IDB != 2 {
		t.Errorf("pair = (%d, %d), want (1, 2)", a.IDA, a.IDB)
	}
	if a.Distance != 40 {
		t.Errorf("distance = %v, want 40", a.Distance)
	}
	if a.Risk < 0.6 || a.Risk > 1 {
		t.Errorf("risk = %v, want within [0.6, 1]", a.Risk)
	}
	// minSafe = 28.28 + 50; distance term 1-40/78.28, closing term near 1.
	wantRisk := 0.6*(1-40/78.284271) + 0.4*((400.0/40.1)/10.1)
	if math.Abs(a.Risk-wantRisk) > 1e-3 {
		t.Errorf("risk = %v, want about %v", a.Risk, wantRisk)
	}
}

func TestCollisionBelowSensitivity(t *testing.T) {
	scorer := NewCollisionScorer(DefaultCollisionConfig())

	// At 60px the pair still closes but the distance term shrinks; risk
	// lands near 0.53, below the 0.6 default threshold.
	obs, kin := headOnPair(60)
	if alerts := scorer.Score(obs, kin); len(alerts) != 0 {
		t.Fatalf("alerts = %v, want none at default sensitivity", alerts)
	}

	// A more sensitive threshold surfaces the same pair.
	scorer.SetConfig(CollisionConfig{SafetyDistance: 50, ClearMargin: 40, Sensitivity: 0.4})
	if alerts := scorer.Score(obs, kin); len(alerts) != 1 {
		t.Fatal("lowered sensitivity should surface the pair")
	}
}

func TestCollisionZeroRiskCases(t *testing.T) {
	scorer := NewCollisionScorer(DefaultCollisionConfig())

	t.Run("stationary pair", func(t *testing.T) {
		obs, _ := headOnPair(40)
		kin := map[int64]KinematicState{1: {}, 2: {}}
		if alerts := scorer.Score(obs, kin); len(alerts) != 0 {
			t.Errorf("stationary pair produced alerts: %v", alerts)
		}
	})

	t.Run("separating pair", func(t *testing.T) {
		obs, _ := headOnPair(40)
		kin := map[int64]KinematicState{
			1: {VX: -5}, // moving apart
			2: {VX: 5},
		}
		if alerts := scorer.Score(obs, kin); len(alerts) != 0 {
			t.Errorf("separating pair produced alerts: %v", alerts)
		}
	})

	t.Run("beyond clear margin", func(t *testing.T) {
		// minSafe+margin is about 118px; 500px is far clear.
		obs, kin := headOnPair(500)
		if alerts := scorer.Score(obs, kin); len(alerts) != 0 {
			t.Errorf("distant pair produced alerts: %v", alerts)
		}
	})

	t.Run("missing kinematics", func(t *testing.T) {
		obs, _ := headOnPair(40)
		kin := map[int64]KinematicState{1: {VX: 5}} // id 2 unknown
		if alerts := scorer.Score(obs, kin); len(alerts) != 0 {
			t.Errorf("pair with missing kinematics produced alerts: %v", alerts)
		}
	})
}

func TestCollisionAlertsSortedByRisk(t *testing.T) {
	scorer := NewCollisionScorer(CollisionConfig{SafetyDistance: 50, ClearMargin: 40, Sensitivity: 0.3})

	// Three objects on a line: 1 and 2 close fast, 3 trails slowly behind 2.
	obs := []Observation{
		{ID: 1, BBox: BBox{X: -10, Y: -10, W: 20, H: 20}, Confidence: 0.9},
		{ID: 2, BBox: BBox{X: 30, Y: -10, W: 20, H: 20}, Confidence: 0.9},
		{ID: 3, BBox: BBox{X: 90, Y: -10, W: 20, H: 20}, Confidence: 0.9},
	}
	kin := map[int64]KinematicState{
		1: {VX: 8},
		2: {VX: 0},
		3: {VX: -3},
	}

	alerts := scorer.Score(obs, kin)
	if len(alerts) < 2 {
		t.Fatalf("alerts = %d, want at least 2", len(alerts))
	}
	for i := 1; i < len(alerts); i++ {
		if alerts[i].Risk > alerts[i-1].Risk {
			t.Errorf("alerts not sorted by descending risk: %v", alerts)
		}
	}
	if alerts[0].IDA != 1 || alerts[0].IDB != 2 {
		t.Errorf("highest risk pair = (%d, %d), want (1, 2)", alerts[0].IDA, alerts[0].IDB)
	}
}

func TestCollisionRiskBounded(t *testing.T) {
	scorer := NewCollisionScorer(CollisionConfig{SafetyDistance: 200, ClearMargin: 100, Sensitivity: 0.1})

	// Overlapping boxes converging hard: risk must still clamp to [0,1].
	obs := []Observation{
		{ID: 1, BBox: BBox{X: 0, Y: 0, W: 20, H: 20}, Confidence: 0.9},
		{ID: 2, BBox: BBox{X: 5, Y: 0, W: 20, H: 20}, Confidence: 0.9},
	}
	kin := map[int64]KinematicState{
		1: {VX: 50},
		2: {VX: -50},
	}

	alerts := scorer.Score(obs, kin)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Risk < 0 || alerts[0].Risk > 1 {
		t.Errorf("risk = %v, outside [0,1]", alerts[0].Risk)
	}
}
