package traffic

import (
	"math"
	"testing"
)

// smallGridConfig is a 10x10 cell grid with no blur so cell values are exact.
func smallGridConfig() HeatmapConfig {
	return HeatmapConfig{
		FrameWidth:       100,
		FrameHeight:      100,
		CellSize:         10,
		Decay:            0.5,
		Saturation:       2,
		BlurRadius:       0,
		FrameSaturation:  10,
		HotspotThreshold: 0.5,
	}
}

func TestDensityGridDims(t *testing.T) {
	g := NewDensityGrid(smallGridConfig())
	cols, rows := g.Dims()
	if cols != 10 || rows != 10 {
		t.Fatalf("dims = %dx%d, want 10x10", cols, rows)
	}

	// Partial cells round up.
	g2 := NewDensityGrid(HeatmapConfig{FrameWidth: 105, FrameHeight: 95, CellSize: 10, Decay: 0.5, Saturation: 2, FrameSaturation: 10})
	cols, rows = g2.Dims()
	if cols != 11 || rows != 10 {
		t.Fatalf("dims = %dx%d, want 11x10", cols, rows)
	}
}

func TestDensityGridInstantaneous(t *testing.T) {
	g := NewDensityGrid(smallGridConfig())

	// Two objects in cell (2,3), one in cell (0,0). Saturation 2: the busy
	// cell reads 1.0, the other 0.5.
	g.Update([]Point{{25, 35}, {27, 38}, {5, 5}})

	spots := g.Hotspots(0.4)
	if len(spots) != 2 {
		t.Fatalf("hotspots = %v, want 2 cells", spots)
	}
	if spots[0].GridX != 2 || spots[0].GridY != 3 || spots[0].Density != 1 {
		t.Errorf("top hotspot = %+v, want cell (2,3) density 1", spots[0])
	}
	if spots[1].GridX != 0 || spots[1].GridY != 0 || spots[1].Density != 0.5 {
		t.Errorf("second hotspot = %+v, want cell (0,0) density 0.5", spots[1])
	}
	if spots[0].Box.X != 20 || spots[0].Box.Y != 30 || spots[0].Box.W != 10 {
		t.Errorf("hotspot box = %+v, want 10px cell at (20,30)", spots[0].Box)
	}

	// Densities never exceed 1, so a threshold above 1 is always empty.
	if spots := g.Hotspots(1.1); len(spots) != 0 {
		t.Errorf("hotspots above 1.1 = %v, want none", spots)
	}
}

func TestDensityGridClampsOutOfFrame(t *testing.T) {
	g := NewDensityGrid(smallGridConfig())

	g.Update([]Point{{-50, -50}, {5000, 5000}})

	spots := g.Hotspots(0)
	if len(spots) != 2 {
		t.Fatalf("hotspots = %v, want 2 border cells", spots)
	}
	for _, s := range spots {
		onCorner := (s.GridX == 0 && s.GridY == 0) || (s.GridX == 9 && s.GridY == 9)
		if !onCorner {
			t.Errorf("out-of-frame position landed in cell (%d,%d), want a corner", s.GridX, s.GridY)
		}
	}
}

func TestDensityGridTemporalDecay(t *testing.T) {
	g := NewDensityGrid(smallGridConfig())

	// One saturated cell for one frame, then empty frames. With decay 0.5 the
	// temporal value is 0.5 after the occupied frame, then halves each frame.
	g.Update([]Point{{5, 5}, {6, 6}})
	snap := g.TemporalSnapshot()
	if math.Abs(snap[0]-0.5) > 1e-9 {
		t.Fatalf("temporal cell = %v after first frame, want 0.5", snap[0])
	}

	g.Update(nil)
	g.Update(nil)
	snap = g.TemporalSnapshot()
	if math.Abs(snap[0]-0.125) > 1e-9 {
		t.Errorf("temporal cell = %v after two empty frames, want 0.125", snap[0])
	}
	// Decayed, not cleared.
	if snap[0] == 0 {
		t.Error("temporal grid should decay, not clear")
	}
}

func TestDensityGridBlurSpreadsAndBounds(t *testing.T) {
	config := smallGridConfig()
	config.BlurRadius = 1
	g := NewDensityGrid(config)

	// A saturated centre cell spreads into its neighbourhood.
	g.Update([]Point{{55, 55}, {56, 56}})

	spots := g.Hotspots(0)
	if len(spots) != 9 {
		t.Fatalf("blurred hotspots = %d cells, want 3x3 neighbourhood", len(spots))
	}
	// A box mean never exceeds the input maximum; all mass stays in the
	// 3x3 neighbourhood of the source cell.
	for _, s := range spots {
		if s.Density < 0 || s.Density > 1 {
			t.Errorf("cell (%d,%d) density %v outside [0,1]", s.GridX, s.GridY, s.Density)
		}
		if s.GridX < 4 || s.GridX > 6 || s.GridY < 4 || s.GridY > 6 {
			t.Errorf("blur leaked into cell (%d,%d)", s.GridX, s.GridY)
		}
	}
}

func TestDensityGridRegionCongestion(t *testing.T) {
	g := NewDensityGrid(smallGridConfig())

	// Load only the top-left region, repeatedly so the temporal grid charges.
	for i := 0; i < 20; i++ {
		g.Update([]Point{{5, 5}, {6, 6}, {15, 15}, {16, 16}})
	}

	regions := g.RegionCongestion()
	if len(regions) != 9 {
		t.Fatalf("regions = %d, want 9", len(regions))
	}
	if regions["top_left"] <= regions["bottom_right"] {
		t.Errorf("top_left %v should exceed bottom_right %v",
			regions["top_left"], regions["bottom_right"])
	}
	if regions["bottom_right"] != 0 {
		t.Errorf("bottom_right = %v, want 0", regions["bottom_right"])
	}
}

func TestDensityGridCongestionRatio(t *testing.T) {
	g := NewDensityGrid(smallGridConfig())

	if r := g.CongestionRatio(); r != 0 {
		t.Fatalf("ratio = %v before updates, want 0", r)
	}

	pts := make([]Point, 5)
	g.Update(pts)
	if r := g.CongestionRatio(); r != 0.5 {
		t.Errorf("ratio = %v with 5 of 10 objects, want 0.5", r)
	}

	pts = make([]Point, 25)
	g.Update(pts)
	if r := g.CongestionRatio(); r != 1 {
		t.Errorf("ratio = %v above saturation, want 1", r)
	}
}

func TestDensityGridReset(t *testing.T) {
	g := NewDensityGrid(smallGridConfig())
	for i := 0; i < 5; i++ {
		g.Update([]Point{{5, 5}, {50, 50}})
	}

	g.Reset()

	if spots := g.Hotspots(0); len(spots) != 0 {
		t.Errorf("hotspots after reset = %v, want none", spots)
	}
	for i, v := range g.TemporalSnapshot() {
		if v != 0 {
			t.Fatalf("temporal cell %d = %v after reset, want 0", i, v)
		}
	}
	if r := g.CongestionRatio(); r != 0 {
		t.Errorf("ratio after reset = %v, want 0", r)
	}
}
