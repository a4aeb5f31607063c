package traffic

import (
	"sort"
	"sync"
)

// HeatmapConfig configures the spatial density aggregator.
type HeatmapConfig struct {
	FrameWidth  int     // pixels
	FrameHeight int     // pixels
	CellSize    int     // pixels per grid cell
	Decay       float64 // temporal decay factor, in (0,1)
	Saturation  float64 // objects per cell at which instantaneous density = 1
	BlurRadius  int     // separable box blur radius; 0 disables smoothing

	// FrameSaturation is the scene-level object count at which the
	// congestion ratio reaches 1.
	FrameSaturation float64

	// HotspotThreshold is the minimum temporal density for a cell to be
	// reported as a hotspot.
	HotspotThreshold float64
}

// DefaultHeatmapConfig returns defaults for a 1280x720 frame.
func DefaultHeatmapConfig() HeatmapConfig {
	return HeatmapConfig{
		FrameWidth:  1280,
		FrameHeight: 720,
		CellSize:    32,
		Decay:       0.95,
		Saturation:  3,
		BlurRadius:  1,

		FrameSaturation:  20,
		HotspotThreshold: 0.5,
	}
}

// HeatmapCell is one grid cell with its density and pixel-space bounds.
type HeatmapCell struct {
	GridX   int     `json:"grid_x"`
	GridY   int     `json:"grid_y"`
	Density float64 `json:"density"` // [0,1]
	Box     BBox    `json:"box"`
}

// Region names for the fixed 3x3 macro-region congestion layout.
var regionNames = [3][3]string{
	{"top_left", "top_center", "top_right"},
	{"mid_left", "mid_center", "mid_right"},
	{"bottom_left", "bottom_center", "bottom_right"},
}

// DensityGrid maintains two views of spatial occupancy over a fixed grid:
// an instantaneous density recomputed each frame, and a temporal density
// that decays old occupancy rather than clearing it. Both are bounded,
// fixed-capacity float grids regardless of session length.
type DensityGrid struct {
	mu      sync.RWMutex
	config  HeatmapConfig
	cols    int
	rows    int
	instant []float64
	scratch []float64
	tempo   []float64

	lastCount int // objects seen in the most recent Update
}

// NewDensityGrid creates a grid covering the configured frame size.
// Non-positive dimensions fall back to defaults. Decay must already be
// in (0,1); validation happens at configuration time, not here.
func NewDensityGrid(config HeatmapConfig) *DensityGrid {
	def := DefaultHeatmapConfig()
	if config.FrameWidth < 1 {
		config.FrameWidth = def.FrameWidth
	}
	if config.FrameHeight < 1 {
		config.FrameHeight = def.FrameHeight
	}
	if config.CellSize < 1 {
		config.CellSize = def.CellSize
	}
	if config.Saturation <= 0 {
		config.Saturation = def.Saturation
	}
	if config.FrameSaturation <= 0 {
		config.FrameSaturation = def.FrameSaturation
	}

	cols := (config.FrameWidth + config.CellSize - 1) / config.CellSize
	rows := (config.FrameHeight + config.CellSize - 1) / config.CellSize
	n := cols * rows
	return &DensityGrid{
		config:  config,
		cols:    cols,
		rows:    rows,
		instant: make([]float64, n),
		scratch: make([]float64, n),
		tempo:   make([]float64, n),
	}
}

// idx maps grid coordinates to the flat cell index.
func (g *DensityGrid) idx(x, y int) int { return y*g.cols + x }

// Dims returns the grid dimensions (columns, rows).
func (g *DensityGrid) Dims() (cols, rows int) { return g.cols, g.rows }

// Update recomputes the instantaneous density from the current frame's
// positions and folds it into the temporal grid. Positions outside the frame
// are clamped to the border cell.
func (g *DensityGrid) Update(positions []Point) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastCount = len(positions)
	for i := range g.instant {
		g.instant[i] = 0
	}
	for _, p := range positions {
		x := clampInt(int(p.X)/g.config.CellSize, 0, g.cols-1)
		y := clampInt(int(p.Y)/g.config.CellSize, 0, g.rows-1)
		g.instant[g.idx(x, y)]++
	}

	// Normalise counts against the saturation constant.
	for i, v := range g.instant {
		d := v / g.config.Saturation
		if d > 1 {
			d = 1
		}
		g.instant[i] = d
	}

	if g.config.BlurRadius > 0 {
		g.blur(g.config.BlurRadius)
	}

	decay := g.config.Decay
	for i := range g.tempo {
		g.tempo[i] = decay*g.tempo[i] + (1-decay)*g.instant[i]
	}
}

// blur applies a separable box blur to the instantaneous grid. A box mean
// never exceeds the input maximum, so density stays within [0,1].
func (g *DensityGrid) blur(radius int) {
	// Horizontal pass: instant -> scratch.
	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.cols; x++ {
			var sum float64
			var n int
			for k := -radius; k <= radius; k++ {
				xx := x + k
				if xx < 0 || xx >= g.cols {
					continue
				}
				sum += g.instant[g.idx(xx, y)]
				n++
			}
			g.scratch[g.idx(x, y)] = sum / float64(n)
		}
	}
	// Vertical pass: scratch -> instant.
	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.cols; x++ {
			var sum float64
			var n int
			for k := -radius; k <= radius; k++ {
				yy := y + k
				if yy < 0 || yy >= g.rows {
					continue
				}
				sum += g.scratch[g.idx(x, yy)]
				n++
			}
			g.instant[g.idx(x, y)] = sum / float64(n)
		}
	}
}

// Hotspots returns cells whose instantaneous density exceeds threshold,
// ranked by descending density. Densities are bounded to [0,1], so any
// threshold above 1 yields an empty result.
func (g *DensityGrid) Hotspots(threshold float64) []HeatmapCell {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []HeatmapCell
	cell := float64(g.config.CellSize)
	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.cols; x++ {
			d := g.instant[g.idx(x, y)]
			if d <= threshold {
				continue
			}
			out = append(out, HeatmapCell{
				GridX:   x,
				GridY:   y,
				Density: d,
				Box:     BBox{X: float64(x) * cell, Y: float64(y) * cell, W: cell, H: cell},
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Density > out[j].Density })
	return out
}

// RegionCongestion partitions the temporal grid into a fixed 3x3 macro
// layout and reports the mean density per region, keyed by position name
// (top_left .. bottom_right).
func (g *DensityGrid) RegionCongestion() map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]float64, 9)
	rh := g.rows / 3
	rw := g.cols / 3
	for ry := 0; ry < 3; ry++ {
		for rx := 0; rx < 3; rx++ {
			y0 := ry * rh
			x0 := rx * rw
			y1 := y0 + rh
			x1 := x0 + rw
			if ry == 2 {
				y1 = g.rows
			}
			if rx == 2 {
				x1 = g.cols
			}

			var sum float64
			var n int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += g.tempo[g.idx(x, y)]
					n++
				}
			}
			mean := 0.0
			if n > 0 {
				mean = sum / float64(n)
			}
			out[regionNames[ry][rx]] = mean
		}
	}
	return out
}

// CongestionRatio is the frame-level congestion scalar fed to the
// forecaster: the most recent object count normalised by the scene
// saturation constant, in [0,1].
func (g *DensityGrid) CongestionRatio() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r := float64(g.lastCount) / g.config.FrameSaturation
	if r > 1 {
		r = 1
	}
	return r
}

// TemporalSnapshot copies out the temporal grid, row-major.
func (g *DensityGrid) TemporalSnapshot() []float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]float64, len(g.tempo))
	copy(out, g.tempo)
	return out
}

// Reset clears both grids. The temporal grid is never cleared otherwise.
func (g *DensityGrid) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.instant {
		g.instant[i] = 0
		g.tempo[i] = 0
	}
	g.lastCount = 0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
