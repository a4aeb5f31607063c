package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// TrendPlotter renders the recorded sample trail to PNG line plots after
// an offline run. One plot per headline metric.
type TrendPlotter struct {
	outputDir string
}

// NewTrendPlotter creates a plotter writing into outputDir.
func NewTrendPlotter(outputDir string) *TrendPlotter {
	return &TrendPlotter{outputDir: outputDir}
}

// Save renders the trail to one PNG per metric. Returns the list of files
// written.
func (tp *TrendPlotter) Save(samples []Sample) ([]string, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}
	if err := os.MkdirAll(tp.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	metrics := []struct {
		name  string
		yLab  string
		color color.RGBA
		value func(Sample) float64
	}{
		{"risk_index", "risk (0-100)", color.RGBA{R: 220, G: 50, B: 47, A: 255},
			func(s Sample) float64 { return s.RiskIndex }},
		{"vehicle_count", "vehicles", color.RGBA{R: 38, G: 139, B: 210, A: 255},
			func(s Sample) float64 { return float64(s.VehicleCount) }},
		{"congestion", "congestion ratio", color.RGBA{R: 133, G: 153, B: 0, A: 255},
			func(s Sample) float64 { return s.Congestion }},
		{"mean_speed", "mean speed (m/s)", color.RGBA{R: 181, G: 137, B: 0, A: 255},
			func(s Sample) float64 { return s.MeanSpeedMps }},
	}

	var files []string
	for _, m := range metrics {
		pts := make(plotter.XYs, len(samples))
		for i, s := range samples {
			pts[i].X = float64(s.FrameIndex)
			pts[i].Y = m.value(s)
		}

		p := plot.New()
		p.Title.Text = m.name
		p.X.Label.Text = "frame"
		p.Y.Label.Text = m.yLab

		line, err := plotter.NewLine(pts)
		if err != nil {
			return files, fmt.Errorf("failed to build %s line: %w", m.name, err)
		}
		line.Color = m.color
		line.Width = vg.Points(1)
		p.Add(line)

		file := filepath.Join(tp.outputDir, m.name+".png")
		if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
			return files, fmt.Errorf("failed to save %s: %w", m.name, err)
		}
		files = append(files, file)
	}
	return files, nil
}
