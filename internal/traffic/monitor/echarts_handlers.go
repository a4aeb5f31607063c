package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/traffic.report/internal/traffic"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// DebugHandlers serves the debugging chart endpoints. These are
// unauthenticated and intended for local inspection only.
type DebugHandlers struct {
	monitor *Monitor
	pipe    *traffic.Pipeline
}

// NewDebugHandlers wires the chart endpoints to a monitor and pipeline.
func NewDebugHandlers(monitor *Monitor, pipe *traffic.Pipeline) *DebugHandlers {
	return &DebugHandlers{monitor: monitor, pipe: pipe}
}

// Register attaches the debug routes to a mux.
func (dh *DebugHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/charts/", dh.handleDashboard)
	mux.HandleFunc("/debug/charts/risk", dh.handleRiskTrend)
	mux.HandleFunc("/debug/charts/heatmap", dh.handleHeatmap)
}

func (dh *DebugHandlers) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleRiskTrend renders a line chart of risk index, vehicle count and
// congestion over the recorded sample trail.
func (dh *DebugHandlers) handleRiskTrend(w http.ResponseWriter, r *http.Request) {
	samples := dh.monitor.Samples()
	if len(samples) == 0 {
		dh.writeJSONError(w, http.StatusNotFound, "no samples recorded yet")
		return
	}

	x := make([]string, len(samples))
	risk := make([]opts.LineData, len(samples))
	count := make([]opts.LineData, len(samples))
	congestion := make([]opts.LineData, len(samples))
	for i, s := range samples {
		x[i] = s.Timestamp.Format("15:04:05.000")
		risk[i] = opts.LineData{Value: s.RiskIndex}
		count[i] = opts.LineData{Value: s.VehicleCount}
		congestion[i] = opts.LineData{Value: s.Congestion * 100}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Traffic Risk Trend", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Risk Trend", Subtitle: fmt.Sprintf("samples=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "value"}),
	)
	line.SetXAxis(x).
		AddSeries("risk index", risk).
		AddSeries("vehicles", count).
		AddSeries("congestion %", congestion)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		dh.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleHeatmap renders the temporal density grid as an ECharts heatmap.
func (dh *DebugHandlers) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	grid := dh.pipe.Heatmap()
	cols, rows := grid.Dims()
	temporal := grid.TemporalSnapshot()
	if len(temporal) == 0 {
		dh.writeJSONError(w, http.StatusNotFound, "no heatmap data available")
		return
	}

	data := make([]opts.HeatMapData, 0, len(temporal))
	maxVal := 0.0
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := temporal[y*cols+x]
			if v > maxVal {
				maxVal = v
			}
			// flip Y so the chart matches image coordinates
			data = append(data, opts.HeatMapData{Value: [3]interface{}{x, rows - 1 - y, v}})
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	xAxis := make([]int, cols)
	for i := range xAxis {
		xAxis[i] = i
	}
	yAxis := make([]int, rows)
	for i := range yAxis {
		yAxis[i] = i
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Traffic Density Heatmap", Theme: "dark", Width: "1200px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Temporal Density", Subtitle: time.Now().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xAxis}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: yAxis}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxVal),
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	hm.AddSeries("density", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		dh.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head><title>Traffic Debug Charts</title></head>
<body style="margin:0;background:#111;color:#ddd;font-family:sans-serif">
<h2 style="padding:8px">Traffic Debug Charts</h2>
<iframe src="/debug/charts/risk" style="width:100%;height:640px;border:none"></iframe>
<iframe src="/debug/charts/heatmap" style="width:100%;height:740px;border:none"></iframe>
</body>
</html>`

// handleDashboard renders a simple dashboard with iframes to the debug charts.
func (dh *DebugHandlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/debug/charts/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, dashboardHTML)
}
