package traffic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/traffic.report/internal/config"
	"github.com/banshee-data/traffic.report/internal/monitoring"
	"github.com/banshee-data/traffic.report/internal/units"
)

// WebServer exposes the analysis pipeline over HTTP: the latest frame
// report, rolling summaries, runtime tuning and Prometheus metrics.
type WebServer struct {
	address string
	units   string
	pipe    *Pipeline
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address  string
	Units    string // default speed units for report output
	Pipeline *Pipeline

	// ExtraRoutes, when set, is called with the mux so callers can attach
	// additional handlers (debug charts, profiling).
	ExtraRoutes func(*http.ServeMux)
}

// NewWebServer creates a web server bound to a pipeline.
func NewWebServer(cfg WebServerConfig) *WebServer {
	u := cfg.Units
	if !units.IsValid(u) {
		u = units.MPS
	}
	ws := &WebServer{
		address: cfg.Address,
		units:   u,
		pipe:    cfg.Pipeline,
	}
	mux := ws.setupRoutes()
	if cfg.ExtraRoutes != nil {
		cfg.ExtraRoutes(mux)
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: LoggingMiddleware(mux),
	}
	return ws
}

// Start begins the HTTP server in a goroutine and blocks until ctx is
// cancelled, then shuts the server down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}

	monitoring.Logf("HTTP server routine stopped")
	return nil
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/traffic/report", ws.handleReport)
	mux.HandleFunc("/api/traffic/summary", ws.handleSummary)
	mux.HandleFunc("/api/traffic/incidents", ws.handleIncidents)
	mux.HandleFunc("/api/traffic/calibrate", ws.handleCalibrate)
	mux.HandleFunc("/api/traffic/params", ws.handleParams)
	mux.HandleFunc("/api/traffic/violations", ws.handleViolations)
	mux.HandleFunc("/api/traffic/heatmap/reset", ws.handleHeatmapReset)
	mux.Handle("/metrics", ws.pipe.Metrics().Handler())

	return mux
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "traffic", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// requestUnits resolves the units query parameter, falling back to the
// server default.
func (ws *WebServer) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return ws.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid units %q, valid values: %s", u, units.GetValidUnitsString())
	}
	return u, nil
}

// convertReportSpeeds returns a shallow copy of the report with speed
// figures converted from m/s to the target units. Pixel-space values are
// untouched.
func convertReportSpeeds(rep *Report, target string) *Report {
	if target == units.MPS {
		return rep
	}
	out := *rep
	out.SpeedSummary.MeanMps = units.ConvertSpeed(rep.SpeedSummary.MeanMps, target)
	out.SpeedSummary.MinMps = units.ConvertSpeed(rep.SpeedSummary.MinMps, target)
	out.SpeedSummary.MaxMps = units.ConvertSpeed(rep.SpeedSummary.MaxMps, target)
	out.SpeedSummary.StdMps = units.ConvertSpeed(rep.SpeedSummary.StdMps, target)
	kin := make(map[int64]KinematicState, len(rep.Kinematics))
	for id, ks := range rep.Kinematics {
		ks.SpeedMps = units.ConvertSpeed(ks.SpeedMps, target)
		kin[id] = ks
	}
	out.Kinematics = kin
	return &out
}

func (ws *WebServer) handleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	target, err := ws.requestUnits(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep := ws.pipe.LatestReport()
	if rep == nil {
		ws.writeJSONError(w, http.StatusNotFound, "No frames processed yet")
		return
	}

	if err := json.NewEncoder(w).Encode(convertReportSpeeds(rep, target)); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "Failed to write report")
		return
	}
}

func (ws *WebServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	summary := map[string]interface{}{
		"stats":     ws.pipe.Stats().Snapshot(),
		"incidents": ws.pipe.Incidents().GetIncidentSummary(),
		"units":     ws.units,
	}
	if rep := ws.pipe.LatestReport(); rep != nil {
		summary["totals"] = rep.Totals
		summary["risk_index"] = rep.RiskIndex
		summary["congestion_ratio"] = rep.CongestionRatio
		summary["recommendation"] = rep.Recommendation
	}

	if err := json.NewEncoder(w).Encode(summary); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "Failed to write summary")
		return
	}
}

func (ws *WebServer) handleIncidents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	incidents := ws.pipe.Incidents().GetIncidents()
	if r.URL.Query().Get("history") == "true" {
		incidents = append(incidents, ws.pipe.Incidents().GetHistory()...)
	}

	if err := json.NewEncoder(w).Encode(incidents); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "Failed to write incidents")
		return
	}
}

func (ws *WebServer) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	pixelDist, err := strconv.ParseFloat(r.FormValue("pixel_distance"), 64)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "Invalid 'pixel_distance' parameter")
		return
	}
	meterDist, err := strconv.ParseFloat(r.FormValue("meter_distance"), 64)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "Invalid 'meter_distance' parameter")
		return
	}

	if err := ws.pipe.Calibration().Calibrate(pixelDist, meterDist); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	json.NewEncoder(w).Encode(map[string]float64{
		"pixels_per_meter": ws.pipe.Calibration().PixelsPerMeter(),
	})
}

func (ws *WebServer) handleParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		if err := json.NewEncoder(w).Encode(ws.pipe.TuningSnapshot()); err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, "Failed to write params")
		}
	case http.MethodPost:
		var t config.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid params JSON: %v", err))
			return
		}
		if err := ws.pipe.ApplyTuning(&t); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := json.NewEncoder(w).Encode(ws.pipe.TuningSnapshot()); err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, "Failed to write params")
		}
	default:
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (ws *WebServer) handleViolations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var v Violation
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid violation JSON: %v", err))
		return
	}
	if v.Type == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "Missing 'type' field")
		return
	}

	ws.pipe.RecordViolation(v)
	json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
}

func (ws *WebServer) handleHeatmapReset(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ws.pipe.ResetHeatmap()
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}
