package traffic

// Report is the immutable per-frame output of the pipeline: the sole
// interface consumed by the rendering/UI collaborator. All fields are plain
// structured data with no rendering concerns.
type Report struct {
	FrameIndex  int64 `json:"frame_index"`
	TSUnixNanos int64 `json:"ts_unix_nanos"`

	VehicleCount     int     `json:"vehicle_count"`
	RiskIndex        float64 `json:"risk_index"` // 0-100
	Recommendation   string  `json:"recommendation"`
	EmissionsGPerMin float64 `json:"emissions_g_per_min"`

	Kinematics   map[int64]KinematicState `json:"kinematics"`
	SpeedSummary SpeedSummary             `json:"speed_summary"`

	CollisionAlerts []CollisionAlert `json:"collision_alerts"`

	OpenIncidents   []Incident      `json:"open_incidents"`
	IncidentSummary IncidentSummary `json:"incident_summary"`

	Hotspots         []HeatmapCell      `json:"hotspots"`
	RegionCongestion map[string]float64 `json:"region_congestion"`
	CongestionRatio  float64            `json:"congestion_ratio"`

	Forecasts          map[Metric]ForecastSnapshot `json:"forecasts"`
	CongestionForecast CongestionForecast          `json:"congestion_forecast"`
	Anomalies          []AnomalyEvent              `json:"anomalies"`

	Totals     AggregateTotals `json:"totals"`
	Violations []Violation     `json:"violations,omitempty"`

	// Warnings surfaces per-frame degradations such as dropped malformed
	// observations; the frame itself still completes.
	Warnings []string `json:"warnings,omitempty"`
}
