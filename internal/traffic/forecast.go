package traffic

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Metric names the scalar streams tracked by the forecaster.
type Metric string

const (
	MetricVehicleCount Metric = "vehicle_count"
	MetricAverageSpeed Metric = "average_speed"
	MetricCongestion   Metric = "congestion"
)

// ForecastConfig holds the Holt smoothing and anomaly parameters.
type ForecastConfig struct {
	Alpha                float64 // level smoothing, in (0,1)
	Beta                 float64 // trend smoothing, in (0,1)
	HistoryLength        int     // rolling values kept per metric
	Horizon              int     // default forecast steps
	MinHistoryForAnomaly int     // suppress z-scores on a cold state
	AnomalyZ             float64 // |z| threshold for flagging
	AnomalyHighZ         float64 // |z| threshold for high severity
}

// DefaultForecastConfig returns the default smoothing parameters.
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		Alpha:                0.3,
		Beta:                 0.1,
		HistoryLength:        60,
		Horizon:              30,
		MinHistoryForAnomaly: 10,
		AnomalyZ:             2.5,
		AnomalyHighZ:         3.0,
	}
}

// AnomalyEvent flags a metric value deviating from its rolling history.
// Derived transiently; not persisted.
type AnomalyEvent struct {
	Metric   Metric   `json:"metric"`
	Severity Severity `json:"severity"`
	ZScore   float64  `json:"z_score"`
}

// ForecastSnapshot is the per-metric forecast state exposed in reports.
type ForecastSnapshot struct {
	Level    float64   `json:"level"`
	Trend    float64   `json:"trend"`
	Forecast []float64 `json:"forecast"` // h=1..Horizon steps ahead
}

// CongestionForecast is the qualitative congestion outlook.
type CongestionForecast struct {
	Status        string    `json:"status"`
	RiskLevel     string    `json:"risk_level"`
	Current       float64   `json:"current"`
	PredictedPeak float64   `json:"predicted_peak"`
	Trend         float64   `json:"trend"`
	Predictions   []float64 `json:"predictions"`
}

// metricState is the incrementally-maintained Holt state for one stream.
// Never recomputed from scratch.
type metricState struct {
	level       float64
	trend       float64
	lastNanos   int64
	seeded      bool
	history     []float64 // ring
	histHead    int
	histSize    int
	minValue    float64
	maxValue    float64
	hasMaxClamp bool
}

func (m *metricState) push(v float64) {
	m.history[m.histHead] = v
	m.histHead = (m.histHead + 1) % len(m.history)
	if m.histSize < len(m.history) {
		m.histSize++
	}
}

func (m *metricState) values() []float64 {
	out := make([]float64, m.histSize)
	start := (m.histHead - m.histSize + len(m.history)) % len(m.history)
	for i := 0; i < m.histSize; i++ {
		out[i] = m.history[(start+i)%len(m.history)]
	}
	return out
}

func (m *metricState) clamp(v float64) float64 {
	if v < m.minValue {
		v = m.minValue
	}
	if m.hasMaxClamp && v > m.maxValue {
		v = m.maxValue
	}
	return v
}

// Forecaster maintains one independent double-exponential (Holt) smoothing
// state per tracked scalar metric, fed once per frame with frame-level
// summaries. It has no per-object state.
type Forecaster struct {
	mu     sync.Mutex
	config ForecastConfig
	states map[Metric]*metricState
}

// NewForecaster creates a forecaster for the three standard metrics.
func NewForecaster(config ForecastConfig) *Forecaster {
	def := DefaultForecastConfig()
	if config.Alpha <= 0 || config.Alpha >= 1 {
		config.Alpha = def.Alpha
	}
	if config.Beta <= 0 || config.Beta >= 1 {
		config.Beta = def.Beta
	}
	if config.HistoryLength < 2 {
		config.HistoryLength = def.HistoryLength
	}
	if config.Horizon < 1 {
		config.Horizon = def.Horizon
	}
	if config.MinHistoryForAnomaly < 2 {
		config.MinHistoryForAnomaly = def.MinHistoryForAnomaly
	}
	if config.AnomalyZ <= 0 {
		config.AnomalyZ = def.AnomalyZ
	}
	if config.AnomalyHighZ < config.AnomalyZ {
		config.AnomalyHighZ = def.AnomalyHighZ
	}

	f := &Forecaster{
		config: config,
		states: make(map[Metric]*metricState),
	}
	f.states[MetricVehicleCount] = f.newState(0, 0, false)
	f.states[MetricAverageSpeed] = f.newState(0, 0, false)
	f.states[MetricCongestion] = f.newState(0, 1, true)
	return f
}

func (f *Forecaster) newState(min, max float64, clampMax bool) *metricState {
	return &metricState{
		history:     make([]float64, f.config.HistoryLength),
		minValue:    min,
		maxValue:    max,
		hasMaxClamp: clampMax,
	}
}

// Observe feeds one frame's scalar summaries into all metric streams.
func (f *Forecaster) Observe(vehicleCount, averageSpeedMps, congestion float64, tsNanos int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.observe(MetricVehicleCount, vehicleCount, tsNanos)
	f.observe(MetricAverageSpeed, averageSpeedMps, tsNanos)
	f.observe(MetricCongestion, congestion, tsNanos)
}

func (f *Forecaster) observe(metric Metric, x float64, tsNanos int64) {
	m := f.states[metric]

	if !m.seeded {
		m.level = x
		m.trend = 0
		m.seeded = true
	} else {
		prevLevel := m.level
		m.level = f.config.Alpha*x + (1-f.config.Alpha)*(m.level+m.trend)
		m.trend = f.config.Beta*(m.level-prevLevel) + (1-f.config.Beta)*m.trend
	}
	m.lastNanos = tsNanos
	m.push(x)
}

// Forecast returns the h-step-ahead prediction for a metric, clamped to the
// metric's valid range. The second return is false before any observation.
func (f *Forecaster) Forecast(metric Metric, h int) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forecastLocked(metric, h)
}

func (f *Forecaster) forecastLocked(metric Metric, h int) (float64, bool) {
	m, ok := f.states[metric]
	if !ok || !m.seeded {
		return 0, false
	}
	return m.clamp(m.level + float64(h)*m.trend), true
}

// ForecastSeries returns predictions for steps 1..horizon. Nil before any
// observation.
func (f *Forecaster) ForecastSeries(metric Metric, horizon int) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if horizon < 1 {
		horizon = f.config.Horizon
	}
	m, ok := f.states[metric]
	if !ok || !m.seeded {
		return nil
	}
	out := make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		out[h-1] = m.clamp(m.level + float64(h)*m.trend)
	}
	return out
}

// Snapshot returns the forecast state for every metric that has been seeded.
func (f *Forecaster) Snapshot() map[Metric]ForecastSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[Metric]ForecastSnapshot, len(f.states))
	for metric, m := range f.states {
		if !m.seeded {
			continue
		}
		series := make([]float64, f.config.Horizon)
		for h := 1; h <= f.config.Horizon; h++ {
			series[h-1] = m.clamp(m.level + float64(h)*m.trend)
		}
		out[metric] = ForecastSnapshot{Level: m.level, Trend: m.trend, Forecast: series}
	}
	return out
}

// Anomalies scores the most recent value of each metric against its rolling
// history. Evaluation is suppressed while the history is shorter than the
// configured minimum or has zero spread, avoiding cold-state false
// positives.
func (f *Forecaster) Anomalies() []AnomalyEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []AnomalyEvent
	for metric, m := range f.states {
		if m.histSize < f.config.MinHistoryForAnomaly {
			continue
		}
		vals := m.values()
		mean := stat.Mean(vals, nil)
		std := stat.StdDev(vals, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		latest := vals[len(vals)-1]
		z := (latest - mean) / std
		if math.Abs(z) <= f.config.AnomalyZ {
			continue
		}
		sev := SeverityMedium
		if math.Abs(z) > f.config.AnomalyHighZ {
			sev = SeverityHigh
		}
		out = append(out, AnomalyEvent{Metric: metric, Severity: sev, ZScore: z})
	}
	return out
}

// Congestion forecast classification thresholds on the predicted peak.
const (
	congestionHeavyThreshold    = 0.7
	congestionModerateThreshold = 0.4
)

// GetCongestionForecast classifies the predicted congestion trajectory into
// a qualitative status and risk label.
func (f *Forecaster) GetCongestionForecast() CongestionForecast {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.states[MetricCongestion]
	if !m.seeded {
		return CongestionForecast{Status: "Light Traffic Ahead", RiskLevel: "Low"}
	}

	preds := make([]float64, f.config.Horizon)
	peak := 0.0
	for h := 1; h <= f.config.Horizon; h++ {
		v := m.clamp(m.level + float64(h)*m.trend)
		preds[h-1] = v
		if v > peak {
			peak = v
		}
	}

	cf := CongestionForecast{
		Current:       m.clamp(m.level),
		PredictedPeak: peak,
		Trend:         m.trend,
		Predictions:   preds,
	}
	switch {
	case peak > congestionHeavyThreshold:
		cf.Status = "Heavy Congestion Expected"
		cf.RiskLevel = "High"
	case peak > congestionModerateThreshold:
		cf.Status = "Moderate Congestion Building"
		cf.RiskLevel = "Medium"
	default:
		cf.Status = "Light Traffic Ahead"
		cf.RiskLevel = "Low"
	}
	return cf
}
