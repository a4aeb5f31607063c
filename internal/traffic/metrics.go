package traffic

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes pipeline counters to Prometheus. Counters are plain
// atomics updated on the frame path; the registry reads them lazily on
// scrape so the frame budget is unaffected.
type Metrics struct {
	FramesProcessed     atomic.Uint64
	FramesSkipped       atomic.Uint64
	ObservationsSeen    atomic.Uint64
	ObservationsDropped atomic.Uint64
	OpenIncidents       atomic.Uint64
	CollisionAlerts     atomic.Uint64
	ActiveTracks        atomic.Uint64
	RiskIndexCenti      atomic.Uint64 // risk index * 100, gauge

	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name string
		help string
		load func() float64
	}{
		{"traffic_frames_processed_total", "Frames processed by the pipeline",
			func() float64 { return float64(m.FramesProcessed.Load()) }},
		{"traffic_frames_skipped_total", "Frames rejected before processing",
			func() float64 { return float64(m.FramesSkipped.Load()) }},
		{"traffic_observations_total", "Observations accepted into the trajectory store",
			func() float64 { return float64(m.ObservationsSeen.Load()) }},
		{"traffic_observations_dropped_total", "Malformed observations dropped",
			func() float64 { return float64(m.ObservationsDropped.Load()) }},
	}
	for _, c := range counters {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help}, c.load))
	}

	gauges := []struct {
		name string
		help string
		load func() float64
	}{
		{"traffic_open_incidents", "Currently open incidents",
			func() float64 { return float64(m.OpenIncidents.Load()) }},
		{"traffic_collision_alerts", "Collision alerts in the latest frame",
			func() float64 { return float64(m.CollisionAlerts.Load()) }},
		{"traffic_active_tracks", "Identities with stored trajectories",
			func() float64 { return float64(m.ActiveTracks.Load()) }},
		{"traffic_risk_index", "Latest 0-100 safety risk index",
			func() float64 { return float64(m.RiskIndexCenti.Load()) / 100 }},
	}
	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help}, g.load))
	}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// recordReport updates the per-frame gauges from a finished report.
func (m *Metrics) recordReport(r *Report, activeTracks int) {
	m.OpenIncidents.Store(uint64(len(r.OpenIncidents)))
	m.CollisionAlerts.Store(uint64(len(r.CollisionAlerts)))
	m.ActiveTracks.Store(uint64(activeTracks))
	m.RiskIndexCenti.Store(uint64(r.RiskIndex * 100))
}
