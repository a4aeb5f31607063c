// Package monitor provides debugging visualisations for the traffic
// pipeline: browser charts rendered with go-echarts and PNG trend plots
// for offline runs. None of this is part of the stable API surface.
package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/traffic.report/internal/traffic"
)

// Sample is one recorded frame of headline figures.
type Sample struct {
	FrameIndex    int64
	Timestamp     time.Time
	VehicleCount  int
	RiskIndex     float64
	Congestion    float64
	MeanSpeedMps  float64
	OpenIncidents int
}

// Monitor keeps a bounded in-memory trail of per-frame samples for the
// debug charts. It is fed from the ingest loop after each report.
type Monitor struct {
	mu      sync.Mutex
	limit   int
	samples []Sample
}

// NewMonitor creates a monitor retaining up to limit samples.
func NewMonitor(limit int) *Monitor {
	if limit < 1 {
		limit = 1800 // one minute at 30fps
	}
	return &Monitor{limit: limit}
}

// Record appends a sample extracted from a frame report.
func (m *Monitor) Record(rep *traffic.Report) {
	if rep == nil {
		return
	}
	s := Sample{
		FrameIndex:    rep.FrameIndex,
		Timestamp:     time.Unix(0, rep.TSUnixNanos),
		VehicleCount:  rep.VehicleCount,
		RiskIndex:     rep.RiskIndex,
		Congestion:    rep.CongestionRatio,
		MeanSpeedMps:  rep.SpeedSummary.MeanMps,
		OpenIncidents: len(rep.OpenIncidents),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	if len(m.samples) > m.limit {
		// drop the oldest half rather than shifting every frame
		keep := m.limit / 2
		m.samples = append(m.samples[:0], m.samples[len(m.samples)-keep:]...)
	}
}

// Samples returns a copy of the recorded trail, oldest first.
func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// Len returns the number of retained samples.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}
