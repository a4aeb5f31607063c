package traffic

import (
	"fmt"
	"sync"
	"time"
)

// PipelineConfig carries the per-module configuration for a Pipeline.
type PipelineConfig struct {
	Store     TrajectoryStoreConfig
	Collision CollisionConfig
	Incident  IncidentConfig
	Heatmap   HeatmapConfig
	Forecast  ForecastConfig

	PixelsPerMeter float64
	FPS            float64

	// Concurrent runs the independent analysis stages in parallel per
	// frame. Off by default; single-threaded is deterministic and fast
	// enough for typical track counts.
	Concurrent bool
}

// DefaultPipelineConfig returns the configuration used when no tuning
// overrides are supplied.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Store:          DefaultTrajectoryStoreConfig(),
		Collision:      DefaultCollisionConfig(),
		Incident:       DefaultIncidentConfig(),
		Heatmap:        DefaultHeatmapConfig(),
		Forecast:       DefaultForecastConfig(),
		PixelsPerMeter: DefaultPixelsPerMeter,
		FPS:            DefaultFPS,
	}
}

// Pipeline wires the analysis modules into a per-frame flow: trajectory
// update first, then kinematics, collision, incidents and heatmap (which
// only read the store), then forecasting, then the aggregate report.
type Pipeline struct {
	config PipelineConfig

	store      *TrajectoryStore
	calib      *Calibration
	collisions *CollisionScorer
	incidents  *IncidentClassifier
	grid       *DensityGrid
	forecaster *Forecaster
	agg        *Aggregator
	stats      *FrameStats
	metrics    *Metrics

	mu         sync.Mutex
	frameIdx   int64
	lastTS     int64
	lastReport *Report
}

// NewPipeline builds a pipeline from config. Returns an error when any
// sub-configuration is unusable rather than silently correcting it.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.PixelsPerMeter <= 0 {
		return nil, fmt.Errorf("pipeline: pixels per meter must be positive, got %v", config.PixelsPerMeter)
	}
	if config.FPS <= 0 {
		return nil, fmt.Errorf("pipeline: fps must be positive, got %v", config.FPS)
	}
	if config.Store.Capacity <= 0 {
		return nil, fmt.Errorf("pipeline: trajectory capacity must be positive, got %d", config.Store.Capacity)
	}
	if config.Heatmap.CellSize <= 0 {
		return nil, fmt.Errorf("pipeline: heatmap cell size must be positive, got %d", config.Heatmap.CellSize)
	}
	if config.Heatmap.Decay <= 0 || config.Heatmap.Decay >= 1 {
		return nil, fmt.Errorf("pipeline: heatmap decay must be in (0,1), got %v", config.Heatmap.Decay)
	}
	if config.Forecast.Alpha <= 0 || config.Forecast.Alpha > 1 {
		return nil, fmt.Errorf("pipeline: forecast alpha must be in (0,1], got %v", config.Forecast.Alpha)
	}
	if config.Forecast.Beta <= 0 || config.Forecast.Beta > 1 {
		return nil, fmt.Errorf("pipeline: forecast beta must be in (0,1], got %v", config.Forecast.Beta)
	}

	return &Pipeline{
		config:     config,
		store:      NewTrajectoryStore(config.Store),
		calib:      NewCalibration(config.PixelsPerMeter, config.FPS),
		collisions: NewCollisionScorer(config.Collision),
		incidents:  NewIncidentClassifier(config.Incident),
		grid:       NewDensityGrid(config.Heatmap),
		forecaster: NewForecaster(config.Forecast),
		agg:        NewAggregator(),
		stats:      NewFrameStats(),
		metrics:    NewMetrics(),
	}, nil
}

// Calibration returns the shared pixel-to-meter calibration.
func (p *Pipeline) Calibration() *Calibration { return p.calib }

// Metrics returns the Prometheus instrumentation for this pipeline.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Stats returns the frame processing counters.
func (p *Pipeline) Stats() *FrameStats { return p.stats }

// Incidents returns the incident classifier for history queries.
func (p *Pipeline) Incidents() *IncidentClassifier { return p.incidents }

// Heatmap returns the density grid for visualisation handlers.
func (p *Pipeline) Heatmap() *DensityGrid { return p.grid }

// RecordViolation feeds an externally-detected violation into the
// aggregate counters. It appears in the next frame's report.
func (p *Pipeline) RecordViolation(v Violation) {
	p.agg.RecordViolation(v)
}

// ResetHeatmap clears accumulated density, typically after the camera
// or sensor is repositioned.
func (p *Pipeline) ResetHeatmap() {
	p.grid.Reset()
}

// LatestReport returns the most recent frame report, or nil before the
// first frame.
func (p *Pipeline) LatestReport() *Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReport
}

// ProcessFrame ingests one frame of observations stamped tsNanos and
// produces the full analysis report. Malformed observations are dropped
// with a warning in the report rather than failing the frame. A frame
// whose timestamp does not advance past the previous frame is rejected
// outright; the pipeline stays usable for the next frame.
func (p *Pipeline) ProcessFrame(observations []Observation, tsNanos int64) (*Report, error) {
	start := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frameIdx > 0 && tsNanos <= p.lastTS {
		p.stats.AddSkippedFrame()
		p.metrics.FramesSkipped.Add(1)
		return nil, fmt.Errorf("frame timestamp %d does not advance past %d", tsNanos, p.lastTS)
	}

	var warnings []string
	valid := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if err := obs.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("dropped observation %d: %v", obs.ID, err))
			continue
		}
		o := obs
		if o.TSUnixNanos == 0 {
			o.TSUnixNanos = tsNanos
		}
		valid = append(valid, o)
	}
	dropped := len(observations) - len(valid)
	if dropped > 0 {
		p.stats.AddDropped(dropped)
		p.metrics.ObservationsDropped.Add(uint64(dropped))
	}

	// All per-track state keys off the store, so it updates before
	// anything else reads trajectories.
	p.store.Update(valid)
	trajs := p.store.GetAll()

	positions := make([]Point, len(valid))
	for i, obs := range valid {
		positions[i] = obs.Position()
	}

	var (
		kin       map[int64]KinematicState
		alerts    []CollisionAlert
		incidents []Incident
	)

	if p.config.Concurrent {
		// Kinematics feeds collision and incident scoring, so those two
		// wait on it; the heatmap only needs positions and runs free.
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			kin = EstimateAllKinematics(trajs, p.calib)
			var inner sync.WaitGroup
			inner.Add(2)
			go func() {
				defer inner.Done()
				alerts = p.collisions.Score(valid, kin)
			}()
			go func() {
				defer inner.Done()
				incidents = p.incidents.Evaluate(valid, trajs, kin, tsNanos)
			}()
			inner.Wait()
		}()
		go func() {
			defer wg.Done()
			p.grid.Update(positions)
		}()
		wg.Wait()
	} else {
		kin = EstimateAllKinematics(trajs, p.calib)
		alerts = p.collisions.Score(valid, kin)
		incidents = p.incidents.Evaluate(valid, trajs, kin, tsNanos)
		p.grid.Update(positions)
	}

	speeds := SummariseSpeeds(kin)
	congestion := p.grid.CongestionRatio()

	p.forecaster.Observe(float64(len(valid)), speeds.MeanMps, congestion, tsNanos)
	forecasts := p.forecaster.Snapshot()
	congestionTrend := forecasts[MetricCongestion].Trend

	p.agg.ObserveFrame(valid)

	p.frameIdx++
	p.lastTS = tsNanos

	report := &Report{
		FrameIndex:         p.frameIdx,
		TSUnixNanos:        tsNanos,
		VehicleCount:       len(valid),
		RiskIndex:          RiskIndex(alerts, incidents, congestion),
		Recommendation:     SignalRecommendation(len(valid), congestionTrend),
		Kinematics:         kin,
		SpeedSummary:       speeds,
		CollisionAlerts:    alerts,
		OpenIncidents:      incidents,
		IncidentSummary:    p.incidents.GetIncidentSummary(),
		Hotspots:           p.grid.Hotspots(p.config.Heatmap.HotspotThreshold),
		RegionCongestion:   p.grid.RegionCongestion(),
		CongestionRatio:    congestion,
		Forecasts:          forecasts,
		CongestionForecast: p.forecaster.GetCongestionForecast(),
		Anomalies:          p.forecaster.Anomalies(),
		Totals:             p.agg.Totals(),
		Violations:         p.agg.Violations(),
		Warnings:           warnings,
	}
	report.EmissionsGPerMin = EstimateEmissions(report.Totals.PerClass)

	p.lastReport = report

	p.stats.AddFrame(len(valid), time.Since(start))
	p.metrics.FramesProcessed.Add(1)
	p.metrics.ObservationsSeen.Add(uint64(len(valid)))
	p.metrics.recordReport(report, p.store.Len())

	return report, nil
}
