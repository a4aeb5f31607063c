package traffic

import (
	"github.com/banshee-data/traffic.report/internal/config"
)

// PipelineConfigFromTuning builds a full pipeline configuration from a
// tuning config, filling unset fields from the built-in defaults.
func PipelineConfigFromTuning(t *config.TuningConfig) PipelineConfig {
	if t == nil {
		return DefaultPipelineConfig()
	}
	return PipelineConfig{
		Store: TrajectoryStoreConfig{
			Capacity:           t.GetTrajectoryCapacity(),
			AbsenceGraceFrames: t.GetAbsenceGraceFrames(),
		},
		Collision: CollisionConfig{
			SafetyDistance: t.GetSafetyDistance(),
			ClearMargin:    t.GetCollisionClearMargin(),
			Sensitivity:    t.GetCollisionSensitivity(),
		},
		Incident: IncidentConfig{
			StallSpeedPxPerFrame: t.GetStallSpeedThreshold(),
			StallFrames:          t.GetStallFrames(),
			StallMediumFrames:    3 * t.GetStallFrames(),
			StallHighFrames:      6 * t.GetStallFrames(),
			ErraticVariance:      t.GetErraticVarianceMedium(),
			ErraticHighVariance:  t.GetErraticVarianceHigh(),
			ErraticWindow:        10,
			AccidentIoU:          t.GetAccidentIoUMedium(),
			AccidentHighIoU:      t.GetAccidentIoUHigh(),
			SpeedJumpPxPerFrame:  t.GetSpeedJumpMedium(),
			SpeedJumpHigh:        t.GetSpeedJumpHigh(),
			HistoryLimit:         100,
		},
		Heatmap: HeatmapConfig{
			FrameWidth:       t.GetFrameWidth(),
			FrameHeight:      t.GetFrameHeight(),
			CellSize:         t.GetHeatmapCellSize(),
			Decay:            t.GetHeatmapDecay(),
			Saturation:       t.GetHeatmapSaturation(),
			BlurRadius:       t.GetHeatmapBlurRadius(),
			FrameSaturation:  t.GetFrameSaturation(),
			HotspotThreshold: t.GetHotspotThreshold(),
		},
		Forecast: ForecastConfig{
			Alpha:                t.GetForecastAlpha(),
			Beta:                 t.GetForecastBeta(),
			HistoryLength:        t.GetForecastHistory(),
			Horizon:              t.GetForecastHorizon(),
			MinHistoryForAnomaly: t.GetMinAnomalyHistory(),
			AnomalyZ:             2.5,
			AnomalyHighZ:         3.0,
		},
		PixelsPerMeter: t.GetPixelsPerMeter(),
		FPS:            t.GetFPS(),
		Concurrent:     t.GetConcurrent(),
	}
}

// ApplyTuning applies the runtime-safe subset of a tuning update to a live
// pipeline: collision thresholds, incident thresholds, hotspot threshold and
// scene calibration. Structural parameters (grid geometry, buffer capacities,
// forecast smoothing) require a restart and are ignored here.
func (p *Pipeline) ApplyTuning(t *config.TuningConfig) error {
	if t == nil {
		return nil
	}
	if err := t.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t.SafetyDistance != nil || t.CollisionSensitivity != nil || t.CollisionClearMargin != nil {
		cc := p.collisions.Config()
		if t.SafetyDistance != nil {
			cc.SafetyDistance = *t.SafetyDistance
		}
		if t.CollisionSensitivity != nil {
			cc.Sensitivity = *t.CollisionSensitivity
		}
		if t.CollisionClearMargin != nil {
			cc.ClearMargin = *t.CollisionClearMargin
		}
		p.collisions.SetConfig(cc)
		p.config.Collision = cc
	}

	ic := p.config.Incident
	updatedIncidents := false
	if t.StallSpeedThreshold != nil {
		ic.StallSpeedPxPerFrame = *t.StallSpeedThreshold
		updatedIncidents = true
	}
	if t.StallFrames != nil {
		ic.StallFrames = *t.StallFrames
		ic.StallMediumFrames = 3 * *t.StallFrames
		ic.StallHighFrames = 6 * *t.StallFrames
		updatedIncidents = true
	}
	if t.ErraticVarianceMedium != nil {
		ic.ErraticVariance = *t.ErraticVarianceMedium
		updatedIncidents = true
	}
	if t.ErraticVarianceHigh != nil {
		ic.ErraticHighVariance = *t.ErraticVarianceHigh
		updatedIncidents = true
	}
	if t.AccidentIoUMedium != nil {
		ic.AccidentIoU = *t.AccidentIoUMedium
		updatedIncidents = true
	}
	if t.AccidentIoUHigh != nil {
		ic.AccidentHighIoU = *t.AccidentIoUHigh
		updatedIncidents = true
	}
	if t.SpeedJumpMedium != nil {
		ic.SpeedJumpPxPerFrame = *t.SpeedJumpMedium
		updatedIncidents = true
	}
	if t.SpeedJumpHigh != nil {
		ic.SpeedJumpHigh = *t.SpeedJumpHigh
		updatedIncidents = true
	}
	if updatedIncidents {
		p.incidents.SetConfig(ic)
		p.config.Incident = ic
	}

	if t.HotspotThreshold != nil {
		p.config.Heatmap.HotspotThreshold = *t.HotspotThreshold
	}

	if t.PixelsPerMeter != nil || t.FPS != nil {
		ppm := p.calib.PixelsPerMeter()
		fps := p.calib.FPS()
		if t.PixelsPerMeter != nil {
			ppm = *t.PixelsPerMeter
		}
		if t.FPS != nil {
			fps = *t.FPS
		}
		p.calib.Set(ppm, fps)
	}

	return nil
}

// TuningSnapshot reports the pipeline's effective tuning values in the same
// schema accepted by ApplyTuning.
func (p *Pipeline) TuningSnapshot() *config.TuningConfig {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := p.config
	t := config.EmptyTuningConfig()
	ppm := p.calib.PixelsPerMeter()
	fps := p.calib.FPS()
	t.PixelsPerMeter = &ppm
	t.FPS = &fps
	t.FrameWidth = &cfg.Heatmap.FrameWidth
	t.FrameHeight = &cfg.Heatmap.FrameHeight
	t.TrajectoryCapacity = &cfg.Store.Capacity
	t.AbsenceGraceFrames = &cfg.Store.AbsenceGraceFrames
	t.SafetyDistance = &cfg.Collision.SafetyDistance
	t.CollisionSensitivity = &cfg.Collision.Sensitivity
	t.CollisionClearMargin = &cfg.Collision.ClearMargin
	t.StallSpeedThreshold = &cfg.Incident.StallSpeedPxPerFrame
	t.StallFrames = &cfg.Incident.StallFrames
	t.ErraticVarianceMedium = &cfg.Incident.ErraticVariance
	t.ErraticVarianceHigh = &cfg.Incident.ErraticHighVariance
	t.AccidentIoUMedium = &cfg.Incident.AccidentIoU
	t.AccidentIoUHigh = &cfg.Incident.AccidentHighIoU
	t.SpeedJumpMedium = &cfg.Incident.SpeedJumpPxPerFrame
	t.SpeedJumpHigh = &cfg.Incident.SpeedJumpHigh
	t.HeatmapCellSize = &cfg.Heatmap.CellSize
	t.HeatmapDecay = &cfg.Heatmap.Decay
	t.HeatmapSaturation = &cfg.Heatmap.Saturation
	t.HeatmapBlurRadius = &cfg.Heatmap.BlurRadius
	t.FrameSaturation = &cfg.Heatmap.FrameSaturation
	t.HotspotThreshold = &cfg.Heatmap.HotspotThreshold
	t.ForecastAlpha = &cfg.Forecast.Alpha
	t.ForecastBeta = &cfg.Forecast.Beta
	t.ForecastHistory = &cfg.Forecast.HistoryLength
	t.ForecastHorizon = &cfg.Forecast.Horizon
	t.MinAnomalyHistory = &cfg.Forecast.MinHistoryForAnomaly
	t.Concurrent = &cfg.Concurrent
	return t
}
