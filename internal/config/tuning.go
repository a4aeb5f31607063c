package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/traffic/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Scene calibration
	PixelsPerMeter *float64 `json:"pixels_per_meter,omitempty"`
	FPS            *float64 `json:"fps,omitempty"`
	FrameWidth     *int     `json:"frame_width,omitempty"`
	FrameHeight    *int     `json:"frame_height,omitempty"`

	// Trajectory store params
	TrajectoryCapacity *int `json:"trajectory_capacity,omitempty"`
	AbsenceGraceFrames *int `json:"absence_grace_frames,omitempty"`

	// Collision params
	SafetyDistance       *float64 `json:"safety_distance,omitempty"`
	CollisionSensitivity *float64 `json:"collision_sensitivity,omitempty"`
	CollisionClearMargin *float64 `json:"collision_clear_margin,omitempty"`

	// Incident params
	StallSpeedThreshold   *float64 `json:"stall_speed_threshold,omitempty"`
	StallFrames           *int     `json:"stall_frames,omitempty"`
	ErraticVarianceMedium *float64 `json:"erratic_variance_medium,omitempty"`
	ErraticVarianceHigh   *float64 `json:"erratic_variance_high,omitempty"`
	AccidentIoUMedium     *float64 `json:"accident_iou_medium,omitempty"`
	AccidentIoUHigh       *float64 `json:"accident_iou_high,omitempty"`
	SpeedJumpMedium       *float64 `json:"speed_jump_medium,omitempty"`
	SpeedJumpHigh         *float64 `json:"speed_jump_high,omitempty"`

	// Heatmap params
	HeatmapCellSize   *int     `json:"heatmap_cell_size,omitempty"`
	HeatmapDecay      *float64 `json:"heatmap_decay,omitempty"`
	HeatmapSaturation *float64 `json:"heatmap_saturation,omitempty"`
	HeatmapBlurRadius *int     `json:"heatmap_blur_radius,omitempty"`
	FrameSaturation   *float64 `json:"frame_saturation,omitempty"`
	HotspotThreshold  *float64 `json:"hotspot_threshold,omitempty"`

	// Forecast params
	ForecastAlpha     *float64 `json:"forecast_alpha,omitempty"`
	ForecastBeta      *float64 `json:"forecast_beta,omitempty"`
	ForecastHistory   *int     `json:"forecast_history,omitempty"`
	ForecastHorizon   *int     `json:"forecast_horizon,omitempty"`
	MinAnomalyHistory *int     `json:"min_anomaly_history,omitempty"`

	// Pipeline params
	Concurrent    *bool   `json:"concurrent,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "60s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// The Get* accessors fall back to built-in defaults for nil fields.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid. Invalid values
// are rejected rather than silently clamped.
func (c *TuningConfig) Validate() error {
	if c.PixelsPerMeter != nil && *c.PixelsPerMeter <= 0 {
		return fmt.Errorf("pixels_per_meter must be positive, got %f", *c.PixelsPerMeter)
	}
	if c.FPS != nil && *c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %f", *c.FPS)
	}
	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}
	if c.TrajectoryCapacity != nil && *c.TrajectoryCapacity <= 0 {
		return fmt.Errorf("trajectory_capacity must be positive, got %d", *c.TrajectoryCapacity)
	}
	if c.AbsenceGraceFrames != nil && *c.AbsenceGraceFrames < 0 {
		return fmt.Errorf("absence_grace_frames must be non-negative, got %d", *c.AbsenceGraceFrames)
	}
	if c.SafetyDistance != nil && *c.SafetyDistance < 0 {
		return fmt.Errorf("safety_distance must be non-negative, got %f", *c.SafetyDistance)
	}
	if c.CollisionSensitivity != nil {
		if *c.CollisionSensitivity < 0 || *c.CollisionSensitivity > 1 {
			return fmt.Errorf("collision_sensitivity must be between 0 and 1, got %f", *c.CollisionSensitivity)
		}
	}
	if c.HeatmapCellSize != nil && *c.HeatmapCellSize <= 0 {
		return fmt.Errorf("heatmap_cell_size must be positive, got %d", *c.HeatmapCellSize)
	}
	if c.HeatmapDecay != nil {
		if *c.HeatmapDecay <= 0 || *c.HeatmapDecay >= 1 {
			return fmt.Errorf("heatmap_decay must be in (0,1), got %f", *c.HeatmapDecay)
		}
	}
	if c.HeatmapSaturation != nil && *c.HeatmapSaturation <= 0 {
		return fmt.Errorf("heatmap_saturation must be positive, got %f", *c.HeatmapSaturation)
	}
	if c.FrameSaturation != nil && *c.FrameSaturation <= 0 {
		return fmt.Errorf("frame_saturation must be positive, got %f", *c.FrameSaturation)
	}
	if c.ForecastAlpha != nil {
		if *c.ForecastAlpha <= 0 || *c.ForecastAlpha > 1 {
			return fmt.Errorf("forecast_alpha must be in (0,1], got %f", *c.ForecastAlpha)
		}
	}
	if c.ForecastBeta != nil {
		if *c.ForecastBeta <= 0 || *c.ForecastBeta > 1 {
			return fmt.Errorf("forecast_beta must be in (0,1], got %f", *c.ForecastBeta)
		}
	}
	if c.ForecastHistory != nil && *c.ForecastHistory < 2 {
		return fmt.Errorf("forecast_history must be at least 2, got %d", *c.ForecastHistory)
	}
	if c.ForecastHorizon != nil && *c.ForecastHorizon <= 0 {
		return fmt.Errorf("forecast_horizon must be positive, got %d", *c.ForecastHorizon)
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, err := time.ParseDuration(*c.StatsInterval); err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
	}
	return nil
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetPixelsPerMeter returns the pixels_per_meter value or the default.
func (c *TuningConfig) GetPixelsPerMeter() float64 {
	if c.PixelsPerMeter == nil {
		return 50.0
	}
	return *c.PixelsPerMeter
}

// GetFPS returns the fps value or the default.
func (c *TuningConfig) GetFPS() float64 {
	if c.FPS == nil {
		return 30.0
	}
	return *c.FPS
}

// GetFrameWidth returns the frame_width value or the default.
func (c *TuningConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 1280
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default.
func (c *TuningConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 720
	}
	return *c.FrameHeight
}

// GetTrajectoryCapacity returns the trajectory_capacity value or the default.
func (c *TuningConfig) GetTrajectoryCapacity() int {
	if c.TrajectoryCapacity == nil {
		return 120
	}
	return *c.TrajectoryCapacity
}

// GetAbsenceGraceFrames returns the absence_grace_frames value or the default.
func (c *TuningConfig) GetAbsenceGraceFrames() int {
	if c.AbsenceGraceFrames == nil {
		return 30
	}
	return *c.AbsenceGraceFrames
}

// GetSafetyDistance returns the safety_distance value or the default.
func (c *TuningConfig) GetSafetyDistance() float64 {
	if c.SafetyDistance == nil {
		return 50.0
	}
	return *c.SafetyDistance
}

// GetCollisionSensitivity returns the collision_sensitivity value or the default.
func (c *TuningConfig) GetCollisionSensitivity() float64 {
	if c.CollisionSensitivity == nil {
		return 0.6
	}
	return *c.CollisionSensitivity
}

// GetCollisionClearMargin returns the collision_clear_margin value or the default.
func (c *TuningConfig) GetCollisionClearMargin() float64 {
	if c.CollisionClearMargin == nil {
		return 40.0
	}
	return *c.CollisionClearMargin
}

// GetStallSpeedThreshold returns the stall_speed_threshold value or the default.
func (c *TuningConfig) GetStallSpeedThreshold() float64 {
	if c.StallSpeedThreshold == nil {
		return 0.5
	}
	return *c.StallSpeedThreshold
}

// GetStallFrames returns the stall_frames value or the default.
func (c *TuningConfig) GetStallFrames() int {
	if c.StallFrames == nil {
		return 30
	}
	return *c.StallFrames
}

// GetErraticVarianceMedium returns the erratic_variance_medium value or the default.
func (c *TuningConfig) GetErraticVarianceMedium() float64 {
	if c.ErraticVarianceMedium == nil {
		return 50.0
	}
	return *c.ErraticVarianceMedium
}

// GetErraticVarianceHigh returns the erratic_variance_high value or the default.
func (c *TuningConfig) GetErraticVarianceHigh() float64 {
	if c.ErraticVarianceHigh == nil {
		return 150.0
	}
	return *c.ErraticVarianceHigh
}

// GetAccidentIoUMedium returns the accident_iou_medium value or the default.
func (c *TuningConfig) GetAccidentIoUMedium() float64 {
	if c.AccidentIoUMedium == nil {
		return 0.3
	}
	return *c.AccidentIoUMedium
}

// GetAccidentIoUHigh returns the accident_iou_high value or the default.
func (c *TuningConfig) GetAccidentIoUHigh() float64 {
	if c.AccidentIoUHigh == nil {
		return 0.5
	}
	return *c.AccidentIoUHigh
}

// GetSpeedJumpMedium returns the speed_jump_medium value or the default.
func (c *TuningConfig) GetSpeedJumpMedium() float64 {
	if c.SpeedJumpMedium == nil {
		return 4.0
	}
	return *c.SpeedJumpMedium
}

// GetSpeedJumpHigh returns the speed_jump_high value or the default.
func (c *TuningConfig) GetSpeedJumpHigh() float64 {
	if c.SpeedJumpHigh == nil {
		return 8.0
	}
	return *c.SpeedJumpHigh
}

// GetHeatmapCellSize returns the heatmap_cell_size value or the default.
func (c *TuningConfig) GetHeatmapCellSize() int {
	if c.HeatmapCellSize == nil {
		return 32
	}
	return *c.HeatmapCellSize
}

// GetHeatmapDecay returns the heatmap_decay value or the default.
func (c *TuningConfig) GetHeatmapDecay() float64 {
	if c.HeatmapDecay == nil {
		return 0.95
	}
	return *c.HeatmapDecay
}

// GetHeatmapSaturation returns the heatmap_saturation value or the default.
func (c *TuningConfig) GetHeatmapSaturation() float64 {
	if c.HeatmapSaturation == nil {
		return 3.0
	}
	return *c.HeatmapSaturation
}

// GetHeatmapBlurRadius returns the heatmap_blur_radius value or the default.
func (c *TuningConfig) GetHeatmapBlurRadius() int {
	if c.HeatmapBlurRadius == nil {
		return 1
	}
	return *c.HeatmapBlurRadius
}

// GetFrameSaturation returns the frame_saturation value or the default.
func (c *TuningConfig) GetFrameSaturation() float64 {
	if c.FrameSaturation == nil {
		return 20.0
	}
	return *c.FrameSaturation
}

// GetHotspotThreshold returns the hotspot_threshold value or the default.
func (c *TuningConfig) GetHotspotThreshold() float64 {
	if c.HotspotThreshold == nil {
		return 0.5
	}
	return *c.HotspotThreshold
}

// GetForecastAlpha returns the forecast_alpha value or the default.
func (c *TuningConfig) GetForecastAlpha() float64 {
	if c.ForecastAlpha == nil {
		return 0.3
	}
	return *c.ForecastAlpha
}

// GetForecastBeta returns the forecast_beta value or the default.
func (c *TuningConfig) GetForecastBeta() float64 {
	if c.ForecastBeta == nil {
		return 0.1
	}
	return *c.ForecastBeta
}

// GetForecastHistory returns the forecast_history value or the default.
func (c *TuningConfig) GetForecastHistory() int {
	if c.ForecastHistory == nil {
		return 60
	}
	return *c.ForecastHistory
}

// GetForecastHorizon returns the forecast_horizon value or the default.
func (c *TuningConfig) GetForecastHorizon() int {
	if c.ForecastHorizon == nil {
		return 30
	}
	return *c.ForecastHorizon
}

// GetMinAnomalyHistory returns the min_anomaly_history value or the default.
func (c *TuningConfig) GetMinAnomalyHistory() int {
	if c.MinAnomalyHistory == nil {
		return 10
	}
	return *c.MinAnomalyHistory
}

// GetConcurrent returns the concurrent value or the default.
func (c *TuningConfig) GetConcurrent() bool {
	if c.Concurrent == nil {
		return false
	}
	return *c.Concurrent
}
