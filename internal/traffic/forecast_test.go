package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestForecasterColdState verifies that nothing is fabricated before the
// first observation.
func TestForecasterColdState(t *testing.T) {
	t.Parallel()
	f := NewForecaster(DefaultForecastConfig())

	_, ok := f.Forecast(MetricVehicleCount, 1)
	assert.False(t, ok, "forecast should be unavailable before any observation")
	assert.Nil(t, f.ForecastSeries(MetricAverageSpeed, 10))
	assert.Empty(t, f.Snapshot())
	assert.Empty(t, f.Anomalies())

	cf := f.GetCongestionForecast()
	assert.Equal(t, "Light Traffic Ahead", cf.Status)
	assert.Equal(t, "Low", cf.RiskLevel)
}

// TestForecasterSeedAndUpdate checks the incremental double-exponential
// update against hand-computed values.
func TestForecasterSeedAndUpdate(t *testing.T) {
	t.Parallel()
	config := DefaultForecastConfig() // alpha 0.3, beta 0.1
	f := NewForecaster(config)

	// First observation seeds level=x, trend=0.
	f.Observe(10, 5, 0.2, 1)
	v, ok := f.Forecast(MetricVehicleCount, 5)
	require.True(t, ok)
	assert.InDelta(t, 10, v, 1e-9, "seeded forecast is flat")

	// level = 0.3*20 + 0.7*10 = 13; trend = 0.1*(13-10) = 0.3.
	f.Observe(20, 5, 0.2, 2)
	snap := f.Snapshot()[MetricVehicleCount]
	assert.InDelta(t, 13, snap.Level, 1e-9)
	assert.InDelta(t, 0.3, snap.Trend, 1e-9)

	v, ok = f.Forecast(MetricVehicleCount, 1)
	require.True(t, ok)
	assert.InDelta(t, 13.3, v, 1e-9)
	v, _ = f.Forecast(MetricVehicleCount, 5)
	assert.InDelta(t, 14.5, v, 1e-9)
}

// TestForecasterSeriesBounds verifies clamping on both ends of the valid
// range.
func TestForecasterSeriesBounds(t *testing.T) {
	t.Parallel()
	f := NewForecaster(DefaultForecastConfig())

	// A hard deceleration drives the raw projection negative; counts clamp
	// at zero.
	f.Observe(50, 20, 0.3, 1)
	for i := int64(2); i <= 10; i++ {
		f.Observe(0, 0, 0.3, i)
	}
	series := f.ForecastSeries(MetricVehicleCount, 30)
	require.Len(t, series, 30)
	for _, v := range series {
		assert.GreaterOrEqual(t, v, 0.0)
	}

	// Rising congestion clamps at one.
	g := NewForecaster(DefaultForecastConfig())
	c := 0.1
	for i := int64(1); i <= 30; i++ {
		g.Observe(10, 10, c, i)
		c += 0.05
		if c > 1 {
			c = 1
		}
	}
	for _, v := range g.ForecastSeries(MetricCongestion, 30) {
		assert.LessOrEqual(t, v, 1.0)
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

// TestForecasterAnomalies exercises the z-score rules on a spiking vehicle
// count while the other metrics stay flat.
func TestForecasterAnomalies(t *testing.T) {
	t.Parallel()

	t.Run("suppressed on short history", func(t *testing.T) {
		t.Parallel()
		f := NewForecaster(DefaultForecastConfig()) // min history 10
		for i := int64(1); i <= 5; i++ {
			f.Observe(10, 5, 0.2, i)
		}
		f.Observe(500, 5, 0.2, 6)
		assert.Empty(t, f.Anomalies(), "cold state must not flag")
	})

	t.Run("medium severity spike", func(t *testing.T) {
		t.Parallel()
		f := NewForecaster(DefaultForecastConfig())
		// Nine flat frames then a 10x spike: z is roughly 2.85.
		for i := int64(1); i <= 9; i++ {
			f.Observe(10, 5, 0.2, i)
		}
		f.Observe(100, 5, 0.2, 10)

		events := f.Anomalies()
		require.Len(t, events, 1, "flat speed and congestion must not flag")
		assert.Equal(t, MetricVehicleCount, events[0].Metric)
		assert.Equal(t, SeverityMedium, events[0].Severity)
		assert.Greater(t, events[0].ZScore, 2.5)
	})

	t.Run("high severity spike", func(t *testing.T) {
		t.Parallel()
		f := NewForecaster(DefaultForecastConfig())
		// A longer flat run tightens the spread: z is roughly 4.25.
		for i := int64(1); i <= 19; i++ {
			f.Observe(10, 5, 0.2, i)
		}
		f.Observe(100, 5, 0.2, 20)

		events := f.Anomalies()
		require.Len(t, events, 1)
		assert.Equal(t, SeverityHigh, events[0].Severity)
		assert.Greater(t, events[0].ZScore, 3.0)
	})
}

// TestCongestionForecastClassification maps current congestion levels onto
// the qualitative status labels.
func TestCongestionForecastClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		congestion float64
		wantStatus string
		wantRisk   string
	}{
		{"light", 0.2, "Light Traffic Ahead", "Low"},
		{"moderate", 0.5, "Moderate Congestion Building", "Medium"},
		{"heavy", 0.9, "Heavy Congestion Expected", "High"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := NewForecaster(DefaultForecastConfig())
			f.Observe(10, 5, tc.congestion, 1)

			cf := f.GetCongestionForecast()
			assert.Equal(t, tc.wantStatus, cf.Status)
			assert.Equal(t, tc.wantRisk, cf.RiskLevel)
			assert.InDelta(t, tc.congestion, cf.Current, 1e-9)
			assert.InDelta(t, tc.congestion, cf.PredictedPeak, 1e-9)
			assert.Len(t, cf.Predictions, DefaultForecastConfig().Horizon)
		})
	}
}

// TestForecasterConfigFallbacks verifies invalid smoothing parameters fall
// back to defaults rather than producing a broken state.
func TestForecasterConfigFallbacks(t *testing.T) {
	t.Parallel()
	f := NewForecaster(ForecastConfig{Alpha: -1, Beta: 2, HistoryLength: 0, Horizon: 0})

	f.Observe(10, 5, 0.2, 1)
	f.Observe(10, 5, 0.2, 2)

	snap, ok := f.Snapshot()[MetricVehicleCount]
	require.True(t, ok)
	assert.Len(t, snap.Forecast, DefaultForecastConfig().Horizon)
	assert.InDelta(t, 10, snap.Level, 1e-9)
}
