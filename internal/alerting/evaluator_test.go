package alerting

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateThresholds(t *testing.T) {
	t.Parallel()

	profile := ThresholdProfile{
		SystemType: "warehouse_env",
		Limits: []MetricLimit{
			{Metric: MetricCO2, Max: 1000},
			{Metric: MetricHumidity, Max: 80},
			{Metric: MetricTemperature, Max: 40},
		},
	}

	tests := []struct {
		name      string
		readings  map[string]float64
		relevant  bool
		triggered bool
		metric    string
	}{
		{"nothing relevant", map[string]float64{"pressure": 1013}, false, false, ""},
		{"all below", map[string]float64{MetricTemperature: 30, MetricCO2: 400}, true, false, ""},
		{"equal is not exceeded", map[string]float64{MetricTemperature: 40}, true, false, ""},
		{"single exceeded", map[string]float64{MetricCO2: 1500}, true, true, MetricCO2},
		{"temperature wins", map[string]float64{MetricCO2: 1500, MetricTemperature: 41}, true, true, MetricTemperature},
		{"declaration order breaks ties", map[string]float64{MetricHumidity: 90, MetricCO2: 1500}, true, true, MetricCO2},
		{"NaN ignored", map[string]float64{MetricTemperature: math.NaN()}, false, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := EvaluateThresholds(profile, tt.readings)
			assert.Equal(t, tt.relevant, ev.Relevant)
			assert.Equal(t, tt.triggered, ev.Triggered)
			assert.Equal(t, tt.metric, ev.Metric)
		})
	}
}

func TestEvaluateThresholds_DetailsFollowProfileOrder(t *testing.T) {
	t.Parallel()

	profile := ThresholdProfile{Limits: []MetricLimit{
		{Metric: MetricTemperature, Max: 40},
		{Metric: MetricCO2, Max: 1000},
	}}
	ev := EvaluateThresholds(profile, map[string]float64{MetricCO2: 1200.5, MetricTemperature: 38, "noise": 1})

	assert.Len(t, ev.Details, 2)
	assert.Equal(t, MetricTemperature, ev.Details[0].Key)
	assert.Equal(t, "38", ev.Details[0].Value)
	assert.Equal(t, MetricCO2, ev.Details[1].Key)
	assert.Equal(t, "1200.5", ev.Details[1].Value)
	assert.Equal(t, "high_co2", ev.IncidentType())
}

func TestEvaluation_IncidentTypeWhenClear(t *testing.T) {
	t.Parallel()
	assert.Equal(t, IncidentAllClear, Evaluation{Relevant: true}.IncidentType())
}

func TestMetricValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{3, 3, true},
		{int64(4), 4, true},
		{"5.25", 5.25, true},
		{json.Number("6.5"), 6.5, true},
		{"warm", 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := MetricValue(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.InDelta(t, tt.want, got, 0.0001, "%v", tt.in)
	}
}
