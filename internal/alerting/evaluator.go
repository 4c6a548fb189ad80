package alerting

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/gudangguard/sentinel/internal/notification"
)

// Evaluation is the result of checking one reading against its profile.
type Evaluation struct {
	// Relevant is false when the reading carries none of the profile's metrics.
	Relevant bool
	// Triggered is true when any present metric exceeds its maximum.
	Triggered bool
	// Metric is the reported exceeded metric: temperature first, then
	// profile order. Empty when not triggered.
	Metric string
	// Details lists the present profile metrics with their values, in
	// profile order.
	Details []notification.Detail
}

// EvaluateThresholds checks readings against profile limits. A limit is
// exceeded only when the value is strictly greater than Max. NaN values are
// treated as absent.
func EvaluateThresholds(profile ThresholdProfile, readings map[string]float64) Evaluation {
	var ev Evaluation
	for _, limit := range profile.Limits {
		value, ok := readings[limit.Metric]
		if !ok || math.IsNaN(value) {
			continue
		}
		ev.Relevant = true
		ev.Details = append(ev.Details, notification.Detail{
			Key:   limit.Metric,
			Value: formatValue(value),
		})
		if value <= limit.Max {
			continue
		}
		ev.Triggered = true
		if ev.Metric == "" || (limit.Metric == MetricTemperature && ev.Metric != MetricTemperature) {
			ev.Metric = limit.Metric
		}
	}
	return ev
}

// IncidentType returns the incident type for a triggered evaluation.
func (e Evaluation) IncidentType() string {
	if !e.Triggered {
		return IncidentAllClear
	}
	return highIncidentType(e.Metric)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MetricValue converts a decoded payload value to a float. Numeric strings
// are accepted because some firmware quotes every field.
func MetricValue(val any) (float64, bool) {
	switch v := val.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
