// Package alerting runs the per-device threshold state machine that raises
// and clears alerts, drives actuators and announces one-shot incidents.
package alerting

import "slices"

// Metric names reported by environment sensors.
const (
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
	MetricCO2         = "co2"
	MetricSmoke       = "smoke"
)

// Incident kinds accepted by OnVisionDetection.
const (
	IncidentImpact    = "impact"
	IncidentWaterLeak = "water_leak"
	IncidentVibration = "vibration"
	IncidentThermal   = "thermal"
	IncidentIntrusion = "intrusion"
)

// IncidentAllClear is the incident type of a falling-edge notification.
const IncidentAllClear = "all_clear"

// Transition directions.
const (
	DirectionRising  = "rising"
	DirectionFalling = "falling"
)

// Outcome is what one evaluation did.
type Outcome string

// Evaluation outcomes.
const (
	// OutcomeIgnored: unmonitored system type or no expected metric present.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeUnresolved: the device or its hierarchy could not be resolved.
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeRising     Outcome = "rising"
	OutcomeFalling    Outcome = "falling"
	OutcomeNoEdge     Outcome = "no_edge"
	// OutcomeResync: first sighting below threshold, state recorded silently.
	OutcomeResync Outcome = "resync"
)

// incidentKinds lists the one-shot kinds in display order.
var incidentKinds = []string{
	IncidentImpact,
	IncidentWaterLeak,
	IncidentVibration,
	IncidentThermal,
	IncidentIntrusion,
}

// IsIncidentKind reports whether kind is a supported one-shot incident.
func IsIncidentKind(kind string) bool {
	return slices.Contains(incidentKinds, kind)
}

// highIncidentType names the incident for an exceeded metric, e.g. high_temperature.
func highIncidentType(metric string) string {
	return "high_" + metric
}
