package alerting

// Schema describes what the engine monitors, for the ops API.
type Schema struct {
	SystemTypes []SystemTypeSchema `json:"systemTypes"`
	Incidents   []IncidentSchema   `json:"incidents"`
}

// SystemTypeSchema describes one monitored system type.
type SystemTypeSchema struct {
	Name    string         `json:"name"`
	Metrics []MetricSchema `json:"metrics"`
}

// MetricSchema describes a monitored metric and its limit.
type MetricSchema struct {
	Name         string  `json:"name"`
	Label        string  `json:"label"`
	Unit         string  `json:"unit"`
	Max          float64 `json:"max"`
	IncidentType string  `json:"incidentType"`
}

// IncidentSchema describes a one-shot incident kind.
type IncidentSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

type metricInfo struct {
	label string
	unit  string
}

var knownMetrics = map[string]metricInfo{
	MetricTemperature: {"Temperature", "°C"},
	MetricHumidity:    {"Relative Humidity", "%"},
	MetricCO2:         {"CO2", "ppm"},
	MetricSmoke:       {"Smoke Density", "ppm"},
}

var incidentLabels = map[string]string{
	IncidentImpact:    "Impact",
	IncidentWaterLeak: "Water Leak",
	IncidentVibration: "Vibration",
	IncidentThermal:   "Thermal Anomaly",
	IncidentIntrusion: "Intrusion",
}

// GetSchema returns the catalog for the given profiles. Unknown metrics are
// listed under their raw name with no unit.
func GetSchema(profiles *Profiles) Schema {
	schema := Schema{
		SystemTypes: []SystemTypeSchema{},
		Incidents:   make([]IncidentSchema, 0, len(incidentKinds)),
	}
	for _, p := range profiles.All() {
		st := SystemTypeSchema{Name: p.SystemType, Metrics: make([]MetricSchema, 0, len(p.Limits))}
		for _, l := range p.Limits {
			info, ok := knownMetrics[l.Metric]
			if !ok {
				info = metricInfo{label: l.Metric}
			}
			st.Metrics = append(st.Metrics, MetricSchema{
				Name:         l.Metric,
				Label:        info.label,
				Unit:         info.unit,
				Max:          l.Max,
				IncidentType: highIncidentType(l.Metric),
			})
		}
		schema.SystemTypes = append(schema.SystemTypes, st)
	}
	for _, kind := range incidentKinds {
		schema.Incidents = append(schema.Incidents, IncidentSchema{Name: kind, Label: incidentLabels[kind]})
	}
	return schema
}
