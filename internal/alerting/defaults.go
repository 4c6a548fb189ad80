package alerting

import (
	"github.com/gudangguard/sentinel/internal/conf"
)

// MetricLimit is one metric's upper bound.
type MetricLimit struct {
	Metric string  `json:"metric"`
	Max    float64 `json:"max"`
}

// ThresholdProfile is the ordered list of limits for one system type.
// Order breaks ties between exceeded metrics after temperature.
type ThresholdProfile struct {
	SystemType string        `json:"systemType"`
	Limits     []MetricLimit `json:"limits"`
}

// Profiles is the read-only set of monitored system types.
type Profiles struct {
	order    []string
	bySystem map[string]ThresholdProfile
}

// NewProfiles builds a profile set. A later duplicate system type replaces
// the earlier one.
func NewProfiles(profiles ...ThresholdProfile) *Profiles {
	p := &Profiles{bySystem: make(map[string]ThresholdProfile, len(profiles))}
	for _, prof := range profiles {
		if _, exists := p.bySystem[prof.SystemType]; !exists {
			p.order = append(p.order, prof.SystemType)
		}
		limits := make([]MetricLimit, len(prof.Limits))
		copy(limits, prof.Limits)
		prof.Limits = limits
		p.bySystem[prof.SystemType] = prof
	}
	return p
}

// ProfilesFromConfig converts the configured profiles.
func ProfilesFromConfig(settings []conf.ThresholdProfileSettings) *Profiles {
	profiles := make([]ThresholdProfile, 0, len(settings))
	for _, s := range settings {
		prof := ThresholdProfile{SystemType: s.SystemType}
		for _, l := range s.Limits {
			prof.Limits = append(prof.Limits, MetricLimit{Metric: l.Metric, Max: l.Max})
		}
		profiles = append(profiles, prof)
	}
	return NewProfiles(profiles...)
}

// DefaultProfiles returns the profiles shipped for warehouse deployments.
func DefaultProfiles() *Profiles {
	return NewProfiles(
		ThresholdProfile{
			SystemType: "environment",
			Limits: []MetricLimit{
				{Metric: MetricTemperature, Max: 40},
				{Metric: MetricCO2, Max: 1000},
			},
		},
		ThresholdProfile{
			SystemType: "cold_storage",
			Limits: []MetricLimit{
				{Metric: MetricTemperature, Max: 8},
				{Metric: MetricHumidity, Max: 85},
			},
		},
	)
}

// Lookup returns the profile for a system type.
func (p *Profiles) Lookup(systemType string) (ThresholdProfile, bool) {
	prof, ok := p.bySystem[systemType]
	return prof, ok
}

// All returns the profiles in configuration order.
func (p *Profiles) All() []ThresholdProfile {
	out := make([]ThresholdProfile, 0, len(p.order))
	for _, st := range p.order {
		out = append(out, p.bySystem[st])
	}
	return out
}
