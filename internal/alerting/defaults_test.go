package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gudangguard/sentinel/internal/conf"
)

func TestDefaultProfiles(t *testing.T) {
	t.Parallel()

	profiles := DefaultProfiles().All()
	require.NotEmpty(t, profiles)

	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		assert.NotEmpty(t, p.SystemType)
		assert.False(t, seen[p.SystemType], "duplicate system type: %s", p.SystemType)
		seen[p.SystemType] = true
		require.NotEmpty(t, p.Limits, "profile %s has no limits", p.SystemType)
		for _, l := range p.Limits {
			assert.NotEmpty(t, l.Metric)
		}
	}
}

func TestProfilesFromConfig_KeepsOrder(t *testing.T) {
	t.Parallel()

	profiles := ProfilesFromConfig([]conf.ThresholdProfileSettings{
		{SystemType: "b", Limits: []conf.MetricLimitConfig{{Metric: "humidity", Max: 70}}},
		{SystemType: "a", Limits: []conf.MetricLimitConfig{{Metric: "co2", Max: 900}, {Metric: "temperature", Max: 30}}},
	})

	all := profiles.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].SystemType)
	assert.Equal(t, "a", all[1].SystemType)

	p, ok := profiles.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, []MetricLimit{{Metric: "co2", Max: 900}, {Metric: "temperature", Max: 30}}, p.Limits)

	_, ok = profiles.Lookup("security")
	assert.False(t, ok)
}

func TestNewProfiles_DuplicateReplaces(t *testing.T) {
	t.Parallel()

	profiles := NewProfiles(
		ThresholdProfile{SystemType: "x", Limits: []MetricLimit{{Metric: "co2", Max: 1}}},
		ThresholdProfile{SystemType: "x", Limits: []MetricLimit{{Metric: "co2", Max: 2}}},
	)
	all := profiles.All()
	require.Len(t, all, 1)
	assert.InDelta(t, 2.0, all[0].Limits[0].Max, 0.0001)
}

func TestIsIncidentKind(t *testing.T) {
	t.Parallel()
	assert.True(t, IsIncidentKind(IncidentWaterLeak))
	assert.False(t, IsIncidentKind("fire_drill"))
}
