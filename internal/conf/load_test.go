package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gudangguard/sentinel/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", s.Database.Type)
	assert.Equal(t, 15*time.Minute, s.Correlator.Window.Std())
	assert.Equal(t, time.Minute, s.Correlator.Interval.Std())
	assert.Equal(t, 24*time.Hour, s.Correlator.StaleAfter.Std())
	assert.Equal(t, 8, s.Alerting.IngestShards)
	require.NotEmpty(t, s.Alerting.Profiles)
	assert.Equal(t, "environment", s.Alerting.Profiles[0].SystemType)
	assert.Equal(t, "temperature", s.Alerting.Profiles[0].Limits[0].Metric)
	assert.InDelta(t, 40.0, s.Alerting.Profiles[0].Limits[0].Max, 0.0001)
}

func TestLoad_YAMLKeepsProfileOrder(t *testing.T) {
	t.Chdir(t.TempDir())

	path := writeConfig(t, `
alerting:
  profiles:
    - system_type: greenhouse
      limits:
        - metric: humidity
          max: 90
        - metric: temperature
          max: 35.5
correlator:
  window: 10m
  interval: 30
`)

	s, err := Load(path)
	require.NoError(t, err)

	require.Len(t, s.Alerting.Profiles, 1)
	p := s.Alerting.Profiles[0]
	assert.Equal(t, "greenhouse", p.SystemType)
	require.Len(t, p.Limits, 2)
	assert.Equal(t, "humidity", p.Limits[0].Metric)
	assert.Equal(t, "temperature", p.Limits[1].Metric)
	assert.InDelta(t, 35.5, p.Limits[1].Max, 0.0001)
	assert.Equal(t, 10*time.Minute, s.Correlator.Window.Std())
	assert.Equal(t, 30*time.Second, s.Correlator.Interval.Std())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())

	path := writeConfig(t, "mqtt:\n  broker: tcp://file:1883\n")
	t.Setenv("SENTINEL_MQTT_BROKER", "tcp://env:1883")
	t.Setenv("SENTINEL_CORRELATOR_WINDOW", "5m")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://env:1883", s.MQTT.Broker)
	assert.Equal(t, 5*time.Minute, s.Correlator.Window.Std())
}

func TestLoad_EnvironmentSecondsDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SENTINEL_CORRELATOR_WINDOW", "900")
	t.Setenv("SENTINEL_CORRELATOR_INTERVAL", "30")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, s.Correlator.Window.Std())
	assert.Equal(t, 30*time.Second, s.Correlator.Interval.Std())
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		return &Settings{
			MQTT:     MQTTSettings{Broker: "tcp://localhost:1883", QoS: 1},
			Database: DatabaseSettings{Type: "sqlite"},
			Alerting: AlertingSettings{
				IngestShards:      4,
				SideEffectTimeout: Duration(10 * time.Second),
				Profiles: []ThresholdProfileSettings{
					{SystemType: "environment", Limits: []MetricLimitConfig{{Metric: "temperature", Max: 40}}},
				},
			},
			Correlator: CorrelatorSettings{Enabled: true, Interval: Duration(time.Minute), Window: Duration(15 * time.Minute)},
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"no broker", func(s *Settings) { s.MQTT.Broker = "" }, "mqtt.broker"},
		{"bad qos", func(s *Settings) { s.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad db", func(s *Settings) { s.Database.Type = "postgres" }, "database.type"},
		{"zero shards", func(s *Settings) { s.Alerting.IngestShards = 0 }, "ingest_shards"},
		{"duplicate profile", func(s *Settings) {
			s.Alerting.Profiles = append(s.Alerting.Profiles, s.Alerting.Profiles[0])
		}, "duplicate system type"},
		{"empty metric", func(s *Settings) {
			s.Alerting.Profiles[0].Limits[0].Metric = ""
		}, "limits[0]"},
		{"zero window", func(s *Settings) { s.Correlator.Window = 0 }, "correlator.window"},
		{"push without project", func(s *Settings) { s.Notification.Push.Enabled = true }, "project_id"},
		{"chat without url", func(s *Settings) { s.Notification.Chat.Enabled = true }, "chat.url"},
		{"minio without bucket", func(s *Settings) { s.Storage.MinIO.Enabled = true }, "storage.minio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestMainSettings_Location(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.UTC, MainSettings{}.Location())
	assert.Equal(t, time.UTC, MainSettings{TimeZone: "Mars/Olympus"}.Location())
	assert.Equal(t, "Asia/Jakarta", MainSettings{TimeZone: "Asia/Jakarta"}.Location().String())
}
