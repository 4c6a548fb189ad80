// Package conf holds the service configuration and its loader.
package conf

import (
	"time"
)

// Settings is the root configuration.
type Settings struct {
	Main         MainSettings         `mapstructure:"main" json:"main" yaml:"main"`
	MQTT         MQTTSettings         `mapstructure:"mqtt" json:"mqtt" yaml:"mqtt"`
	Database     DatabaseSettings     `mapstructure:"database" json:"database" yaml:"database"`
	Redis        RedisSettings        `mapstructure:"redis" json:"redis" yaml:"redis"`
	Alerting     AlertingSettings     `mapstructure:"alerting" json:"alerting" yaml:"alerting"`
	Correlator   CorrelatorSettings   `mapstructure:"correlator" json:"correlator" yaml:"correlator"`
	Notification NotificationSettings `mapstructure:"notification" json:"notification" yaml:"notification"`
	Storage      StorageSettings      `mapstructure:"storage" json:"storage" yaml:"storage"`
	Sentry       SentrySettings       `mapstructure:"sentry" json:"sentry" yaml:"sentry"`
	HTTP         HTTPSettings         `mapstructure:"http" json:"http" yaml:"http"`
}

// MainSettings holds process-wide options.
type MainSettings struct {
	Name      string `mapstructure:"name" json:"name" yaml:"name"`
	LogLevel  string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" json:"log_format" yaml:"log_format"` // "json" or "text"
	TimeZone  string `mapstructure:"timezone" json:"timezone" yaml:"timezone"`
}

// Location resolves TimeZone, falling back to UTC for empty or unknown zones.
func (m MainSettings) Location() *time.Location {
	if m.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(m.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MQTTSettings configures the broker connection and topic layout.
type MQTTSettings struct {
	Broker   string `mapstructure:"broker" json:"broker" yaml:"broker"`
	ClientID string `mapstructure:"client_id" json:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" json:"username" yaml:"username"`
	Password string `mapstructure:"password" json:"-" yaml:"password"`
	QoS      int    `mapstructure:"qos" json:"qos" yaml:"qos"`
	// ReadingTopic receives sensor readings: <prefix>/<system_type>/<device_id>.
	ReadingTopic string `mapstructure:"reading_topic" json:"reading_topic" yaml:"reading_topic"`
	// IncidentTopic receives one-shot incidents: <prefix>/<kind>/<device_id>.
	IncidentTopic string `mapstructure:"incident_topic" json:"incident_topic" yaml:"incident_topic"`
	// CommandTopicPrefix is where actuator commands go: <prefix>/<device_id>/command.
	CommandTopicPrefix string   `mapstructure:"command_topic_prefix" json:"command_topic_prefix" yaml:"command_topic_prefix"`
	ConnectTimeout     Duration `mapstructure:"connect_timeout" json:"connect_timeout" yaml:"connect_timeout"`
	PublishTimeout     Duration `mapstructure:"publish_timeout" json:"publish_timeout" yaml:"publish_timeout"`
}

// DatabaseSettings selects the persistence backend.
type DatabaseSettings struct {
	Type   string         `mapstructure:"type" json:"type" yaml:"type"` // "sqlite" or "mysql"
	SQLite SQLiteSettings `mapstructure:"sqlite" json:"sqlite" yaml:"sqlite"`
	MySQL  MySQLSettings  `mapstructure:"mysql" json:"mysql" yaml:"mysql"`
}

// SQLiteSettings configures the embedded database.
type SQLiteSettings struct {
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

// MySQLSettings configures a MySQL server connection.
type MySQLSettings struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port"`
	Username string `mapstructure:"username" json:"username" yaml:"username"`
	Password string `mapstructure:"password" json:"-" yaml:"password"`
	Database string `mapstructure:"database" json:"database" yaml:"database"`
}

// RedisSettings enables durable alert state.
type RedisSettings struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Addr      string `mapstructure:"addr" json:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" json:"-" yaml:"password"`
	DB        int    `mapstructure:"db" json:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix" yaml:"key_prefix"`
}

// AlertingSettings configures the threshold state machine.
type AlertingSettings struct {
	Profiles []ThresholdProfileSettings `mapstructure:"profiles" json:"profiles" yaml:"profiles"`
	// ActuatorDeviceTypes lists device types that accept actuator commands.
	ActuatorDeviceTypes []string `mapstructure:"actuator_device_types" json:"actuator_device_types" yaml:"actuator_device_types"`
	SideEffectTimeout   Duration `mapstructure:"side_effect_timeout" json:"side_effect_timeout" yaml:"side_effect_timeout"`
	IngestShards        int      `mapstructure:"ingest_shards" json:"ingest_shards" yaml:"ingest_shards"`
	IngestBuffer        int      `mapstructure:"ingest_buffer" json:"ingest_buffer" yaml:"ingest_buffer"`
	// IncidentSystemType selects the subscribers for one-shot incidents.
	IncidentSystemType   string `mapstructure:"incident_system_type" json:"incident_system_type" yaml:"incident_system_type"`
	HistoryRetentionDays int    `mapstructure:"history_retention_days" json:"history_retention_days" yaml:"history_retention_days"`
}

// ThresholdProfileSettings is the ordered limit list for one system type.
type ThresholdProfileSettings struct {
	SystemType string              `mapstructure:"system_type" json:"system_type" yaml:"system_type"`
	Limits     []MetricLimitConfig `mapstructure:"limits" json:"limits" yaml:"limits"`
}

// MetricLimitConfig is one metric's upper bound.
type MetricLimitConfig struct {
	Metric string  `mapstructure:"metric" json:"metric" yaml:"metric"`
	Max    float64 `mapstructure:"max" json:"max" yaml:"max"`
}

// CorrelatorSettings configures the repeat-detection pass.
type CorrelatorSettings struct {
	Enabled  bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Interval Duration `mapstructure:"interval" json:"interval" yaml:"interval"`
	Window   Duration `mapstructure:"window" json:"window" yaml:"window"`
	// StaleAfter expires groups that can no longer qualify. Zero keeps them forever.
	StaleAfter Duration `mapstructure:"stale_after" json:"stale_after" yaml:"stale_after"`
	SystemType string   `mapstructure:"system_type" json:"system_type" yaml:"system_type"`
}

// NotificationSettings configures the delivery channels.
type NotificationSettings struct {
	Timeout         Duration         `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	ContactCacheTTL Duration         `mapstructure:"contact_cache_ttl" json:"contact_cache_ttl" yaml:"contact_cache_ttl"`
	Push            PushSettings     `mapstructure:"push" json:"push" yaml:"push"`
	Email           ShoutrrrSettings `mapstructure:"email" json:"email" yaml:"email"`
	Chat            ShoutrrrSettings `mapstructure:"chat" json:"chat" yaml:"chat"`
}

// PushSettings configures Firebase Cloud Messaging.
type PushSettings struct {
	Enabled         bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	ProjectID       string  `mapstructure:"project_id" json:"project_id" yaml:"project_id"`
	CredentialsFile string  `mapstructure:"credentials_file" json:"credentials_file" yaml:"credentials_file"`
	Endpoint        string  `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	RatePerSecond   float64 `mapstructure:"rate_per_second" json:"rate_per_second" yaml:"rate_per_second"`
	Burst           int     `mapstructure:"burst" json:"burst" yaml:"burst"`
}

// ShoutrrrSettings configures a channel delivered through a shoutrrr URL.
type ShoutrrrSettings struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" json:"-" yaml:"url"`
}

// StorageSettings configures object storage for detection snapshots.
type StorageSettings struct {
	MinIO MinIOSettings `mapstructure:"minio" json:"minio" yaml:"minio"`
}

// MinIOSettings configures presigned snapshot links.
type MinIOSettings struct {
	Enabled   bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint  string   `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	AccessKey string   `mapstructure:"access_key" json:"-" yaml:"access_key"`
	SecretKey string   `mapstructure:"secret_key" json:"-" yaml:"secret_key"`
	UseTLS    bool     `mapstructure:"use_tls" json:"use_tls" yaml:"use_tls"`
	Region    string   `mapstructure:"region" json:"region" yaml:"region"`
	Bucket    string   `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	URLExpiry Duration `mapstructure:"url_expiry" json:"url_expiry" yaml:"url_expiry"`
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled     bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	DSN         string  `mapstructure:"dsn" json:"-" yaml:"dsn"`
	Environment string  `mapstructure:"environment" json:"environment" yaml:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" json:"sample_rate" yaml:"sample_rate"`
}

// HTTPSettings configures the ops endpoint.
type HTTPSettings struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" json:"listen" yaml:"listen"`
}
