package conf

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gudangguard/sentinel/internal/errors"
)

// EnvPrefix is the prefix for environment overrides, e.g. SENTINEL_MQTT_BROKER.
const EnvPrefix = "SENTINEL"

// Load reads settings from configFile (or config.yaml in the working
// directory and /etc/sentinel when empty), applies environment overrides
// and validates the result. A missing default config file is not an error.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	return LoadWith(v, configFile)
}

// LoadWith is Load on a caller-provided viper instance so CLI flags can be
// bound before reading.
func LoadWith(v *viper.Viper, configFile string) (*Settings, error) {
	SetDefaults(v)

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sentinel")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.New(fmt.Errorf("read config: %w", err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, errors.New(fmt.Errorf("decode config: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SetDefaults registers a default for every key so env overrides work
// without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "sentinel")
	v.SetDefault("main.log_level", "info")
	v.SetDefault("main.log_format", "json")
	v.SetDefault("main.timezone", "Asia/Jakarta")

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "sentinel-alerting")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.reading_topic", "sentinel/readings/+/+")
	v.SetDefault("mqtt.incident_topic", "sentinel/incidents/+/+")
	v.SetDefault("mqtt.command_topic_prefix", "sentinel/devices")
	v.SetDefault("mqtt.connect_timeout", "10s")
	v.SetDefault("mqtt.publish_timeout", "5s")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite.path", "sentinel.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "sentinel")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "sentinel")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "sentinel:alert_state:")

	v.SetDefault("alerting.profiles", []map[string]any{
		{
			"system_type": "environment",
			"limits": []map[string]any{
				{"metric": "temperature", "max": 40.0},
				{"metric": "co2", "max": 1000.0},
			},
		},
		{
			"system_type": "cold_storage",
			"limits": []map[string]any{
				{"metric": "temperature", "max": 8.0},
				{"metric": "humidity", "max": 85.0},
			},
		},
	})
	v.SetDefault("alerting.actuator_device_types", []string{"environment_controller", "exhaust_fan", "sprinkler"})
	v.SetDefault("alerting.side_effect_timeout", "15s")
	v.SetDefault("alerting.ingest_shards", 8)
	v.SetDefault("alerting.ingest_buffer", 256)
	v.SetDefault("alerting.incident_system_type", "security")
	v.SetDefault("alerting.history_retention_days", 30)

	v.SetDefault("correlator.enabled", true)
	v.SetDefault("correlator.interval", "1m")
	v.SetDefault("correlator.window", "15m")
	v.SetDefault("correlator.stale_after", "24h")
	v.SetDefault("correlator.system_type", "security")

	v.SetDefault("notification.timeout", "10s")
	v.SetDefault("notification.contact_cache_ttl", "1m")
	v.SetDefault("notification.push.enabled", false)
	v.SetDefault("notification.push.project_id", "")
	v.SetDefault("notification.push.credentials_file", "")
	v.SetDefault("notification.push.endpoint", "")
	v.SetDefault("notification.push.rate_per_second", 20.0)
	v.SetDefault("notification.push.burst", 10)
	v.SetDefault("notification.email.enabled", false)
	v.SetDefault("notification.email.url", "")
	v.SetDefault("notification.chat.enabled", false)
	v.SetDefault("notification.chat.url", "")

	v.SetDefault("storage.minio.enabled", false)
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.use_tls", false)
	v.SetDefault("storage.minio.region", "us-east-1")
	v.SetDefault("storage.minio.bucket", "detections")
	v.SetDefault("storage.minio.url_expiry", "24h")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", ":8080")
}

// Validate checks settings for values the service cannot run with.
func (s *Settings) Validate() error {
	var problems []string

	if s.MQTT.Broker == "" {
		problems = append(problems, "mqtt.broker is required")
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		problems = append(problems, "mqtt.qos must be 0, 1 or 2")
	}
	if !slices.Contains([]string{"sqlite", "mysql"}, s.Database.Type) {
		problems = append(problems, fmt.Sprintf("database.type %q is not supported", s.Database.Type))
	}
	if s.Alerting.IngestShards < 1 {
		problems = append(problems, "alerting.ingest_shards must be at least 1")
	}
	if s.Alerting.SideEffectTimeout.Std() <= 0 {
		problems = append(problems, "alerting.side_effect_timeout must be positive")
	}
	seen := make(map[string]struct{}, len(s.Alerting.Profiles))
	for i, p := range s.Alerting.Profiles {
		if p.SystemType == "" {
			problems = append(problems, fmt.Sprintf("alerting.profiles[%d].system_type is required", i))
			continue
		}
		if _, dup := seen[p.SystemType]; dup {
			problems = append(problems, fmt.Sprintf("alerting.profiles: duplicate system type %q", p.SystemType))
		}
		seen[p.SystemType] = struct{}{}
		for j, l := range p.Limits {
			if l.Metric == "" || math.IsNaN(l.Max) || math.IsInf(l.Max, 0) {
				problems = append(problems, fmt.Sprintf("alerting.profiles[%d].limits[%d] is invalid", i, j))
			}
		}
	}
	if s.Correlator.Enabled && s.Correlator.Interval.Std() < time.Second {
		problems = append(problems, "correlator.interval must be at least 1s")
	}
	if s.Correlator.Window.Std() <= 0 {
		problems = append(problems, "correlator.window must be positive")
	}
	if s.Notification.Push.Enabled && s.Notification.Push.ProjectID == "" {
		problems = append(problems, "notification.push.project_id is required when push is enabled")
	}
	if s.Notification.Email.Enabled && s.Notification.Email.URL == "" {
		problems = append(problems, "notification.email.url is required when email is enabled")
	}
	if s.Notification.Chat.Enabled && s.Notification.Chat.URL == "" {
		problems = append(problems, "notification.chat.url is required when chat is enabled")
	}
	if s.Storage.MinIO.Enabled && (s.Storage.MinIO.Endpoint == "" || s.Storage.MinIO.Bucket == "") {
		problems = append(problems, "storage.minio.endpoint and bucket are required when minio is enabled")
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		problems = append(problems, "sentry.dsn is required when sentry is enabled")
	}

	if len(problems) > 0 {
		return errors.Newf("invalid configuration: %s", strings.Join(problems, "; ")).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}
