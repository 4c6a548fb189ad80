package alerting

import (
	"context"
	"time"

	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/observability/metrics"
)

// Deps are the engine's collaborators. Only Devices is required.
type Deps struct {
	Devices   DeviceResolver
	Actuator  ActuatorCommander
	Notifier  Notifier
	AlertLog  AlertLogStore
	Persister StatePersister
	Metrics   *metrics.Metrics
	Location  *time.Location
}

// Initialize creates the engine and its ingest bus, restores persisted
// alert state and starts alert log cleanup. A failed warm start is logged
// and the engine starts with every device clear.
func Initialize(ctx context.Context, settings conf.AlertingSettings, deps Deps, log logger.Logger) (*Engine, *ReadingBus, error) {
	if deps.Devices == nil {
		return nil, nil, errors.Newf("alerting requires a device resolver").
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Build()
	}

	profiles := ProfilesFromConfig(settings.Profiles)
	if len(settings.Profiles) == 0 {
		profiles = DefaultProfiles()
	}

	states := NewStateStore(deps.Persister, log.Module("alerting"))
	loaded, err := states.Warm(ctx)
	if err != nil {
		log.Warn("could not restore alert state, starting clear", logger.Error(err))
	} else if loaded > 0 {
		log.Info("restored alert state", logger.Int("devices", loaded))
	}
	deps.Metrics.SetActiveAlerts(states.ActiveCount())

	opts := []Option{
		WithMetrics(deps.Metrics),
		WithSideEffectTimeout(settings.SideEffectTimeout.Std()),
		WithLocation(deps.Location),
	}
	if settings.IncidentSystemType != "" {
		opts = append(opts, WithIncidentSystemType(settings.IncidentSystemType))
	}
	if deps.Actuator != nil {
		opts = append(opts, WithActuator(deps.Actuator))
	}
	if deps.Notifier != nil {
		opts = append(opts, WithNotifier(deps.Notifier))
	}
	if deps.AlertLog != nil {
		opts = append(opts, WithAlertLog(deps.AlertLog))
	}
	engine := NewEngine(profiles, deps.Devices, states, log, opts...)

	bus := NewReadingBus(settings.IngestShards, settings.IngestBuffer, func(ctx context.Context, r SensorReading) {
		engine.Evaluate(ctx, r)
	}, deps.Metrics, log)

	engine.StartHistoryCleanup(settings.HistoryRetentionDays)

	log.Info("alerting engine initialized",
		logger.Int("profiles", len(profiles.All())),
		logger.Int("ingest_shards", len(bus.shards)))

	return engine, bus, nil
}
