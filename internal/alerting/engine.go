package alerting

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/gudangguard/sentinel/internal/actuator"
	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/notification"
	"github.com/gudangguard/sentinel/internal/observability/metrics"
)

const (
	// defaultSideEffectTimeout bounds each actuator command, dispatch and log write.
	defaultSideEffectTimeout = 15 * time.Second
	// defaultResolveTimeout bounds the device lookup done under the device lock.
	defaultResolveTimeout = 5 * time.Second
	// cleanupTimeout is the context deadline for the periodic history deletion.
	cleanupTimeout = 5 * time.Second
	// cleanupInterval is how often the history cleanup goroutine runs.
	cleanupInterval = 1 * time.Hour
	// timestampLayout formats times in notifications.
	timestampLayout = "02 Jan 2006 15:04:05 MST"
)

// SensorReading is one periodic sample from a device.
type SensorReading struct {
	DeviceID   string
	SystemType string
	Metrics    map[string]float64
	ReceivedAt time.Time
}

// DeviceResolver loads a device with its area and warehouse.
type DeviceResolver interface {
	GetDeviceWithHierarchy(ctx context.Context, deviceID string) (*entities.Device, error)
}

// ActuatorCommander switches a device's actuator.
type ActuatorCommander interface {
	SetActuatorState(ctx context.Context, deviceID, desired string) (bool, error)
}

// Notifier delivers a message to the subscribers of a system type.
type Notifier interface {
	Notify(ctx context.Context, systemType string, msg notification.Message) (notification.Report, error)
}

// AlertLogStore appends to and trims the alert log.
type AlertLogStore interface {
	SaveAlertLog(ctx context.Context, entry *entities.AlertLog) error
	DeleteAlertLogsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Engine is the threshold alert state machine. Each device moves between
// Normal and Alerting; only edges trigger the actuator and notifications.
type Engine struct {
	profiles *Profiles
	devices  DeviceResolver
	states   *StateStore
	log      logger.Logger

	actuator           ActuatorCommander
	notifier           Notifier
	history            AlertLogStore
	metrics            *metrics.Metrics
	sideEffectTimeout  time.Duration
	resolveTimeout     time.Duration
	incidentSystemType string
	loc                *time.Location
	now                func() time.Time

	// side effects in flight
	wg sync.WaitGroup

	cleanupMu   sync.Mutex
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithActuator enables actuator commands on transitions.
func WithActuator(a ActuatorCommander) Option { return func(e *Engine) { e.actuator = a } }

// WithNotifier enables notifications on transitions and incidents.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithAlertLog records transitions and incidents in the alert log.
func WithAlertLog(h AlertLogStore) Option { return func(e *Engine) { e.history = h } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithSideEffectTimeout bounds each side effect.
func WithSideEffectTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sideEffectTimeout = d
		}
	}
}

// WithIncidentSystemType selects who receives one-shot incidents.
func WithIncidentSystemType(systemType string) Option {
	return func(e *Engine) { e.incidentSystemType = systemType }
}

// WithLocation sets the time zone used in notification timestamps.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine creates an engine over the given profiles and state store.
func NewEngine(profiles *Profiles, devices DeviceResolver, states *StateStore, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		profiles:           profiles,
		devices:            devices,
		states:             states,
		log:                log.Module("alerting"),
		sideEffectTimeout:  defaultSideEffectTimeout,
		resolveTimeout:     defaultResolveTimeout,
		incidentSystemType: "security",
		loc:                time.UTC,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// States exposes the engine's state store for read-only views.
func (e *Engine) States() *StateStore {
	return e.states
}

// Profiles returns the monitored profiles.
func (e *Engine) Profiles() *Profiles {
	return e.profiles
}

// OnSensorReading evaluates one reading.
func (e *Engine) OnSensorReading(ctx context.Context, deviceID, systemType string, readings map[string]float64) Outcome {
	return e.Evaluate(ctx, SensorReading{
		DeviceID:   deviceID,
		SystemType: systemType,
		Metrics:    readings,
		ReceivedAt: e.now(),
	})
}

// Evaluate runs the state machine for one reading. The state change is
// recorded before side effects start; side effects run in the background
// and never roll the state back.
func (e *Engine) Evaluate(ctx context.Context, reading SensorReading) Outcome {
	start := time.Now()
	outcome := e.evaluate(ctx, reading)
	e.metrics.RecordEvaluation(string(outcome), time.Since(start))
	return outcome
}

func (e *Engine) evaluate(ctx context.Context, reading SensorReading) Outcome {
	profile, ok := e.profiles.Lookup(reading.SystemType)
	if !ok {
		return OutcomeIgnored
	}
	ev := EvaluateThresholds(profile, reading.Metrics)
	if !ev.Relevant {
		return OutcomeIgnored
	}

	unlock := e.states.Lock(reading.DeviceID)
	defer unlock()

	device, err := e.resolveDevice(ctx, reading.DeviceID)
	if err != nil {
		fault := errors.New(err).
			Component("alerting").
			Category(errors.CategoryResolution).
			Context("device_id", reading.DeviceID).
			Context("system_type", reading.SystemType).
			Build()
		e.log.Error("cannot resolve device for reading",
			logger.String("device_id", reading.DeviceID),
			logger.String("system_type", reading.SystemType),
			logger.Error(fault))
		return OutcomeUnresolved
	}

	prev, known := e.states.Get(reading.DeviceID)
	was := known && prev.IsAlertActive
	at := e.now()

	switch {
	case ev.Triggered && !was:
		e.states.Set(ctx, DeviceAlertState{DeviceID: reading.DeviceID, IsAlertActive: true, LastChangedAt: at})
		e.metrics.RecordTransition(reading.SystemType, DirectionRising)
		e.log.Info("alert raised",
			logger.String("device_id", reading.DeviceID),
			logger.String("incident_type", ev.IncidentType()))
		e.startTransitionEffects(ctx, device, reading.SystemType, ev, DirectionRising, at)
		return OutcomeRising

	case !ev.Triggered && was:
		e.states.Set(ctx, DeviceAlertState{DeviceID: reading.DeviceID, IsAlertActive: false, LastChangedAt: at})
		e.metrics.RecordTransition(reading.SystemType, DirectionFalling)
		e.log.Info("alert cleared",
			logger.String("device_id", reading.DeviceID))
		e.startTransitionEffects(ctx, device, reading.SystemType, ev, DirectionFalling, at)
		return OutcomeFalling

	case !known:
		e.states.Set(ctx, DeviceAlertState{DeviceID: reading.DeviceID, IsAlertActive: false, LastChangedAt: at})
		return OutcomeResync

	default:
		return OutcomeNoEdge
	}
}

// startTransitionEffects launches the actuator command, the notification
// and the alert log write for an edge.
func (e *Engine) resolveDevice(ctx context.Context, deviceID string) (*entities.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, e.resolveTimeout)
	defer cancel()
	return e.devices.GetDeviceWithHierarchy(ctx, deviceID)
}

func (e *Engine) startTransitionEffects(ctx context.Context, device *entities.Device, systemType string, ev Evaluation, direction string, at time.Time) {
	desired, kind := entities.ActuatorOn, notification.KindAlertRaised
	if direction == DirectionFalling {
		desired, kind = entities.ActuatorOff, notification.KindAllClear
	}
	payload := notification.AlertPayload{
		IncidentType:  ev.IncidentType(),
		WarehouseName: device.WarehouseName(),
		AreaName:      device.AreaName(),
		DeviceName:    device.Name,
		TimestampText: e.formatTime(at),
		Details:       ev.Details,
	}
	fields := []logger.Field{
		logger.String("device_id", device.DeviceID),
		logger.String("direction", direction),
	}
	parent := context.WithoutCancel(ctx)

	if e.actuator != nil && device.ActuatorState != desired {
		deviceID := device.DeviceID
		e.goSideEffect(parent, "actuator command", fields, func(ctx context.Context) error {
			_, err := e.actuator.SetActuatorState(ctx, deviceID, desired)
			var pe *actuator.PreconditionError
			if errors.As(err, &pe) {
				return nil
			}
			return err
		})
	}

	if e.notifier != nil {
		e.goSideEffect(parent, "alert notification", fields, func(ctx context.Context) error {
			msg, err := notification.RenderAlert(kind, payload)
			if err != nil {
				return err
			}
			_, err = e.notifier.Notify(ctx, systemType, msg)
			return err
		})
	}

	e.recordLog(parent, &entities.AlertLog{
		Kind:         entities.AlertLogTransition,
		DeviceID:     device.DeviceID,
		SystemType:   systemType,
		IncidentType: payload.IncidentType,
		Direction:    direction,
		Details:      detailsJSON(ev.Details),
		FiredAt:      at,
	}, fields)
}

func (e *Engine) recordLog(parent context.Context, entry *entities.AlertLog, fields []logger.Field) {
	if e.history == nil {
		return
	}
	e.goSideEffect(parent, "alert log write", fields, func(ctx context.Context) error {
		return e.history.SaveAlertLog(ctx, entry)
	})
}

// goSideEffect runs fn in the background with a bounded context. Errors and
// panics are logged and never propagate.
func (e *Engine) goSideEffect(parent context.Context, name string, fields []logger.Field, fn func(ctx context.Context) error) {
	fields = slices.Clip(fields)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.Error(name+" panicked", append(fields, logger.Any("panic", r))...)
			}
		}()

		ctx, cancel := context.WithTimeout(parent, e.sideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.log.Error(name+" failed", append(fields,
				logger.Time("at", e.now()),
				logger.Error(err))...)
		}
	}()
}

func (e *Engine) formatTime(t time.Time) string {
	return t.In(e.loc).Format(timestampLayout)
}

func detailsJSON(details []notification.Detail) string {
	if len(details) == 0 {
		return "[]"
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Wait blocks until all side effects started so far have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// StartHistoryCleanup starts a background goroutine that periodically deletes
// alert log entries older than retentionDays. A value of 0 disables cleanup.
func (e *Engine) StartHistoryCleanup(retentionDays int) {
	if retentionDays <= 0 || e.history == nil {
		return
	}
	e.stopCleanup()

	stop := make(chan struct{})
	done := make(chan struct{})
	e.cleanupMu.Lock()
	e.cleanupStop, e.cleanupDone = stop, done
	e.cleanupMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.cleanupHistory(retentionDays)
			case <-stop:
				return
			}
		}
	}()
}

func (e *Engine) cleanupHistory(retentionDays int) {
	cutoff := e.now().AddDate(0, 0, -retentionDays)
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	deleted, err := e.history.DeleteAlertLogsBefore(ctx, cutoff)
	if err != nil {
		e.log.Error("alert log cleanup failed", logger.Error(err))
		return
	}
	if deleted > 0 {
		e.log.Info("alert log cleanup completed",
			logger.Int64("deleted", deleted),
			logger.Int("retention_days", retentionDays))
	}
}

// stopCleanup signals the cleanup goroutine and waits for it to exit.
func (e *Engine) stopCleanup() {
	e.cleanupMu.Lock()
	stop, done := e.cleanupStop, e.cleanupDone
	e.cleanupStop, e.cleanupDone = nil, nil
	e.cleanupMu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// Stop shuts down the cleanup goroutine and waits for in-flight side effects.
func (e *Engine) Stop() {
	e.stopCleanup()
	e.wg.Wait()
}
