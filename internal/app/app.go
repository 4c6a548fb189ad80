// Package app wires the service components together and runs them until
// the context is cancelled.
package app

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/gudangguard/sentinel/internal/actuator"
	"github.com/gudangguard/sentinel/internal/alerting"
	"github.com/gudangguard/sentinel/internal/api"
	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/correlator"
	"github.com/gudangguard/sentinel/internal/datastore"
	"github.com/gudangguard/sentinel/internal/datastore/repository"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/mqtt"
	"github.com/gudangguard/sentinel/internal/notification"
	"github.com/gudangguard/sentinel/internal/observability/metrics"
	"github.com/gudangguard/sentinel/internal/storage"
	"github.com/gudangguard/sentinel/internal/telemetry"
)

const (
	reconnectInterval = 10 * time.Second
	flushTimeout      = 2 * time.Second
)

// App owns every long-running component.
type App struct {
	settings *conf.Settings
	log      logger.Logger

	db       *gorm.DB
	redis    *redis.Client
	reporter *telemetry.Reporter
	metrics  *metrics.Metrics

	broker     *mqtt.Client
	router     *mqtt.Router
	engine     *alerting.Engine
	bus        *alerting.ReadingBus
	correlator *correlator.Correlator
	server     *api.Server
}

// New builds the service. Nothing listens or connects to the broker until Run.
func New(ctx context.Context, settings *conf.Settings, log logger.Logger, version string) (*App, error) {
	a := &App{settings: settings, log: log, metrics: metrics.New()}
	built := false
	defer func() {
		if built {
			return
		}
		if a.bus != nil {
			a.bus.Stop()
		}
		if a.engine != nil {
			a.engine.Stop()
		}
		_ = a.close()
	}()

	var err error
	if settings.Sentry.Enabled {
		if a.reporter, err = telemetry.New(settings.Sentry, version); err != nil {
			return nil, err
		}
		a.reporter.Install()
	}

	c, err := openCore(ctx, settings, a.metrics, log)
	if err != nil {
		return nil, err
	}
	a.db = c.db

	if a.broker, err = mqtt.NewClient(settings.MQTT, log); err != nil {
		return nil, err
	}

	deps := alerting.Deps{
		Devices:  c.devices,
		Actuator: actuator.NewService(c.devices, a.broker, settings.Alerting.ActuatorDeviceTypes, a.metrics, log),
		Notifier: c.dispatcher,
		AlertLog: c.alertLog,
		Metrics:  a.metrics,
		Location: settings.Main.Location(),
	}
	if settings.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})
		deps.Persister = alerting.NewRedisStatePersister(alerting.NewRedisHashStore(a.redis), settings.Redis.KeyPrefix, log)
	}

	if a.engine, a.bus, err = alerting.Initialize(ctx, settings.Alerting, deps, log); err != nil {
		return nil, err
	}

	a.router, err = mqtt.NewRouter(settings.MQTT.ReadingTopic, settings.MQTT.IncidentTopic, a.bus, a.engine, a.metrics, log)
	if err != nil {
		return nil, err
	}
	if err = a.router.Attach(a.broker); err != nil {
		return nil, err
	}

	a.correlator = c.correlator

	if settings.HTTP.Enabled {
		a.server = api.NewServer(settings.HTTP, &api.Controller{
			States:     a.engine.States(),
			Profiles:   a.engine.Profiles(),
			Repeat:     a.correlator,
			AlertLog:   c.alertLog,
			Detections: c.detections,
			Broker:     a.broker,
			Log:        log,
		}, a.metrics, log)
	}
	built = true
	return a, nil
}

// Run starts the components and blocks until ctx is cancelled, then shuts
// everything down in reverse order.
func (a *App) Run(ctx context.Context) error {
	connectDone := make(chan struct{})
	go func() {
		defer close(connectDone)
		a.connectLoop(ctx)
	}()

	if a.settings.Correlator.Enabled {
		a.correlator.Start()
	}
	if a.server != nil {
		a.server.Start()
	}
	a.log.Info("sentinel started")

	<-ctx.Done()
	a.log.Info("shutting down")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	a.correlator.Stop()
	<-connectDone
	a.router.Stop()
	a.broker.Disconnect()
	a.bus.Stop()
	a.engine.Stop()
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// connectLoop retries the initial broker connection. Later drops are
// handled by the client's auto reconnect.
func (a *App) connectLoop(ctx context.Context) {
	for {
		err := a.broker.Connect(ctx)
		if err == nil {
			return
		}
		a.log.Warn("broker connection failed, retrying",
			logger.Duration("retry_in", reconnectInterval),
			logger.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
		}
	}
}

func (a *App) close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := datastore.Close(a.db); err != nil {
			errs = append(errs, err)
		}
	}
	if a.reporter != nil {
		a.reporter.Close(flushTimeout)
	}
	return errors.Join(errs...)
}

// core is the part of the service shared by the daemon and one-shot passes.
type core struct {
	db         *gorm.DB
	devices    repository.DeviceRepository
	detections repository.DetectionRepository
	alertLog   repository.AlertLogRepository
	dispatcher *notification.Dispatcher
	correlator *correlator.Correlator
}

func openCore(ctx context.Context, settings *conf.Settings, m *metrics.Metrics, log logger.Logger) (*core, error) {
	db, err := datastore.Open(settings.Database)
	if err != nil {
		return nil, err
	}
	c := &core{
		db:         db,
		devices:    repository.NewDeviceRepository(db),
		detections: repository.NewDetectionRepository(db),
		alertLog:   repository.NewAlertLogRepository(db),
	}

	c.dispatcher, err = newDispatcher(ctx, settings.Notification, repository.NewSubscriberRepository(db), m, log)
	if err != nil {
		_ = datastore.Close(db)
		return nil, err
	}

	opts := []correlator.Option{
		correlator.WithAlertLog(c.alertLog),
		correlator.WithMetrics(m),
		correlator.WithLocation(settings.Main.Location()),
	}
	if settings.Storage.MinIO.Enabled {
		images, err := storage.NewMinIO(settings.Storage.MinIO)
		if err != nil {
			_ = datastore.Close(db)
			return nil, err
		}
		opts = append(opts, correlator.WithImageResolver(images))
	}
	c.correlator = correlator.New(settings.Correlator, c.detections, c.devices, c.dispatcher, log, opts...)
	return c, nil
}

func newDispatcher(ctx context.Context, settings conf.NotificationSettings, dir notification.Directory, m *metrics.Metrics, log logger.Logger) (*notification.Dispatcher, error) {
	opts := []notification.Option{
		notification.WithMetrics(m),
		notification.WithTimeout(settings.Timeout.Std()),
		notification.WithContactCacheTTL(settings.ContactCacheTTL.Std()),
	}
	if settings.Push.Enabled {
		push, err := notification.NewFCMSender(ctx, settings.Push, nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, notification.WithPush(push))
	}
	if settings.Email.Enabled {
		email, err := notification.NewShoutrrrEmailSender(settings.Email.URL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, notification.WithEmail(email))
	}
	if settings.Chat.Enabled {
		chat, err := notification.NewShoutrrrChatSender(settings.Chat.URL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, notification.WithChat(chat))
	}
	return notification.NewDispatcher(dir, log, opts...), nil
}

// RunRepeatPass runs a single repeat-detection pass without connecting to
// the broker.
func RunRepeatPass(ctx context.Context, settings *conf.Settings, log logger.Logger) (correlator.PassResult, error) {
	c, err := openCore(ctx, settings, nil, log)
	if err != nil {
		return correlator.PassResult{}, err
	}
	defer func() { _ = datastore.Close(c.db) }()
	return c.correlator.RunRepeatDetectionPass(ctx)
}
