// Package correlator groups repeated vision detections of the same subject
// and sends one repeat notification per episode.
package correlator

import (
	"cmp"
	"context"
	"encoding/json"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/notification"
	"github.com/gudangguard/sentinel/internal/observability/metrics"
)

const (
	defaultInterval   = time.Minute
	defaultWindow     = 15 * time.Minute
	defaultSystemType = "security"
	timestampLayout   = "02 Jan 2006 15:04:05 MST"
	settleTimeout     = 10 * time.Second

	repeatIncidentType = "repeat_detection"
)

// Run results recorded in metrics.
const (
	runCompleted = "completed"
	runFailed    = "failed"
	runSkipped   = "skipped"
)

// ErrPassInProgress is returned when a pass is requested while another
// one is running.
var ErrPassInProgress = errors.NewStd("repeat detection pass already in progress")

// DetectionStore is the detection backlog.
type DetectionStore interface {
	ListUnprocessedDetections(ctx context.Context) ([]entities.DetectionEvent, error)
	MarkDetectionsNotified(ctx context.Context, ids []uint, when time.Time) (int64, error)
	CountRecentlyNotified(ctx context.Context, deviceID, attributes string, since time.Time, excludeIDs []uint) (int64, error)
}

// DeviceResolver loads a device with its area and warehouse.
type DeviceResolver interface {
	GetDeviceWithHierarchy(ctx context.Context, deviceID string) (*entities.Device, error)
}

// Notifier delivers a message to the subscribers of a system type.
type Notifier interface {
	Notify(ctx context.Context, systemType string, msg notification.Message) (notification.Report, error)
}

// ImageURLResolver turns a stored image reference into a link recipients
// can open.
type ImageURLResolver interface {
	ResolveImageURL(ctx context.Context, ref string) (string, error)
}

// AlertLogStore appends to the alert log.
type AlertLogStore interface {
	SaveAlertLog(ctx context.Context, entry *entities.AlertLog) error
}

// PassResult summarizes one pass.
type PassResult struct {
	Backlog    int `json:"backlog"`
	Groups     int `json:"groups"`
	Episodes   int `json:"episodes"`
	Suppressed int `json:"suppressed"`
	Expired    int `json:"expired"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
}

// group is the set of backlog events sharing device and fingerprint.
type group struct {
	deviceID    string
	fingerprint string
	events      []entities.DetectionEvent
}

func (g *group) ids() []uint {
	ids := make([]uint, len(g.events))
	for i, e := range g.events {
		ids[i] = e.ID
	}
	return ids
}

// Correlator runs repeat-detection passes, either on its own ticker or on
// demand. Passes never overlap.
type Correlator struct {
	store   DetectionStore
	devices DeviceResolver
	notify  Notifier
	log     logger.Logger

	images     ImageURLResolver
	history    AlertLogStore
	metrics    *metrics.Metrics
	interval   time.Duration
	window     time.Duration
	staleAfter time.Duration
	systemType string
	loc        *time.Location
	now        func() time.Time

	running sync.Mutex

	lifecycleMu sync.Mutex
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithImageResolver presigns episode images.
func WithImageResolver(r ImageURLResolver) Option { return func(c *Correlator) { c.images = r } }

// WithAlertLog records episodes in the alert log.
func WithAlertLog(h AlertLogStore) Option { return func(c *Correlator) { c.history = h } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Correlator) { c.metrics = m } }

// WithLocation sets the time zone used in notification timestamps.
func WithLocation(loc *time.Location) Option {
	return func(c *Correlator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// New creates a correlator from settings.
func New(settings conf.CorrelatorSettings, store DetectionStore, devices DeviceResolver, notify Notifier, log logger.Logger, opts ...Option) *Correlator {
	c := &Correlator{
		store:      store,
		devices:    devices,
		notify:     notify,
		log:        log.Module("correlator"),
		interval:   cmp.Or(settings.Interval.Std(), defaultInterval),
		window:     cmp.Or(settings.Window.Std(), defaultWindow),
		staleAfter: max(settings.StaleAfter.Std(), 0),
		systemType: cmp.Or(settings.SystemType, defaultSystemType),
		loc:        time.UTC,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the repetition window.
func (c *Correlator) Window() time.Duration {
	return c.window
}

// Start runs a pass every interval until Stop. Calling Start again
// restarts the ticker.
func (c *Correlator) Start() {
	c.Stop()

	stop := make(chan struct{})
	done := make(chan struct{})
	c.lifecycleMu.Lock()
	c.stopCh, c.doneCh = stop, done
	c.lifecycleMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		for {
			select {
			case <-ticker.C:
				if _, err := c.RunRepeatDetectionPass(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
					c.log.Error("repeat detection pass failed", logger.Error(err))
				}
			case <-stop:
				return
			}
		}
	}()
	c.log.Info("repeat detection scheduled",
		logger.Duration("interval", c.interval),
		logger.Duration("window", c.window))
}

// Stop ends the ticker and waits for an in-flight pass to return.
func (c *Correlator) Stop() {
	c.lifecycleMu.Lock()
	stop, done := c.stopCh, c.doneCh
	c.stopCh, c.doneCh = nil, nil
	c.lifecycleMu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// RunRepeatDetectionPass processes the whole backlog once. Groups are
// handled in order; a failed group is left unmarked and retried next pass.
func (c *Correlator) RunRepeatDetectionPass(ctx context.Context) (PassResult, error) {
	if !c.running.TryLock() {
		c.metrics.RecordCorrelatorRun(runSkipped)
		return PassResult{}, ErrPassInProgress
	}
	defer c.running.Unlock()

	events, err := c.store.ListUnprocessedDetections(ctx)
	if err != nil {
		c.metrics.RecordCorrelatorRun(runFailed)
		return PassResult{}, errors.New(err).
			Component("correlator").
			Category(errors.CategoryDatabase).
			Build()
	}

	result := PassResult{Backlog: len(events)}
	if len(events) == 0 {
		c.metrics.RecordCorrelatorRun(runCompleted)
		return result, nil
	}

	groups := groupEvents(events)
	result.Groups = len(groups)
	for _, g := range groups {
		if ctx.Err() != nil {
			break
		}
		c.processGroup(ctx, g, &result)
	}

	c.metrics.RecordCorrelatorRun(runCompleted)
	c.log.Debug("repeat detection pass finished",
		logger.Int("backlog", result.Backlog),
		logger.Int("groups", result.Groups),
		logger.Int("episodes", result.Episodes),
		logger.Int("suppressed", result.Suppressed),
		logger.Int("expired", result.Expired),
		logger.Int("failed", result.Failed),
		logger.Int("pending", result.Pending))
	return result, ctx.Err()
}

// groupEvents groups by (device, fingerprint) keeping first-seen order.
func groupEvents(events []entities.DetectionEvent) []*group {
	var groups []*group
	index := make(map[string]*group)
	for _, e := range events {
		fp := Fingerprint(e.Attributes)
		key := e.DeviceID + "\x00" + fp
		g, ok := index[key]
		if !ok {
			g = &group{deviceID: e.DeviceID, fingerprint: fp}
			index[key] = g
			groups = append(groups, g)
		}
		g.events = append(g.events, e)
	}
	return groups
}

func (c *Correlator) processGroup(ctx context.Context, g *group, result *PassResult) {
	fields := []logger.Field{
		logger.String("device_id", g.deviceID),
		logger.String("fingerprint", g.fingerprint),
		logger.Int("events", len(g.events)),
	}
	now := c.now()

	suppressed, err := c.recentlyNotified(ctx, g, now)
	if err != nil {
		result.Failed++
		c.log.Error("suppression check failed", append(fields, logger.Error(err))...)
		return
	}
	if suppressed {
		if c.mark(ctx, g, now, fields) {
			result.Suppressed++
			c.metrics.RecordSuppressed()
			c.log.Info("repeat suppressed, subject notified recently", fields...)
		} else {
			result.Failed++
		}
		return
	}

	slices.SortStableFunc(g.events, func(a, b entities.DetectionEvent) int {
		return a.OccurredAt.Compare(b.OccurredAt)
	})
	first, last := g.events[0], g.events[len(g.events)-1]
	span := last.OccurredAt.Sub(first.OccurredAt)

	if len(g.events) < 2 || span > c.window {
		if c.staleAfter > 0 && now.Sub(last.OccurredAt) > c.staleAfter {
			if c.mark(ctx, g, now, fields) {
				result.Expired++
				c.metrics.RecordExpired()
				c.log.Info("stale detections expired without notification", fields...)
			} else {
				result.Failed++
			}
			return
		}
		result.Pending++
		return
	}

	if err := c.dispatchEpisode(ctx, g, span); err != nil {
		result.Failed++
		c.metrics.RecordEpisode("failed")
		fault := errors.New(err).
			Component("correlator").
			Category(errors.CategoryCorrelation).
			Context("device_id", g.deviceID).
			Context("fingerprint", g.fingerprint).
			Build()
		c.log.Error("repeat notification failed, group left for next pass",
			append(fields, logger.Time("at", now), logger.Error(fault))...)
		return
	}

	sctx, cancel := settleContext(ctx)
	defer cancel()
	if c.mark(sctx, g, c.now(), fields) {
		result.Episodes++
		c.metrics.RecordEpisode("sent")
	} else {
		result.Failed++
		c.metrics.RecordEpisode("mark_failed")
	}
}

// recentlyNotified reports whether any of the group's payloads was already
// notified for this device within the window.
func (c *Correlator) recentlyNotified(ctx context.Context, g *group, now time.Time) (bool, error) {
	since := now.Add(-c.window).UTC()
	ids := g.ids()
	seen := make(map[string]struct{})
	for _, e := range g.events {
		if _, dup := seen[e.Attributes]; dup {
			continue
		}
		seen[e.Attributes] = struct{}{}
		n, err := c.store.CountRecentlyNotified(ctx, g.deviceID, e.Attributes, since, ids)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// mark claims the group's events. Rows already claimed by an overlapping
// pass are skipped by the conditional update.
func (c *Correlator) mark(ctx context.Context, g *group, when time.Time, fields []logger.Field) bool {
	claimed, err := c.store.MarkDetectionsNotified(ctx, g.ids(), when.UTC())
	if err != nil {
		c.log.Error("failed to mark detections notified", append(fields, logger.Error(err))...)
		return false
	}
	if int(claimed) < len(g.events) {
		c.log.Warn("some detections were already claimed",
			append(fields, logger.Int64("claimed", claimed))...)
	}
	return true
}

func (c *Correlator) dispatchEpisode(ctx context.Context, g *group, span time.Duration) error {
	first, last := g.events[0], g.events[len(g.events)-1]
	payload := notification.RepeatPayload{
		AttributesText:  attributesText(g.events),
		DetectionCount:  len(g.events),
		DurationMinutes: int(math.Round(span.Minutes())),
		FirstSeenText:   c.formatTime(first.OccurredAt),
		LastSeenText:    c.formatTime(last.OccurredAt),
		ImageURL:        c.latestImage(ctx, g),
	}

	device, err := c.devices.GetDeviceWithHierarchy(ctx, g.deviceID)
	if device != nil {
		payload.WarehouseName = device.WarehouseName()
		payload.AreaName = device.AreaName()
	}
	if err != nil {
		c.log.Warn("device location unavailable for repeat notification",
			logger.String("device_id", g.deviceID), logger.Error(err))
	}
	if payload.AreaName == "" && payload.WarehouseName == "" {
		payload.AreaName = g.deviceID
	}

	msg, err := notification.RenderRepeat(payload)
	if err != nil {
		return err
	}
	report, err := c.notify.Notify(ctx, c.systemType, msg)
	if err != nil {
		return err
	}

	sctx, cancel := settleContext(ctx)
	defer cancel()
	c.recordLog(sctx, g, payload)
	c.log.Info("repeat notification sent",
		logger.String("device_id", g.deviceID),
		logger.String("fingerprint", g.fingerprint),
		logger.Int("events", len(g.events)),
		logger.Int("recipients", report.Recipients),
		logger.Int("delivered", report.Delivered()))
	return nil
}

// settleContext outlives a cancelled pass so a sent episode is still
// recorded and marked.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// latestImage returns the newest event's image link, if any.
func (c *Correlator) latestImage(ctx context.Context, g *group) string {
	for _, e := range slices.Backward(g.events) {
		if e.ImageRef == "" {
			continue
		}
		if c.images == nil {
			return e.ImageRef
		}
		url, err := c.images.ResolveImageURL(ctx, e.ImageRef)
		if err != nil {
			c.log.Warn("failed to resolve image link",
				logger.String("device_id", g.deviceID),
				logger.String("image_ref", e.ImageRef),
				logger.Error(err))
			return ""
		}
		return url
	}
	return ""
}

func (c *Correlator) recordLog(ctx context.Context, g *group, p notification.RepeatPayload) {
	if c.history == nil {
		return
	}
	details, err := json.Marshal(struct {
		Fingerprint string `json:"fingerprint"`
		notification.RepeatPayload
	}{g.fingerprint, p})
	if err != nil {
		details = []byte("{}")
	}
	entry := &entities.AlertLog{
		Kind:         entities.AlertLogRepeat,
		DeviceID:     g.deviceID,
		SystemType:   c.systemType,
		IncidentType: repeatIncidentType,
		Details:      string(details),
		FiredAt:      c.now(),
	}
	if err := c.history.SaveAlertLog(ctx, entry); err != nil {
		c.log.Warn("failed to record repeat episode", logger.String("device_id", g.deviceID), logger.Error(err))
	}
}

func (c *Correlator) formatTime(t time.Time) string {
	return t.In(c.loc).Format(timestampLayout)
}

// attributesText is a readable summary of the group's tokens.
func attributesText(events []entities.DetectionEvent) string {
	tokens := Tokens(events[len(events)-1].Attributes)
	if len(tokens) == 0 {
		return "Unidentified subject"
	}
	return strings.Join(tokens, ", ")
}
