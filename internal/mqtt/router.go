package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/antonholmquist/jason"

	"github.com/gudangguard/sentinel/internal/alerting"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/observability/metrics"
)

// Drop reasons recorded in metrics.
const (
	dropBadTopic   = "bad_topic"
	dropBadPayload = "bad_payload"
)

// ReadingSink accepts parsed sensor readings.
type ReadingSink interface {
	Publish(reading alerting.SensorReading) bool
}

// IncidentSink accepts one-shot incidents.
type IncidentSink interface {
	OnVisionDetection(ctx context.Context, deviceID, incidentKind string, rawPayload []byte) error
}

// Subscriber is the part of Client the router needs.
type Subscriber interface {
	Subscribe(filter string, handler MessageHandler) error
}

// Router turns broker messages into engine calls. Readings go through the
// sharded bus so per-device order holds; incidents are handled in their own
// goroutines because they carry no state.
type Router struct {
	readingFilter  string
	incidentFilter string
	readings       ReadingSink
	incidents      IncidentSink
	metrics        *metrics.Metrics
	log            logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewRouter creates a router for the given topic filters. Each filter must
// end in two single-level wildcards: .../+/+ for <system_type>/<device_id>
// and <kind>/<device_id>.
func NewRouter(readingFilter, incidentFilter string, readings ReadingSink, incidents IncidentSink, m *metrics.Metrics, log logger.Logger) (*Router, error) {
	for _, f := range []string{readingFilter, incidentFilter} {
		if !strings.HasSuffix(f, "/+/+") {
			return nil, errors.Newf("topic filter %q must end with /+/+", f).
				Component("mqtt").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		readingFilter:  readingFilter,
		incidentFilter: incidentFilter,
		readings:       readings,
		incidents:      incidents,
		metrics:        m,
		log:            log.Module("mqtt"),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Attach subscribes both filters on s.
func (r *Router) Attach(s Subscriber) error {
	if err := s.Subscribe(r.readingFilter, r.HandleReading); err != nil {
		return err
	}
	return s.Subscribe(r.incidentFilter, r.HandleIncident)
}

// HandleReading parses a reading message and queues it.
func (r *Router) HandleReading(topic string, payload []byte) {
	systemType, deviceID, ok := topicTail(r.readingFilter, topic)
	if !ok {
		r.drop(dropBadTopic, topic, nil)
		return
	}
	values, err := parseReading(payload)
	if err != nil {
		r.drop(dropBadPayload, topic, err)
		return
	}
	r.readings.Publish(alerting.SensorReading{
		DeviceID:   deviceID,
		SystemType: systemType,
		Metrics:    values,
	})
}

// HandleIncident starts incident handling and returns immediately.
func (r *Router) HandleIncident(topic string, payload []byte) {
	kind, deviceID, ok := topicTail(r.incidentFilter, topic)
	if !ok {
		r.drop(dropBadTopic, topic, nil)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	raw := append([]byte(nil), payload...)
	r.wg.Go(func() {
		if err := r.incidents.OnVisionDetection(r.ctx, deviceID, kind, raw); err != nil {
			r.log.Warn("incident rejected",
				logger.String("device_id", deviceID),
				logger.String("incident_kind", kind),
				logger.Error(err))
		}
	})
}

// Stop cancels in-flight incident handling and waits for it.
func (r *Router) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

func (r *Router) drop(reason, topic string, err error) {
	r.metrics.RecordIngestDropped(reason)
	fields := []logger.Field{logger.String("topic", topic), logger.String("reason", reason)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	r.log.Warn("dropping message", fields...)
}

// topicTail matches topic against filter and returns the two trailing
// wildcard segments.
func topicTail(filter, topic string) (first, second string, ok bool) {
	captured, ok := matchTopic(filter, topic)
	if !ok || len(captured) < 2 {
		return "", "", false
	}
	first, second = captured[len(captured)-2], captured[len(captured)-1]
	if first == "" || second == "" {
		return "", "", false
	}
	return first, second, true
}

// matchTopic reports whether topic matches an MQTT filter and returns the
// segments matched by '+'. A trailing '#' matches the remainder.
func matchTopic(filter, topic string) ([]string, bool) {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	var captured []string
	for i, f := range fs {
		if f == "#" {
			return captured, true
		}
		if i >= len(ts) {
			return nil, false
		}
		switch f {
		case "+":
			captured = append(captured, ts[i])
		case ts[i]:
		default:
			return nil, false
		}
	}
	if len(fs) != len(ts) {
		return nil, false
	}
	return captured, true
}

// jsonMetric reads a JSON number or a numeric string.
func jsonMetric(v *jason.Value) (float64, bool) {
	if n, err := v.Number(); err == nil {
		return alerting.MetricValue(n)
	}
	if s, err := v.String(); err == nil {
		return alerting.MetricValue(s)
	}
	return 0, false
}

// parseReading accepts {"metrics": {...}} or a flat object of fields.
// Non-numeric fields are skipped.
func parseReading(payload []byte) (map[string]float64, error) {
	obj, err := jason.NewObjectFromBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("reading is not a JSON object: %w", err)
	}
	if nested, err := obj.GetObject("metrics"); err == nil {
		obj = nested
	}

	values := make(map[string]float64)
	for name, v := range obj.Map() {
		if f, ok := jsonMetric(v); ok {
			values[name] = f
		}
	}
	return values, nil
}
