package alerting

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/notification"
)

// OnVisionDetection announces a one-shot security or asset-protection
// incident. There is no hysteresis: every call notifies. The returned error
// covers validation and device resolution only; delivery runs in the
// background.
func (e *Engine) OnVisionDetection(ctx context.Context, deviceID, incidentKind string, rawPayload []byte) error {
	if !IsIncidentKind(incidentKind) {
		return errors.Newf("unsupported incident kind %q", incidentKind).
			Component("alerting").
			Category(errors.CategoryValidation).
			Context("device_id", deviceID).
			Build()
	}

	device, err := e.devices.GetDeviceWithHierarchy(ctx, deviceID)
	if err != nil {
		fault := errors.New(err).
			Component("alerting").
			Category(errors.CategoryResolution).
			Context("device_id", deviceID).
			Context("incident_kind", incidentKind).
			Build()
		e.log.Error("cannot resolve device for incident",
			logger.String("device_id", deviceID),
			logger.String("incident_kind", incidentKind),
			logger.Error(fault))
		return fault
	}

	details, err := incidentDetails(rawPayload)
	if err != nil {
		e.log.Warn("incident payload is not a JSON object, sending without details",
			logger.String("device_id", deviceID),
			logger.String("incident_kind", incidentKind),
			logger.Error(err))
	}

	at := e.now()
	payload := notification.AlertPayload{
		IncidentType:  incidentKind,
		WarehouseName: device.WarehouseName(),
		AreaName:      device.AreaName(),
		DeviceName:    device.Name,
		TimestampText: e.formatTime(at),
		Details:       details,
	}
	e.metrics.RecordIncident(incidentKind)
	e.log.Info("incident received",
		logger.String("device_id", deviceID),
		logger.String("incident_kind", incidentKind))

	fields := []logger.Field{
		logger.String("device_id", deviceID),
		logger.String("incident_kind", incidentKind),
	}
	parent := context.WithoutCancel(ctx)
	if e.notifier != nil {
		systemType := e.incidentSystemType
		e.goSideEffect(parent, "incident notification", fields, func(ctx context.Context) error {
			msg, err := notification.RenderAlert(notification.KindIncident, payload)
			if err != nil {
				return err
			}
			_, err = e.notifier.Notify(ctx, systemType, msg)
			return err
		})
	}
	e.recordLog(parent, &entities.AlertLog{
		Kind:         entities.AlertLogIncident,
		DeviceID:     deviceID,
		SystemType:   device.SystemType,
		IncidentType: incidentKind,
		Details:      detailsJSON(details),
		FiredAt:      at,
	}, fields)
	return nil
}

// incidentDetails turns the top-level fields of a JSON object payload into
// sorted key/value details. Nested values are kept as compact JSON.
func incidentDetails(raw []byte) ([]notification.Detail, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	obj, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return nil, err
	}

	fields := obj.Map()
	keys := slices.Sorted(maps.Keys(fields))

	details := make([]notification.Detail, 0, len(keys))
	for _, k := range keys {
		text, ok := valueText(fields[k])
		if !ok {
			continue
		}
		details = append(details, notification.Detail{Key: k, Value: text})
	}
	return details, nil
}

func valueText(v *jason.Value) (string, bool) {
	if v.Null() == nil {
		return "", false
	}
	if s, err := v.String(); err == nil {
		return s, true
	}
	if n, err := v.Number(); err == nil {
		return n.String(), true
	}
	if b, err := v.Boolean(); err == nil {
		return fmt.Sprintf("%t", b), true
	}
	raw, err := v.Marshal()
	if err != nil {
		return "", false
	}
	return string(raw), true
}
