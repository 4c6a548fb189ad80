// Package actuator sends on/off commands to actuating devices and records
// the commanded state.
package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/observability/metrics"
)

// Command results recorded in metrics.
const (
	resultSent          = "sent"
	resultUnchanged     = "unchanged"
	resultRejected      = "rejected"
	resultPublishFailed = "publish_failed"
	resultPersistFailed = "persist_failed"
)

// CommandPublisher delivers a command payload to a device's command topic.
type CommandPublisher interface {
	PublishDeviceCommand(ctx context.Context, deviceID string, payload []byte) error
}

// DeviceStore is the part of the device repository the service needs.
type DeviceStore interface {
	GetDeviceWithHierarchy(ctx context.Context, deviceID string) (*entities.Device, error)
	PersistActuatorState(ctx context.Context, deviceID, state string) error
}

// Command is the JSON envelope published to a device.
type Command struct {
	CommandID string    `json:"command_id"`
	DeviceID  string    `json:"device_id"`
	Action    string    `json:"action"`
	State     string    `json:"state"`
	IssuedAt  time.Time `json:"issued_at"`
}

// PreconditionError is returned when a device cannot take actuator commands.
type PreconditionError struct {
	DeviceID   string
	DeviceType string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("device %s of type %q does not support actuation", e.DeviceID, e.DeviceType)
}

// Service issues actuator commands.
type Service struct {
	devices   DeviceStore
	publisher CommandPublisher
	types     []string
	metrics   *metrics.Metrics
	log       logger.Logger
	now       func() time.Time
}

// NewService creates a Service. actuatorTypes lists the device types that
// accept commands.
func NewService(devices DeviceStore, publisher CommandPublisher, actuatorTypes []string, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{
		devices:   devices,
		publisher: publisher,
		types:     slices.Clone(actuatorTypes),
		metrics:   m,
		log:       log.Module("actuator"),
		now:       time.Now,
	}
}

// SetActuatorState drives the device to desired ("on" or "off"). It returns
// true when a command was sent and false when the recorded state already
// matched. The publish and the state write are not atomic: a failed write
// after a successful publish is reported but the command stays sent.
func (s *Service) SetActuatorState(ctx context.Context, deviceID, desired string) (bool, error) {
	if desired != entities.ActuatorOn && desired != entities.ActuatorOff {
		return false, errors.Newf("invalid actuator state %q", desired).
			Component("actuator").
			Category(errors.CategoryValidation).
			Context("device_id", deviceID).
			Build()
	}

	device, err := s.devices.GetDeviceWithHierarchy(ctx, deviceID)
	if device == nil {
		return false, errors.New(fmt.Errorf("resolve device: %w", err)).
			Component("actuator").
			Category(errors.CategoryResolution).
			Context("device_id", deviceID).
			Build()
	}

	if !slices.Contains(s.types, device.Type) {
		s.metrics.RecordActuatorCommand(desired, resultRejected)
		return false, &PreconditionError{DeviceID: deviceID, DeviceType: device.Type}
	}

	if device.ActuatorState == desired {
		s.metrics.RecordActuatorCommand(desired, resultUnchanged)
		s.log.Debug("actuator already in desired state",
			logger.String("device_id", deviceID),
			logger.String("state", desired))
		return false, nil
	}

	cmd := Command{
		CommandID: uuid.NewString(),
		DeviceID:  deviceID,
		Action:    "set_actuator",
		State:     desired,
		IssuedAt:  s.now().UTC(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return false, fmt.Errorf("encode command: %w", err)
	}

	if err := s.publisher.PublishDeviceCommand(ctx, deviceID, payload); err != nil {
		s.metrics.RecordActuatorCommand(desired, resultPublishFailed)
		return false, errors.New(fmt.Errorf("publish command: %w", err)).
			Component("actuator").
			Category(errors.CategoryActuation).
			Context("device_id", deviceID).
			Context("command_id", cmd.CommandID).
			Build()
	}

	if err := s.devices.PersistActuatorState(ctx, deviceID, desired); err != nil {
		s.metrics.RecordActuatorCommand(desired, resultPersistFailed)
		return true, errors.New(fmt.Errorf("persist actuator state: %w", err)).
			Component("actuator").
			Category(errors.CategoryActuation).
			Context("device_id", deviceID).
			Context("command_id", cmd.CommandID).
			Build()
	}

	s.metrics.RecordActuatorCommand(desired, resultSent)
	s.log.Info("actuator command sent",
		logger.String("device_id", deviceID),
		logger.String("state", desired),
		logger.String("command_id", cmd.CommandID))
	return true, nil
}
