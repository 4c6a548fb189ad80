package repository

import (
	"context"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
)

// DeviceRepository resolves devices with their site hierarchy and records
// actuator state.
type DeviceRepository interface {
	// GetDeviceWithHierarchy returns the device with Area and Area.Warehouse
	// loaded. Returns ErrDeviceNotFound or ErrHierarchyIncomplete.
	GetDeviceWithHierarchy(ctx context.Context, deviceID string) (*entities.Device, error)
	PersistActuatorState(ctx context.Context, deviceID, state string) error
	ListDevices(ctx context.Context, systemType string) ([]entities.Device, error)

	CreateWarehouse(ctx context.Context, w *entities.Warehouse) error
	CreateArea(ctx context.Context, a *entities.Area) error
	CreateDevice(ctx context.Context, d *entities.Device) error
}
