package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/errors"
)

// deviceRepository implements DeviceRepository.
type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

// GetDeviceWithHierarchy loads a device with its area and warehouse.
func (r *deviceRepository) GetDeviceWithHierarchy(ctx context.Context, deviceID string) (*entities.Device, error) {
	var device entities.Device
	err := r.db.WithContext(ctx).
		Preload("Area.Warehouse").
		Where("device_id = ?", deviceID).
		First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	if device.Area == nil || device.Area.Warehouse == nil {
		return &device, ErrHierarchyIncomplete
	}
	return &device, nil
}

// PersistActuatorState records the actuator state last commanded for a device.
func (r *deviceRepository) PersistActuatorState(ctx context.Context, deviceID, state string) error {
	result := r.db.WithContext(ctx).
		Model(&entities.Device{}).
		Where("device_id = ?", deviceID).
		Update("actuator_state", state)
	if result.Error != nil {
		return fmt.Errorf("failed to persist actuator state for %s: %w", deviceID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// ListDevices returns devices, optionally filtered by system type.
func (r *deviceRepository) ListDevices(ctx context.Context, systemType string) ([]entities.Device, error) {
	var devices []entities.Device
	query := r.db.WithContext(ctx).Order("device_id ASC")
	if systemType != "" {
		query = query.Where("system_type = ?", systemType)
	}
	if err := query.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// CreateWarehouse inserts a warehouse.
func (r *deviceRepository) CreateWarehouse(ctx context.Context, w *entities.Warehouse) error {
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("failed to create warehouse: %w", err)
	}
	return nil
}

// CreateArea inserts an area.
func (r *deviceRepository) CreateArea(ctx context.Context, a *entities.Area) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create area: %w", err)
	}
	return nil
}

// CreateDevice inserts a device.
func (r *deviceRepository) CreateDevice(ctx context.Context, d *entities.Device) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to create device %s: %w", d.DeviceID, err)
	}
	return nil
}
