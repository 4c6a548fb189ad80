package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/testutil"
)

// seedDevice creates a warehouse, area and device and returns the device ID.
func seedDevice(t *testing.T, db *gorm.DB, deviceID, deviceType string) string {
	t.Helper()
	repo := NewDeviceRepository(db)
	ctx := t.Context()

	w := &entities.Warehouse{Name: "Gudang Cikarang"}
	require.NoError(t, repo.CreateWarehouse(ctx, w))
	a := &entities.Area{WarehouseID: w.ID, Name: "Cold Room 2"}
	require.NoError(t, repo.CreateArea(ctx, a))
	require.NoError(t, repo.CreateDevice(ctx, &entities.Device{
		DeviceID:      deviceID,
		Name:          "Sensor " + deviceID,
		Type:          deviceType,
		SystemType:    "environment",
		AreaID:        &a.ID,
		ActuatorState: entities.ActuatorOff,
	}))
	return deviceID
}

func setupRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewTestDB(t)
}
