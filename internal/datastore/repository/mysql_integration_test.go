//go:build integration

package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/testutil/containers"
)

var mysqlContainer *containers.MySQLContainer

func TestMain(m *testing.M) {
	ctx := context.Background() //nolint:gocritic // TestMain has no *testing.T for t.Context()

	var err error
	mysqlContainer, err = containers.NewMySQLContainer(ctx, nil)
	if err != nil {
		panic("failed to start MySQL: " + err.Error())
	}

	code := m.Run()

	_ = mysqlContainer.Terminate(context.Background()) //nolint:gocritic // TestMain has no *testing.T for t.Context()
	os.Exit(code)
}

func TestMySQL_MarkDetectionsNotifiedClaimsOnce(t *testing.T) {
	require.NoError(t, mysqlContainer.Reset(t.Context()))
	repo := NewDetectionRepository(mysqlContainer.GetDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	var ids []uint
	for range 3 {
		e := createDetection(t, repo, &entities.DetectionEvent{
			DeviceID: "cam-1", OccurredAt: now, Detected: true, Attributes: redShirt,
		})
		ids = append(ids, e.ID)
	}

	var wg sync.WaitGroup
	claimed := make([]int64, 4)
	for i := range claimed {
		wg.Go(func() {
			n, err := repo.MarkDetectionsNotified(t.Context(), ids, now)
			assert.NoError(t, err)
			claimed[i] = n
		})
	}
	wg.Wait()

	var total int64
	for _, n := range claimed {
		total += n
	}
	assert.Equal(t, int64(len(ids)), total, "each row is claimed by exactly one pass")
}

func TestMySQL_DeviceHierarchyAndSubscribers(t *testing.T) {
	require.NoError(t, mysqlContainer.Reset(t.Context()))
	db := mysqlContainer.GetDB(t)
	seedDevice(t, db, "fan-1", "exhaust_fan")

	device, err := NewDeviceRepository(db).GetDeviceWithHierarchy(t.Context(), "fan-1")
	require.NoError(t, err)
	assert.Equal(t, "Cold Room 2", device.AreaName())
	assert.Equal(t, "Gudang Cikarang", device.WarehouseName())

	subs := NewSubscriberRepository(db)
	seedSubscribers(t, subs)
	ids, err := subs.ListSubscribers(t.Context(), "environment")
	require.NoError(t, err)
	assert.NotEmpty(t, ids)
}
