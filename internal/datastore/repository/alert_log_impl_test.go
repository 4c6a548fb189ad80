package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
)

func TestAlertLogRepository_SaveListAndFilter(t *testing.T) {
	repo := NewAlertLogRepository(setupRepoTestDB(t))
	ctx := t.Context()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, kind := range []string{entities.AlertLogTransition, entities.AlertLogIncident, entities.AlertLogTransition} {
		require.NoError(t, repo.SaveAlertLog(ctx, &entities.AlertLog{
			Kind:     kind,
			DeviceID: "env-01",
			FiredAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.SaveAlertLog(ctx, &entities.AlertLog{Kind: entities.AlertLogRepeat, DeviceID: "cam-1", FiredAt: base}))

	items, total, err := repo.ListAlertLogs(ctx, AlertLogFilter{DeviceID: "env-01", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 2)
	assert.True(t, items[0].FiredAt.After(items[1].FiredAt), "newest first")

	items, total, err = repo.ListAlertLogs(ctx, AlertLogFilter{Kind: entities.AlertLogRepeat})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "cam-1", items[0].DeviceID)
}

func TestAlertLogRepository_DeleteAlertLogsBefore(t *testing.T) {
	repo := NewAlertLogRepository(setupRepoTestDB(t))
	ctx := t.Context()
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveAlertLog(ctx, &entities.AlertLog{Kind: entities.AlertLogIncident, DeviceID: "d", FiredAt: now.AddDate(0, 0, -40)}))
	require.NoError(t, repo.SaveAlertLog(ctx, &entities.AlertLog{Kind: entities.AlertLogIncident, DeviceID: "d", FiredAt: now.AddDate(0, 0, -1)}))

	deleted, err := repo.DeleteAlertLogsBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := repo.ListAlertLogs(ctx, AlertLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
