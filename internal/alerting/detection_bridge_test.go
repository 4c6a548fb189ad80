package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/datastore/repository"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/notification"
)

func TestOnVisionDetection_NotifiesEveryTime(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t, "cam-1")
	f.engine.incidentSystemType = "security"

	for range 3 {
		require.NoError(t, f.engine.OnVisionDetection(t.Context(), "cam-1", IncidentWaterLeak, []byte(`{"level_cm": 2.5}`)))
	}
	f.engine.Wait()

	assert.Equal(t, []notification.Kind{
		notification.KindIncident, notification.KindIncident, notification.KindIncident,
	}, f.notifier.Kinds())
	assert.Equal(t, "security", f.notifier.systems[0])
	assert.Equal(t, "Incident: water_leak", f.notifier.messages[0].Push.Title)

	logs := f.alertLog.Entries()
	require.Len(t, logs, 3)
	assert.Equal(t, entities.AlertLogIncident, logs[0].Kind)
	assert.Empty(t, f.actuator.Calls(), "incidents never actuate")
	_, ok := f.engine.States().Get("cam-1")
	assert.False(t, ok, "incidents do not touch threshold state")
}

func TestOnVisionDetection_RejectsUnknownKind(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t, "cam-1")

	err := f.engine.OnVisionDetection(t.Context(), "cam-1", "fire_drill", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	f.engine.Wait()
	assert.Empty(t, f.notifier.Kinds())
}

func TestOnVisionDetection_UnresolvedDevice(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t, "cam-1")

	err := f.engine.OnVisionDetection(t.Context(), "ghost", IncidentImpact, nil)
	require.ErrorIs(t, err, repository.ErrDeviceNotFound)
	assert.True(t, errors.IsCategory(err, errors.CategoryResolution))
}

func TestOnVisionDetection_BadPayloadStillNotifies(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t, "cam-1")

	require.NoError(t, f.engine.OnVisionDetection(t.Context(), "cam-1", IncidentImpact, []byte("g-force=3")))
	f.engine.Wait()
	assert.Len(t, f.notifier.Kinds(), 1)
}

func TestIncidentDetails(t *testing.T) {
	t.Parallel()

	details, err := incidentDetails([]byte(`{
		"zone": "dock 3",
		"g_force": 3.75,
		"confirmed": true,
		"ignored": null,
		"sensors": ["a", "b"]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []notification.Detail{
		{Key: "confirmed", Value: "true"},
		{Key: "g_force", Value: "3.75"},
		{Key: "sensors", Value: `["a","b"]`},
		{Key: "zone", Value: "dock 3"},
	}, details)

	details, err = incidentDetails(nil)
	require.NoError(t, err)
	assert.Empty(t, details)

	_, err = incidentDetails([]byte(`[1,2]`))
	require.Error(t, err)
}
