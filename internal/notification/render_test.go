package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() AlertPayload {
	return AlertPayload{
		IncidentType:  "high_temperature",
		WarehouseName: "Gudang Cikarang",
		AreaName:      "Cold Room 2",
		DeviceName:    "Env Sensor 7",
		TimestampText: "2026-03-01 10:00:00 WIB",
		Details:       []Detail{{Key: "temperature", Value: "41.5"}, {Key: "co2", Value: "800"}},
	}
}

func TestRenderAlert_AllChannels(t *testing.T) {
	msg, err := RenderAlert(KindAlertRaised, samplePayload())
	require.NoError(t, err)

	assert.Equal(t, KindAlertRaised, msg.Kind)
	assert.Equal(t, "Alert raised: high_temperature", msg.Push.Title)
	assert.Contains(t, msg.Push.Body, "Gudang Cikarang / Cold Room 2 / Env Sensor 7")
	assert.Contains(t, msg.Push.Body, "temperature: 41.5, co2: 800")
	assert.Equal(t, "high_temperature", msg.Push.Data["incident_type"])

	assert.Contains(t, msg.Email.Subject, "Alert raised")
	assert.Contains(t, msg.Email.HTML, "<td>temperature</td>")
	assert.Contains(t, msg.Email.Text, "Cold Room 2")
	assert.NotContains(t, msg.Email.Text, "<b>")

	assert.Contains(t, msg.Chat.Text, "[ALERT RAISED]")
	assert.Contains(t, msg.Chat.Text, "2026-03-01 10:00:00 WIB")
}

func TestRenderAlert_AllClearAndUnknownKind(t *testing.T) {
	msg, err := RenderAlert(KindAllClear, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "All clear: high_temperature", msg.Push.Title)

	_, err = RenderAlert(KindRepeat, samplePayload())
	require.Error(t, err)
}

func TestRenderAlert_EscapesHTML(t *testing.T) {
	p := samplePayload()
	p.DeviceName = "<script>x</script>"
	msg, err := RenderAlert(KindIncident, p)
	require.NoError(t, err)
	assert.NotContains(t, msg.Email.HTML, "<script>")
}

func TestRenderRepeat(t *testing.T) {
	msg, err := RenderRepeat(RepeatPayload{
		WarehouseName:   "Gudang Cikarang",
		AreaName:        "Loading Dock",
		AttributesText:  "baju-merah, topi-hitam",
		DetectionCount:  3,
		DurationMinutes: 12,
		FirstSeenText:   "10:00",
		LastSeenText:    "10:12",
		ImageURL:        "https://img.example.com/a.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, KindRepeat, msg.Kind)
	assert.Equal(t, "Repeated detection at Gudang Cikarang / Loading Dock", msg.Push.Title)
	assert.Equal(t, "baju-merah, topi-hitam seen 3 times in 12 min", msg.Push.Body)
	assert.Equal(t, "https://img.example.com/a.jpg", msg.Push.ImageURL)
	assert.Equal(t, "3", msg.Push.Data["detection_count"])
	assert.Contains(t, msg.Email.HTML, `src="https://img.example.com/a.jpg"`)
	assert.Contains(t, msg.Chat.Text, "10:00 - 10:12")
}
