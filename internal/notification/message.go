// Package notification renders alert messages and fans them out over push,
// email and group chat.
package notification

// Kind identifies what a message announces.
type Kind string

// Message kinds.
const (
	KindAlertRaised Kind = "alert_raised"
	KindAllClear    Kind = "all_clear"
	KindIncident    Kind = "incident"
	KindRepeat      Kind = "repeat_intrusion"
)

// Channel names used in logs and metrics.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelChat  = "chat"
)

// Detail is one measured value or attribute shown in an alert.
type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AlertPayload describes a single threshold alert, all-clear or incident.
type AlertPayload struct {
	IncidentType  string   `json:"incidentType"`
	WarehouseName string   `json:"warehouseName"`
	AreaName      string   `json:"areaName"`
	DeviceName    string   `json:"deviceName"`
	TimestampText string   `json:"timestampText"`
	Details       []Detail `json:"details"`
}

// RepeatPayload describes a repeat-detection episode.
type RepeatPayload struct {
	WarehouseName   string `json:"warehouseName"`
	AreaName        string `json:"areaName"`
	AttributesText  string `json:"attributesText"`
	DetectionCount  int    `json:"detectionCount"`
	DurationMinutes int    `json:"durationMinutes"`
	FirstSeenText   string `json:"firstSeenText"`
	LastSeenText    string `json:"lastSeenText"`
	ImageURL        string `json:"imageUrl"`
}

// PushContent is the push notification body.
type PushContent struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
}

// EmailContent is a templated email with an HTML and a plain-text part.
type EmailContent struct {
	Subject string
	HTML    string
	Text    string
}

// ChatContent is the group chat message.
type ChatContent struct {
	Text string
}

// Message carries one rendered payload per channel.
type Message struct {
	Kind  Kind
	Push  PushContent
	Email EmailContent
	Chat  ChatContent
}
