package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/k3a/html2text"
)

var alertEmailTemplate = template.Must(template.New("alert").Parse(`<html><body>
<h2>{{.Heading}}</h2>
<p><b>Incident:</b> {{.Payload.IncidentType}}<br>
<b>Warehouse:</b> {{.Payload.WarehouseName}}<br>
<b>Area:</b> {{.Payload.AreaName}}<br>
<b>Device:</b> {{.Payload.DeviceName}}<br>
<b>Time:</b> {{.Payload.TimestampText}}</p>
{{if .Payload.Details}}<table>
{{range .Payload.Details}}<tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}
</body></html>`))

var repeatEmailTemplate = template.Must(template.New("repeat").Parse(`<html><body>
<h2>Repeated detection</h2>
<p><b>Warehouse:</b> {{.WarehouseName}}<br>
<b>Area:</b> {{.AreaName}}<br>
<b>Subject:</b> {{.AttributesText}}<br>
<b>Detections:</b> {{.DetectionCount}} in {{.DurationMinutes}} min<br>
<b>First seen:</b> {{.FirstSeenText}}<br>
<b>Last seen:</b> {{.LastSeenText}}</p>
{{if .ImageURL}}<p><img src="{{.ImageURL}}" alt="latest detection"></p>{{end}}
</body></html>`))

// headings maps a message kind to its human title prefix.
var headings = map[Kind]string{
	KindAlertRaised: "Alert raised",
	KindAllClear:    "All clear",
	KindIncident:    "Incident",
}

// RenderAlert renders a threshold alert, all-clear or one-shot incident.
func RenderAlert(kind Kind, p AlertPayload) (Message, error) {
	heading, ok := headings[kind]
	if !ok {
		return Message{}, fmt.Errorf("unsupported alert kind %q", kind)
	}

	var buf bytes.Buffer
	data := struct {
		Heading string
		Payload AlertPayload
	}{heading, p}
	if err := alertEmailTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render alert email: %w", err)
	}

	title := fmt.Sprintf("%s: %s", heading, p.IncidentType)
	location := joinNonEmpty(" / ", p.WarehouseName, p.AreaName, p.DeviceName)
	body := location
	if details := formatDetails(p.Details); details != "" {
		body += "\n" + details
	}

	chat := fmt.Sprintf("[%s] %s\n%s\n%s", strings.ToUpper(heading), p.IncidentType, location, p.TimestampText)
	if details := formatDetails(p.Details); details != "" {
		chat += "\n" + details
	}

	return Message{
		Kind: kind,
		Push: PushContent{
			Title: title,
			Body:  body,
			Data: map[string]string{
				"kind":          string(kind),
				"incident_type": p.IncidentType,
				"device":        p.DeviceName,
			},
		},
		Email: EmailContent{
			Subject: fmt.Sprintf("[%s] %s at %s", heading, p.IncidentType, location),
			HTML:    buf.String(),
			Text:    html2text.HTML2Text(buf.String()),
		},
		Chat: ChatContent{Text: chat},
	}, nil
}

// RenderRepeat renders a repeat-detection episode.
func RenderRepeat(p RepeatPayload) (Message, error) {
	var buf bytes.Buffer
	if err := repeatEmailTemplate.Execute(&buf, p); err != nil {
		return Message{}, fmt.Errorf("render repeat email: %w", err)
	}

	location := joinNonEmpty(" / ", p.WarehouseName, p.AreaName)
	summary := fmt.Sprintf("%s seen %d times in %d min", p.AttributesText, p.DetectionCount, p.DurationMinutes)

	return Message{
		Kind: KindRepeat,
		Push: PushContent{
			Title:    "Repeated detection at " + location,
			Body:     summary,
			ImageURL: p.ImageURL,
			Data: map[string]string{
				"kind":            string(KindRepeat),
				"detection_count": strconv.Itoa(p.DetectionCount),
			},
		},
		Email: EmailContent{
			Subject: "[Repeated detection] " + location,
			HTML:    buf.String(),
			Text:    html2text.HTML2Text(buf.String()),
		},
		Chat: ChatContent{Text: strings.TrimSpace(fmt.Sprintf("[REPEATED DETECTION] %s\n%s\n%s - %s\n%s",
			location, summary, p.FirstSeenText, p.LastSeenText, p.ImageURL))},
	}, nil
}

func formatDetails(details []Detail) string {
	parts := make([]string, 0, len(details))
	for _, d := range details {
		parts = append(parts, d.Key+": "+d.Value)
	}
	return strings.Join(parts, ", ")
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
