package entities

import "time"

// DetectionEvent is a vision detection stored by the ingestion layer.
// Attributes holds the raw identity attribute JSON as received; the
// correlator compares it byte for byte when suppressing recent repeats.
type DetectionEvent struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	DeviceID       string     `gorm:"size:64;not null;index:idx_detection_device_notified,priority:1" json:"device_id"`
	OccurredAt     time.Time  `gorm:"not null;index" json:"occurred_at"`
	Detected       bool       `gorm:"not null" json:"detected"`
	Attributes     string     `gorm:"type:text" json:"attributes"`
	ImageRef       string     `gorm:"size:512;default:''" json:"image_ref"`
	NotifiedAt     *time.Time `gorm:"index:idx_detection_device_notified,priority:2" json:"notified_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for GORM.
func (DetectionEvent) TableName() string {
	return "detection_events"
}
