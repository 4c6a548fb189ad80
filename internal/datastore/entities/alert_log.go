package entities

import "time"

// Alert log kinds.
const (
	AlertLogTransition = "transition"
	AlertLogIncident   = "incident"
	AlertLogRepeat     = "repeat"
)

// AlertLog records each threshold transition, one-shot incident and
// repeat episode that produced a notification.
type AlertLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Kind         string    `gorm:"size:20;not null;index" json:"kind"`
	DeviceID     string    `gorm:"size:64;not null;index:idx_alert_log_device_fired,priority:1" json:"device_id"`
	SystemType   string    `gorm:"size:50;default:''" json:"system_type"`
	IncidentType string    `gorm:"size:50;default:''" json:"incident_type"`
	Direction    string    `gorm:"size:10;default:''" json:"direction,omitempty"`
	Details      string    `gorm:"type:text" json:"details"`
	FiredAt      time.Time `gorm:"not null;index:idx_alert_log_device_fired,priority:2;index" json:"fired_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AlertLog) TableName() string {
	return "alert_log"
}

// All returns every entity for AutoMigrate, parents first.
func All() []any {
	return []any{
		&Warehouse{},
		&Area{},
		&Device{},
		&DetectionEvent{},
		&Subscriber{},
		&Subscription{},
		&PushRegistration{},
		&AlertLog{},
	}
}
