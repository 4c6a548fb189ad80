package entities

import "time"

// Subscriber is a user that can receive notifications. Subscriptions and
// push registrations are removed with the subscriber.
type Subscriber struct {
	UserID            string             `gorm:"primaryKey;size:64" json:"user_id"`
	Name              string             `gorm:"size:255;not null" json:"name"`
	Email             string             `gorm:"size:255;default:''" json:"email"`
	ChatID            string             `gorm:"size:128;default:''" json:"chat_id"`
	Active            bool               `gorm:"not null" json:"active"`
	CreatedAt         time.Time          `gorm:"autoCreateTime" json:"created_at"`
	Subscriptions     []Subscription     `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE" json:"-"`
	PushRegistrations []PushRegistration `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (Subscriber) TableName() string {
	return "subscribers"
}

// Subscription links a subscriber to a monitored system type.
type Subscription struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	UserID     string `gorm:"size:64;not null;uniqueIndex:idx_subscription_user_system,priority:1" json:"user_id"`
	SystemType string `gorm:"size:50;not null;uniqueIndex:idx_subscription_user_system,priority:2;index" json:"system_type"`
}

// TableName returns the table name for GORM.
func (Subscription) TableName() string {
	return "subscriptions"
}

// PushRegistration is one device token registered for push delivery.
type PushRegistration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	Token     string    `gorm:"size:512;not null;uniqueIndex" json:"token"`
	Platform  string    `gorm:"size:20;default:''" json:"platform"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (PushRegistration) TableName() string {
	return "push_registrations"
}
