package repository

import (
	"context"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
)

// ContactInfo is everything needed to reach one subscriber.
type ContactInfo struct {
	UserID     string
	Name       string
	Email      string
	ChatID     string
	PushTokens []string
}

// SubscriberRepository resolves who gets notified and how.
type SubscriberRepository interface {
	// ListSubscribers returns the active user IDs subscribed to a system type.
	ListSubscribers(ctx context.Context, systemType string) ([]string, error)
	// ResolveContactInfo returns contacts for the given users. Unknown or
	// inactive users are skipped.
	ResolveContactInfo(ctx context.Context, userIDs []string) ([]ContactInfo, error)
	// DeletePushRegistration removes a stale push token and returns its owner.
	DeletePushRegistration(ctx context.Context, token string) (string, error)

	CreateSubscriber(ctx context.Context, s *entities.Subscriber) error
	Subscribe(ctx context.Context, userID, systemType string) error
	RegisterPushToken(ctx context.Context, reg *entities.PushRegistration) error
}
