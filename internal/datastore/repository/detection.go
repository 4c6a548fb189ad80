package repository

import (
	"context"
	"time"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
)

// DetectionRepository reads the detection backlog and flags handled events.
type DetectionRepository interface {
	CreateDetection(ctx context.Context, event *entities.DetectionEvent) error
	GetDetection(ctx context.Context, id uint) (*entities.DetectionEvent, error)

	// ListUnprocessedDetections returns detected, unnotified and
	// unacknowledged events ordered by occurrence time.
	ListUnprocessedDetections(ctx context.Context) ([]entities.DetectionEvent, error)
	// MarkDetectionsNotified sets notified_at on events that do not have it
	// yet and returns how many rows were claimed.
	MarkDetectionsNotified(ctx context.Context, ids []uint, when time.Time) (int64, error)
	// CountRecentlyNotified counts notified events for the device with the
	// exact attribute payload created at or after since, ignoring excludeIDs.
	CountRecentlyNotified(ctx context.Context, deviceID, attributes string, since time.Time, excludeIDs []uint) (int64, error)
	AcknowledgeDetection(ctx context.Context, id uint, when time.Time) error
}
