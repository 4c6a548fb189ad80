package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/errors"
)

// detectionRepository implements DetectionRepository.
type detectionRepository struct {
	db *gorm.DB
}

// NewDetectionRepository creates a new DetectionRepository.
func NewDetectionRepository(db *gorm.DB) DetectionRepository {
	return &detectionRepository{db: db}
}

// CreateDetection inserts a detection event.
func (r *detectionRepository) CreateDetection(ctx context.Context, event *entities.DetectionEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create detection event: %w", err)
	}
	return nil
}

// GetDetection returns a detection event by ID.
func (r *detectionRepository) GetDetection(ctx context.Context, id uint) (*entities.DetectionEvent, error) {
	var event entities.DetectionEvent
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDetectionNotFound
		}
		return nil, fmt.Errorf("failed to get detection event %d: %w", id, err)
	}
	return &event, nil
}

// ListUnprocessedDetections returns the correlator backlog.
func (r *detectionRepository) ListUnprocessedDetections(ctx context.Context) ([]entities.DetectionEvent, error) {
	var events []entities.DetectionEvent
	err := r.db.WithContext(ctx).
		Where("detected = ?", true).
		Where("notified_at IS NULL").
		Where("acknowledged_at IS NULL").
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed detections: %w", err)
	}
	return events, nil
}

// MarkDetectionsNotified claims events with a conditional update so that an
// overlapping pass cannot mark the same rows twice.
func (r *detectionRepository) MarkDetectionsNotified(ctx context.Context, ids []uint, when time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&entities.DetectionEvent{}).
		Where("id IN ?", ids).
		Where("notified_at IS NULL").
		Update("notified_at", when)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark %d detections notified: %w", len(ids), result.Error)
	}
	return result.RowsAffected, nil
}

// CountRecentlyNotified counts recent notified events carrying the same payload.
func (r *detectionRepository) CountRecentlyNotified(ctx context.Context, deviceID, attributes string, since time.Time, excludeIDs []uint) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).
		Model(&entities.DetectionEvent{}).
		Where("device_id = ?", deviceID).
		Where("attributes = ?", attributes).
		Where("notified_at IS NOT NULL").
		Where("created_at >= ?", since)
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count recent notifications for %s: %w", deviceID, err)
	}
	return count, nil
}

// AcknowledgeDetection records an operator acknowledgement. Acknowledged
// events leave the backlog.
func (r *detectionRepository) AcknowledgeDetection(ctx context.Context, id uint, when time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&entities.DetectionEvent{}).
		Where("id = ?", id).
		Update("acknowledged_at", when)
	if result.Error != nil {
		return fmt.Errorf("failed to acknowledge detection %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDetectionNotFound
	}
	return nil
}
