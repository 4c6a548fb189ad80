package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
)

// alertLogRepository implements AlertLogRepository.
type alertLogRepository struct {
	db *gorm.DB
}

// NewAlertLogRepository creates a new AlertLogRepository.
func NewAlertLogRepository(db *gorm.DB) AlertLogRepository {
	return &alertLogRepository{db: db}
}

// SaveAlertLog appends an alert log entry.
func (r *alertLogRepository) SaveAlertLog(ctx context.Context, entry *entities.AlertLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to save alert log: %w", err)
	}
	return nil
}

// ListAlertLogs returns entries matching the filter, newest first, with the
// total count before pagination.
func (r *alertLogRepository) ListAlertLogs(ctx context.Context, filter AlertLogFilter) ([]entities.AlertLog, int64, error) {
	var items []entities.AlertLog
	var total int64

	scope := func(q *gorm.DB) *gorm.DB {
		if filter.DeviceID != "" {
			q = q.Where("device_id = ?", filter.DeviceID)
		}
		if filter.Kind != "" {
			q = q.Where("kind = ?", filter.Kind)
		}
		return q
	}

	if err := r.db.WithContext(ctx).Model(&entities.AlertLog{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alert log: %w", err)
	}

	query := r.db.WithContext(ctx).Scopes(scope).Order("fired_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alert log: %w", err)
	}
	return items, total, nil
}

// DeleteAlertLogsBefore deletes entries fired before the given time.
func (r *alertLogRepository) DeleteAlertLogsBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("fired_at < ?", before).Delete(&entities.AlertLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete alert log before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
