package repository

import (
	"context"
	"time"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
)

// AlertLogRepository stores the alert log and enforces retention.
type AlertLogRepository interface {
	SaveAlertLog(ctx context.Context, entry *entities.AlertLog) error
	ListAlertLogs(ctx context.Context, filter AlertLogFilter) ([]entities.AlertLog, int64, error)
	DeleteAlertLogsBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertLogFilter controls alert log listing queries.
type AlertLogFilter struct {
	DeviceID string
	Kind     string
	Limit    int
	Offset   int
}
