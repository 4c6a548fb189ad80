package repository

import "github.com/gudangguard/sentinel/internal/errors"

// Sentinel errors returned by repositories.
var (
	ErrDeviceNotFound      = errors.NewStd("device not found")
	ErrHierarchyIncomplete = errors.NewStd("device area or warehouse missing")
	ErrDetectionNotFound   = errors.NewStd("detection event not found")
	ErrSubscriberNotFound  = errors.NewStd("subscriber not found")
)
