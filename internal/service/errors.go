package service

import "errors"

// Proctoring errors. Handlers map these to response codes with errors.Is.
var (
	ErrExamNotFound        = errors.New("exam not found")
	ErrStudentNotFound     = errors.New("student not found")
	ErrSessionNotFound     = errors.New("proctoring session not found")
	ErrAlertNotFound       = errors.New("alert not found")
	ErrAdminNotFound       = errors.New("admin not found")
	ErrNotAssigned         = errors.New("admin is not a supervisor of this exam")
	ErrInvalidReviewStatus = errors.New("status must be one of: dismissed, flagged, reviewed")
	ErrInvalidSeverity     = errors.New("severity must be one of: low, medium, high, critical")
	ErrSessionIDConflict   = errors.New("session id is owned by another proctoring session")
)
