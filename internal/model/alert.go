package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AlertType enumerates the detector events a client can report.
type AlertType string

const (
	AlertNoFace               AlertType = "no-face-detected"
	AlertMultipleFaces        AlertType = "multiple-faces"
	AlertFaceNotCentered      AlertType = "face-not-centered"
	AlertSuspiciousGaze       AlertType = "suspicious-gaze"
	AlertForbiddenObject      AlertType = "forbidden-object"
	AlertPageLeaveAttempt     AlertType = "page-leave-attempt"
	AlertFocusLost            AlertType = "focus-lost"
	AlertBrowserSwitch        AlertType = "browser-switch"
	AlertScreenSharingStopped AlertType = "screen-sharing-stopped"
	AlertWebcamDisconnected   AlertType = "webcam-disconnected"
	AlertModelLoadError       AlertType = "model-load-error"
	AlertSystemError          AlertType = "system-error"
	AlertOther                AlertType = "other"
)

// Severity ranks how suspicious an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// defaultSeverities is the classification policy for alerts submitted
// without an explicit severity.
var defaultSeverities = map[AlertType]Severity{
	AlertModelLoadError: SeverityCritical,
	AlertSystemError:    SeverityCritical,

	AlertMultipleFaces:      SeverityHigh,
	AlertForbiddenObject:    SeverityHigh,
	AlertWebcamDisconnected: SeverityHigh,

	AlertNoFace:               SeverityMedium,
	AlertPageLeaveAttempt:     SeverityMedium,
	AlertBrowserSwitch:        SeverityMedium,
	AlertScreenSharingStopped: SeverityMedium,

	AlertFaceNotCentered: SeverityLow,
	AlertSuspiciousGaze:  SeverityLow,
	AlertFocusLost:       SeverityLow,
}

// DefaultSeverity returns the policy severity for t. Unknown types are medium.
func DefaultSeverity(t AlertType) Severity {
	if s, ok := defaultSeverities[t]; ok {
		return s
	}
	return SeverityMedium
}

// ReviewStatus tracks a supervisor's verdict on an alert.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewReviewed  ReviewStatus = "reviewed"
	ReviewDismissed ReviewStatus = "dismissed"
	ReviewFlagged   ReviewStatus = "flagged"
)

// Actionable reports whether a supervisor may set the alert to this status.
// Pending is the initial state only.
func (r ReviewStatus) Actionable() bool {
	switch r {
	case ReviewReviewed, ReviewDismissed, ReviewFlagged:
		return true
	}
	return false
}

// Alert is a single detector event attached to a proctoring session.
// Everything except the review fields is immutable once stored.
type Alert struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    string          `json:"sessionId"`
	Type         AlertType       `json:"type"`
	Message      string          `json:"message"`
	Timestamp    time.Time       `json:"timestamp"`
	Severity     Severity        `json:"severity"`
	Evidence     bool            `json:"evidence"`
	EvidencePath *string         `json:"evidencePath,omitempty"`
	Metadata     json.RawMessage `json:"metadata"`
	ReviewStatus ReviewStatus    `json:"reviewStatus"`
	ReviewNotes  string          `json:"reviewNotes"`
	ReviewedBy   *int            `json:"reviewedBy,omitempty"`
	ReviewDate   *time.Time      `json:"reviewDate,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// SubmitAlertRequest is the payload a student client sends for each detector event.
type SubmitAlertRequest struct {
	SessionID    string          `json:"sessionId" binding:"required,max=128"`
	Type         AlertType       `json:"type" binding:"required,max=64"`
	Message      string          `json:"message" binding:"max=2000"`
	Severity     Severity        `json:"severity" binding:"omitempty"`
	Evidence     string          `json:"evidence" binding:"omitempty"`
	Timestamp    *time.Time      `json:"timestamp" binding:"omitempty"`
	WarningCount int             `json:"warningCount" binding:"omitempty,min=0"`
	Metadata     json.RawMessage `json:"metadata" binding:"omitempty"`
}

// UpdateAlertStatusRequest is the supervisor's verdict on an alert.
// Status is validated by the service so unknown values map to a single error code.
type UpdateAlertStatusRequest struct {
	Status ReviewStatus `json:"status" binding:"required"`
	Notes  string       `json:"notes" binding:"max=2000"`
}
