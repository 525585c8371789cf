package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctoringStatus enumerates proctoring session states.
type ProctoringStatus string

const (
	ProctoringActive     ProctoringStatus = "active"
	ProctoringCompleted  ProctoringStatus = "completed"
	ProctoringTerminated ProctoringStatus = "terminated"
	ProctoringFlagged    ProctoringStatus = "flagged"
)

// Environment is the client snapshot captured once at registration.
type Environment struct {
	UserAgent        string `json:"userAgent"`
	ScreenResolution string `json:"screenResolution"`
	IPAddress        string `json:"ipAddress"`
	Browser          string `json:"browser"`
	OS               string `json:"os"`
	Timezone         string `json:"timezone"`
}

// SessionStats is derived data, always recomputable from the alert history.
type SessionStats struct {
	TotalAlerts          int               `json:"totalAlerts"`
	AlertsByType         map[AlertType]int `json:"alertsByType"`
	MaxConsecutiveAlerts int               `json:"maxConsecutiveAlerts"`
	BrowserSwitches      int               `json:"browserSwitches"`
	FocusLostCount       int               `json:"focusLostCount"`
	TotalFocusLostTime   int64             `json:"totalFocusLostTime"` // milliseconds
}

// ProctoringSession is the live monitoring record for one student sitting one exam.
type ProctoringSession struct {
	ID          uuid.UUID        `json:"id"`
	SessionID   string           `json:"sessionId"`
	ExamID      uuid.UUID        `json:"examId"`
	StudentID   int              `json:"studentId"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     *time.Time       `json:"endTime,omitempty"`
	Status      ProctoringStatus `json:"status"`
	Environment Environment      `json:"environment"`
	Stats       SessionStats     `json:"stats"`
	Notes       string           `json:"notes"`
	Reviewed    bool             `json:"reviewed"`
	ReviewedBy  *int             `json:"reviewedBy,omitempty"`
	ReviewDate  *time.Time       `json:"reviewDate,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// RegisterSessionRequest is sent by the student client when monitoring starts.
type RegisterSessionRequest struct {
	SessionID        string     `json:"sessionId" binding:"required,max=128"`
	ExamID           uuid.UUID  `json:"examId" binding:"required"`
	StudentID        int        `json:"studentId" binding:"required,min=1"`
	StartTime        *time.Time `json:"startTime" binding:"omitempty"`
	UserAgent        string     `json:"userAgent" binding:"max=1024"`
	ScreenResolution string     `json:"screenResolution" binding:"max=32"`
	Timezone         string     `json:"timezone" binding:"omitempty,max=64"`
}

// EndSessionRequest closes a session normally.
type EndSessionRequest struct {
	SessionID string     `json:"sessionId" binding:"required,max=128"`
	EndTime   *time.Time `json:"endTime" binding:"omitempty"`
}

// TerminateSessionRequest is the supervisor-initiated variant of EndSessionRequest.
type TerminateSessionRequest struct {
	Reason string `json:"reason" binding:"max=2000"`
}

// ReviewSessionRequest records a supervisor sign-off on a session.
type ReviewSessionRequest struct {
	Notes string `json:"notes" binding:"max=2000"`
}
