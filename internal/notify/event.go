// Package notify escalates suspicious proctoring activity to the supervisors
// of an exam over Redis Pub/Sub and email.
package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctoring/internal/model"
)

// EventKind identifies what happened on a supervisor feed.
type EventKind string

const (
	EventEscalation     EventKind = "proctoring-escalation"
	EventSessionStarted EventKind = "session-started"
	EventSessionEnded   EventKind = "session-ended"
)

// AlertSummary is the part of an alert that travels with an escalation.
type AlertSummary struct {
	ID        uuid.UUID       `json:"id"`
	Type      model.AlertType `json:"type"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Severity  model.Severity  `json:"severity"`
	Evidence  bool            `json:"evidence"`
}

// SummarizeAlert copies the escalation-relevant fields of a.
func SummarizeAlert(a *model.Alert) AlertSummary {
	return AlertSummary{
		ID:        a.ID,
		Type:      a.Type,
		Message:   a.Message,
		Timestamp: a.Timestamp,
		Severity:  a.Severity,
		Evidence:  a.Evidence,
	}
}

// Escalation is one request to notify supervisors about an alert. It is the
// payload of the escalation queue.
type Escalation struct {
	SessionID    string       `json:"sessionId"`
	ExamID       uuid.UUID    `json:"examId"`
	StudentID    int          `json:"studentId"`
	WarningCount int          `json:"warningCount"`
	Alert        AlertSummary `json:"alert"`
	RaisedAt     time.Time    `json:"raisedAt"`
}

// Event is what supervisors receive on the exam's real-time channel.
type Event struct {
	Kind         EventKind              `json:"kind"`
	SessionID    string                 `json:"sessionId"`
	ExamID       uuid.UUID              `json:"examId"`
	ExamTitle    string                 `json:"examTitle,omitempty"`
	StudentID    int                    `json:"studentId"`
	StudentName  string                 `json:"studentName,omitempty"`
	Status       model.ProctoringStatus `json:"status,omitempty"`
	WarningCount int                    `json:"warningCount,omitempty"`
	Alert        *AlertSummary          `json:"alert,omitempty"`
	At           time.Time              `json:"at"`
}

// SessionEvent builds a lifecycle event for s.
func SessionEvent(kind EventKind, s *model.ProctoringSession) Event {
	return Event{
		Kind:      kind,
		SessionID: s.SessionID,
		ExamID:    s.ExamID,
		StudentID: s.StudentID,
		Status:    s.Status,
		At:        time.Now(),
	}
}
