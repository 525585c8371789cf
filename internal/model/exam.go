package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus mirrors the exam lifecycle owned by the exam management service.
type ExamStatus string

// Exam is the read-only view of an exam the proctoring service needs.
type Exam struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Status    ExamStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// ExamSupervisor links an admin to an exam they are responsible for monitoring.
type ExamSupervisor struct {
	ExamID     uuid.UUID `json:"exam_id"`
	AdminID    int       `json:"admin_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AssignSupervisorRequest is the payload for assigning a supervisor to an exam.
type AssignSupervisorRequest struct {
	AdminID int `json:"admin_id" binding:"required,min=1"`
}
