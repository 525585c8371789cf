package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctoring/internal/model"
)

// SupervisorStore manages the exam_supervisors assignment table.
type SupervisorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListSupervisors(ctx context.Context, examID uuid.UUID) ([]model.ExamSupervisor, error)
	AssignSupervisor(ctx context.Context, examID uuid.UUID, adminID int) error
	RemoveSupervisor(ctx context.Context, examID uuid.UUID, adminID int) (bool, error)
}

// AdminLookup checks that an admin exists.
type AdminLookup interface {
	GetByID(ctx context.Context, id int) (*model.Admin, error)
}

// SupervisorService assigns admins to the exams they watch. Assigned
// supervisors are the first escalation recipients for the exam.
type SupervisorService struct {
	exams  SupervisorStore
	admins AdminLookup
}

// NewSupervisorService creates a new SupervisorService.
func NewSupervisorService(exams SupervisorStore, admins AdminLookup) *SupervisorService {
	return &SupervisorService{exams: exams, admins: admins}
}

// List returns the supervisors of an exam.
func (s *SupervisorService) List(ctx context.Context, examID uuid.UUID) ([]model.ExamSupervisor, error) {
	if err := s.ensureExam(ctx, examID); err != nil {
		return nil, err
	}
	supervisors, err := s.exams.ListSupervisors(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list supervisors: %w", err)
	}
	return supervisors, nil
}

// Assign makes adminID a supervisor of examID and returns the updated list.
func (s *SupervisorService) Assign(ctx context.Context, examID uuid.UUID, adminID int) ([]model.ExamSupervisor, error) {
	if err := s.ensureExam(ctx, examID); err != nil {
		return nil, err
	}
	if _, err := s.admins.GetByID(ctx, adminID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}

	if err := s.exams.AssignSupervisor(ctx, examID, adminID); err != nil {
		return nil, fmt.Errorf("assign supervisor: %w", err)
	}
	return s.List(ctx, examID)
}

// Remove unassigns adminID from examID.
func (s *SupervisorService) Remove(ctx context.Context, examID uuid.UUID, adminID int) error {
	removed, err := s.exams.RemoveSupervisor(ctx, examID, adminID)
	if err != nil {
		return fmt.Errorf("remove supervisor: %w", err)
	}
	if !removed {
		return ErrNotAssigned
	}
	return nil
}

func (s *SupervisorService) ensureExam(ctx context.Context, examID uuid.UUID) error {
	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("get exam: %w", err)
	}
	return nil
}
