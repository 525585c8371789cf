package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctoring/internal/model"
)

// ExamRepository handles exam lookups and the supervisor assignment table.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, status, created_at FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Status, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListSupervisors returns the admins assigned to supervise an exam.
func (r *ExamRepository) ListSupervisors(ctx context.Context, examID uuid.UUID) ([]model.ExamSupervisor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT es.exam_id, a.id, a.name, a.email, es.assigned_at
		 FROM exam_supervisors es JOIN admins a ON es.admin_id = a.id
		 WHERE es.exam_id = $1
		 ORDER BY es.assigned_at`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	supervisors := []model.ExamSupervisor{}
	for rows.Next() {
		var s model.ExamSupervisor
		if err := rows.Scan(&s.ExamID, &s.AdminID, &s.Name, &s.Email, &s.AssignedAt); err != nil {
			return nil, err
		}
		supervisors = append(supervisors, s)
	}
	return supervisors, rows.Err()
}

// AssignSupervisor links an admin to an exam. Assigning twice is a no-op.
func (r *ExamRepository) AssignSupervisor(ctx context.Context, examID uuid.UUID, adminID int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_supervisors (exam_id, admin_id)
		 VALUES ($1, $2)
		 ON CONFLICT (exam_id, admin_id) DO NOTHING`,
		examID, adminID,
	)
	return err
}

// RemoveSupervisor unlinks an admin from an exam and reports whether a row was removed.
func (r *ExamRepository) RemoveSupervisor(ctx context.Context, examID uuid.UUID, adminID int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM exam_supervisors WHERE exam_id = $1 AND admin_id = $2`,
		examID, adminID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
