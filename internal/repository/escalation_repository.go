package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctoring/internal/model"
)

// EscalationRepository answers the lookups the escalation notifier needs:
// who to notify for an exam and the display names that go into the notice.
type EscalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository creates a new EscalationRepository.
func NewEscalationRepository(pool *pgxpool.Pool) *EscalationRepository {
	return &EscalationRepository{pool: pool}
}

// ExamSupervisors returns the admins explicitly assigned to the exam.
func (r *EscalationRepository) ExamSupervisors(ctx context.Context, examID uuid.UUID) ([]model.Recipient, error) {
	return r.recipients(ctx,
		`SELECT a.id, a.name, a.email
		 FROM exam_supervisors es JOIN admins a ON es.admin_id = a.id
		 WHERE es.exam_id = $1
		 ORDER BY a.id`, examID,
	)
}

// PlatformAdmins returns every admin holding the Super Admin role.
func (r *EscalationRepository) PlatformAdmins(ctx context.Context) ([]model.Recipient, error) {
	return r.recipients(ctx,
		`SELECT a.id, a.name, a.email
		 FROM admins a JOIN roles r ON a.role_id = r.id
		 WHERE r.name = $1
		 ORDER BY a.id`, model.RoleSuperAdmin,
	)
}

// ExamTitle returns the exam's display title.
func (r *EscalationRepository) ExamTitle(ctx context.Context, examID uuid.UUID) (string, error) {
	var title string
	err := r.pool.QueryRow(ctx, `SELECT title FROM exams WHERE id = $1`, examID).Scan(&title)
	return title, err
}

// StudentName returns the student's display name.
func (r *EscalationRepository) StudentName(ctx context.Context, studentID int) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM students WHERE id = $1`, studentID).Scan(&name)
	return name, err
}

func (r *EscalationRepository) recipients(ctx context.Context, query string, args ...any) ([]model.Recipient, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Recipient
	for rows.Next() {
		var rc model.Recipient
		if err := rows.Scan(&rc.AdminID, &rc.Name, &rc.Email); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
