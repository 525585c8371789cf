package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctoring/internal/model"
)

// ErrDuplicateSessionID is returned when a client-supplied session id is
// already owned by a different proctoring session.
var ErrDuplicateSessionID = errors.New("session id already in use")

const sessionColumns = `
	id, session_id, exam_id, student_id, start_time, end_time, status,
	user_agent, screen_resolution, ip_address, browser, os, timezone,
	total_alerts, alerts_by_type, max_consecutive_alerts,
	browser_switches, focus_lost_count, total_focus_lost_time,
	notes, reviewed, reviewed_by, review_date, created_at, updated_at`

// ProctoringSessionRepository handles proctoring session data access.
type ProctoringSessionRepository struct {
	pool *pgxpool.Pool
}

// NewProctoringSessionRepository creates a new ProctoringSessionRepository.
func NewProctoringSessionRepository(pool *pgxpool.Pool) *ProctoringSessionRepository {
	return &ProctoringSessionRepository{pool: pool}
}

func scanSession(row pgx.Row, extra ...any) (*model.ProctoringSession, error) {
	s := &model.ProctoringSession{}
	dest := []any{
		&s.ID, &s.SessionID, &s.ExamID, &s.StudentID, &s.StartTime, &s.EndTime, &s.Status,
		&s.Environment.UserAgent, &s.Environment.ScreenResolution, &s.Environment.IPAddress,
		&s.Environment.Browser, &s.Environment.OS, &s.Environment.Timezone,
		&s.Stats.TotalAlerts, &s.Stats.AlertsByType, &s.Stats.MaxConsecutiveAlerts,
		&s.Stats.BrowserSwitches, &s.Stats.FocusLostCount, &s.Stats.TotalFocusLostTime,
		&s.Notes, &s.Reviewed, &s.ReviewedBy, &s.ReviewDate, &s.CreatedAt, &s.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if s.Stats.AlertsByType == nil {
		s.Stats.AlertsByType = map[model.AlertType]int{}
	}
	return s, nil
}

// Upsert creates an active session for the exam/student pair, or, when one is
// already active, overwrites its session id, start time and environment.
// The partial unique index on (exam_id, student_id) WHERE status = 'active'
// makes this safe under concurrent registrations.
func (r *ProctoringSessionRepository) Upsert(ctx context.Context, s *model.ProctoringSession) (*model.ProctoringSession, bool, error) {
	var inserted bool
	out, err := scanSession(r.pool.QueryRow(ctx,
		`INSERT INTO proctoring_sessions (
			session_id, exam_id, student_id, start_time, status,
			user_agent, screen_resolution, ip_address, browser, os, timezone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (exam_id, student_id) WHERE status = 'active'
		 DO UPDATE SET
			session_id        = EXCLUDED.session_id,
			start_time        = EXCLUDED.start_time,
			user_agent        = EXCLUDED.user_agent,
			screen_resolution = EXCLUDED.screen_resolution,
			ip_address        = EXCLUDED.ip_address,
			browser           = EXCLUDED.browser,
			os                = EXCLUDED.os,
			timezone          = EXCLUDED.timezone,
			updated_at        = NOW()
		 RETURNING `+sessionColumns+`, (xmax = 0) AS inserted`,
		s.SessionID, s.ExamID, s.StudentID, s.StartTime, model.ProctoringActive,
		s.Environment.UserAgent, s.Environment.ScreenResolution, s.Environment.IPAddress,
		s.Environment.Browser, s.Environment.OS, s.Environment.Timezone,
	), &inserted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "proctoring_sessions_session_id_key" {
			return nil, false, ErrDuplicateSessionID
		}
		return nil, false, err
	}
	return out, inserted, nil
}

// GetBySessionID retrieves a session by its client-supplied id.
func (r *ProctoringSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.ProctoringSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM proctoring_sessions WHERE session_id = $1`, sessionID,
	))
}

// ListActive returns every active session, newest first.
func (r *ProctoringSessionRepository) ListActive(ctx context.Context) ([]model.ProctoringSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM proctoring_sessions
		 WHERE status = $1
		 ORDER BY start_time DESC`, model.ProctoringActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ProctoringSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Close ends a session with the given status and replaces its statistics with
// a full recomputation. notes is left untouched when nil.
func (r *ProctoringSessionRepository) Close(ctx context.Context, sessionID string, status model.ProctoringStatus, endTime time.Time, notes *string, st model.SessionStats) (*model.ProctoringSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`UPDATE proctoring_sessions SET
			status                 = $2,
			end_time               = $3,
			notes                  = COALESCE($4, notes),
			total_alerts           = $5,
			alerts_by_type         = $6,
			max_consecutive_alerts = $7,
			browser_switches       = $8,
			focus_lost_count       = $9,
			total_focus_lost_time  = $10,
			updated_at             = NOW()
		 WHERE session_id = $1
		 RETURNING `+sessionColumns,
		sessionID, status, endTime, notes,
		st.TotalAlerts, st.AlertsByType, st.MaxConsecutiveAlerts,
		st.BrowserSwitches, st.FocusLostCount, st.TotalFocusLostTime,
	))
}

// MarkReviewed records a supervisor sign-off on a session.
func (r *ProctoringSessionRepository) MarkReviewed(ctx context.Context, sessionID string, adminID int, notes string, at time.Time) (*model.ProctoringSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`UPDATE proctoring_sessions SET
			reviewed    = TRUE,
			reviewed_by = $2,
			review_date = $3,
			notes       = CASE WHEN $4::text = '' THEN notes ELSE $4::text END,
			updated_at  = NOW()
		 WHERE session_id = $1
		 RETURNING `+sessionColumns,
		sessionID, adminID, at, notes,
	))
}

// MarkFlagged moves a finished session to "flagged" so it shows up for review.
// Active sessions are left alone.
func (r *ProctoringSessionRepository) MarkFlagged(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE proctoring_sessions
		 SET status = $2, reviewed = FALSE, updated_at = NOW()
		 WHERE session_id = $1 AND status <> $3`,
		sessionID, model.ProctoringFlagged, model.ProctoringActive,
	)
	return err
}
