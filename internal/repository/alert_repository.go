package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/stats"
)

const alertColumns = `
	id, session_id, type, message, timestamp, severity, evidence, evidence_path,
	metadata, review_status, review_notes, reviewed_by, review_date, created_at`

// AlertRepository handles proctoring alert data access.
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

func scanAlert(row pgx.Row) (*model.Alert, error) {
	a := &model.Alert{}
	var metadata []byte
	err := row.Scan(&a.ID, &a.SessionID, &a.Type, &a.Message, &a.Timestamp, &a.Severity,
		&a.Evidence, &a.EvidencePath, &metadata, &a.ReviewStatus, &a.ReviewNotes,
		&a.ReviewedBy, &a.ReviewDate, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		a.Metadata = metadata
	}
	return a, nil
}

// Record inserts the alert and bumps the owning session's running counters in
// a single transaction: either both happen or neither does.
// Returns pgx.ErrNoRows when the session does not exist.
func (r *AlertRepository) Record(ctx context.Context, a *model.Alert) (*model.SessionStats, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	metadata := []byte(a.Metadata)
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO proctoring_alerts (
			session_id, type, message, timestamp, severity, evidence, evidence_path, metadata, review_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		a.SessionID, a.Type, a.Message, a.Timestamp, a.Severity, a.Evidence, a.EvidencePath,
		metadata, model.ReviewPending,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	a.ReviewStatus = model.ReviewPending

	c := stats.ContributionOf(*a)
	st := &model.SessionStats{}
	err = tx.QueryRow(ctx,
		`UPDATE proctoring_sessions SET
			total_alerts   = total_alerts + 1,
			alerts_by_type = jsonb_set(alerts_by_type, ARRAY[$2::text],
				to_jsonb(COALESCE((alerts_by_type ->> $2::text)::int, 0) + 1)),
			browser_switches      = browser_switches + $3,
			focus_lost_count      = focus_lost_count + $4,
			total_focus_lost_time = total_focus_lost_time + $5,
			current_run = CASE
				WHEN last_alert_at IS NOT NULL
				 AND $6::timestamptz >= last_alert_at
				 AND $6::timestamptz - last_alert_at <= make_interval(secs => $7::double precision)
				THEN current_run + 1 ELSE 1 END,
			max_consecutive_alerts = GREATEST(max_consecutive_alerts, CASE
				WHEN last_alert_at IS NOT NULL
				 AND $6::timestamptz >= last_alert_at
				 AND $6::timestamptz - last_alert_at <= make_interval(secs => $7::double precision)
				THEN current_run + 1 ELSE 1 END),
			last_alert_at = GREATEST(last_alert_at, $6::timestamptz),
			updated_at    = NOW()
		 WHERE session_id = $1
		 RETURNING total_alerts, alerts_by_type, max_consecutive_alerts,
			browser_switches, focus_lost_count, total_focus_lost_time`,
		a.SessionID, string(a.Type), c.BrowserSwitches, c.FocusLost, c.FocusLostMillis,
		a.Timestamp, stats.ConsecutiveWindow.Seconds(),
	).Scan(&st.TotalAlerts, &st.AlertsByType, &st.MaxConsecutiveAlerts,
		&st.BrowserSwitches, &st.FocusLostCount, &st.TotalFocusLostTime)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return st, nil
}

// ListBySession returns every alert of a session, oldest first.
func (r *AlertRepository) ListBySession(ctx context.Context, sessionID string) ([]model.Alert, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM proctoring_alerts
		 WHERE session_id = $1
		 ORDER BY timestamp ASC, created_at ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []model.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// GetByID retrieves a single alert.
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM proctoring_alerts WHERE id = $1`, id,
	))
}

// UpdateReview stamps a supervisor's verdict on an alert. Only the review
// fields are ever written after insert.
func (r *AlertRepository) UpdateReview(ctx context.Context, id uuid.UUID, status model.ReviewStatus, notes string, reviewerID int, at time.Time) (*model.Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx,
		`UPDATE proctoring_alerts SET
			review_status = $2,
			review_notes  = $3,
			reviewed_by   = $4,
			review_date   = $5
		 WHERE id = $1
		 RETURNING `+alertColumns,
		id, status, notes, reviewerID, at,
	))
}
