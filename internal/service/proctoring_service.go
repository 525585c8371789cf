package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/notify"
	"github.com/stemsi/exstem-proctoring/internal/repository"
	"github.com/stemsi/exstem-proctoring/internal/stats"
)

// DefaultTerminationNote is recorded when a supervisor terminates without a reason.
const DefaultTerminationNote = "Terminated by supervisor"

const announceTimeout = 2 * time.Second

// SessionStore is the persistence used by the session manager.
type SessionStore interface {
	Upsert(ctx context.Context, s *model.ProctoringSession) (*model.ProctoringSession, bool, error)
	GetBySessionID(ctx context.Context, sessionID string) (*model.ProctoringSession, error)
	ListActive(ctx context.Context) ([]model.ProctoringSession, error)
	Close(ctx context.Context, sessionID string, status model.ProctoringStatus, endTime time.Time, notes *string, st model.SessionStats) (*model.ProctoringSession, error)
	MarkReviewed(ctx context.Context, sessionID string, adminID int, notes string, at time.Time) (*model.ProctoringSession, error)
	MarkFlagged(ctx context.Context, sessionID string) error
}

// AlertStore is the persistence used for alerts.
type AlertStore interface {
	Record(ctx context.Context, a *model.Alert) (*model.SessionStats, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Alert, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	UpdateReview(ctx context.Context, id uuid.UUID, status model.ReviewStatus, notes string, reviewerID int, at time.Time) (*model.Alert, error)
}

// ExamLookup checks that an exam exists.
type ExamLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// StudentLookup checks that a student exists.
type StudentLookup interface {
	GetByID(ctx context.Context, id int) (*model.Student, error)
}

// SessionDetail is a session together with its alert history.
type SessionDetail struct {
	Session *model.ProctoringSession `json:"session"`
	Alerts  []model.Alert            `json:"alerts"`
}

// ProctoringService owns the proctoring session lifecycle.
type ProctoringService struct {
	sessions SessionStore
	alerts   AlertStore
	exams    ExamLookup
	students StudentLookup
	events   notify.Broadcaster
	log      zerolog.Logger
	now      func() time.Time
}

// NewProctoringService creates a new ProctoringService. events may be nil.
func NewProctoringService(
	sessions SessionStore,
	alerts AlertStore,
	exams ExamLookup,
	students StudentLookup,
	events notify.Broadcaster,
	log zerolog.Logger,
) *ProctoringService {
	return &ProctoringService{
		sessions: sessions,
		alerts:   alerts,
		exams:    exams,
		students: students,
		events:   events,
		log:      log.With().Str("component", "proctoring_service").Logger(),
		now:      time.Now,
	}
}

// Register starts monitoring for an (exam, student) pair. When the pair
// already has an active session it is updated in place and created is false.
func (s *ProctoringService) Register(ctx context.Context, req model.RegisterSessionRequest, ip string) (*model.ProctoringSession, bool, error) {
	if _, err := s.exams.GetByID(ctx, req.ExamID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrExamNotFound
		}
		return nil, false, fmt.Errorf("get exam: %w", err)
	}
	if _, err := s.students.GetByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrStudentNotFound
		}
		return nil, false, fmt.Errorf("get student: %w", err)
	}

	startTime := s.now()
	if req.StartTime != nil && !req.StartTime.IsZero() {
		startTime = *req.StartTime
	}

	session, created, err := s.sessions.Upsert(ctx, &model.ProctoringSession{
		SessionID:   req.SessionID,
		ExamID:      req.ExamID,
		StudentID:   req.StudentID,
		StartTime:   startTime,
		Status:      model.ProctoringActive,
		Environment: ParseEnvironment(req.UserAgent, req.ScreenResolution, ip, req.Timezone),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateSessionID) {
			return nil, false, ErrSessionIDConflict
		}
		return nil, false, fmt.Errorf("upsert session: %w", err)
	}

	if created {
		s.announce(notify.SessionEvent(notify.EventSessionStarted, session))
	}
	return session, created, nil
}

// Get returns a session by its client id.
func (s *ProctoringService) Get(ctx context.Context, sessionID string) (*model.ProctoringSession, error) {
	session, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// End closes a session normally and settles its statistics from the full
// alert history. Ending a session that is no longer active returns it
// unchanged, so clients can safely retry. A non-zero ownerID restricts the
// call to that student's sessions.
func (s *ProctoringService) End(ctx context.Context, sessionID string, endTime *time.Time, ownerID int) (*model.ProctoringSession, error) {
	at := s.now()
	if endTime != nil && !endTime.IsZero() {
		at = *endTime
	}
	return s.close(ctx, sessionID, ownerID, model.ProctoringCompleted, at, nil)
}

// Terminate is the supervisor-initiated variant of End.
func (s *ProctoringService) Terminate(ctx context.Context, sessionID, reason string, adminID int) (*model.ProctoringSession, error) {
	if reason == "" {
		reason = DefaultTerminationNote
	}
	session, err := s.close(ctx, sessionID, 0, model.ProctoringTerminated, s.now(), &reason)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("session_id", sessionID).Int("admin_id", adminID).Msg("Session terminated by supervisor")
	return session, nil
}

func (s *ProctoringService) close(ctx context.Context, sessionID string, ownerID int, status model.ProctoringStatus, at time.Time, notes *string) (*model.ProctoringSession, error) {
	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ownerID != 0 && current.StudentID != ownerID {
		return nil, ErrSessionNotFound
	}
	if current.Status != model.ProctoringActive {
		return current, nil
	}

	alerts, err := s.alerts.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	session, err := s.sessions.Close(ctx, sessionID, status, at, notes, stats.Recompute(alerts))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("close session: %w", err)
	}

	s.announce(notify.SessionEvent(notify.EventSessionEnded, session))
	return session, nil
}

// ListActive returns every active session, newest first.
func (s *ProctoringService) ListActive(ctx context.Context) ([]model.ProctoringSession, error) {
	sessions, err := s.sessions.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.ProctoringSession{}
	}
	return sessions, nil
}

// Detail returns a session with its alerts, oldest alert first. The two
// reads run concurrently.
func (s *ProctoringService) Detail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	var (
		session    *model.ProctoringSession
		alerts     []model.Alert
		sessionErr error
		alertsErr  error
		wg         sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		session, sessionErr = s.Get(ctx, sessionID)
	}()
	go func() {
		defer wg.Done()
		alerts, alertsErr = s.alerts.ListBySession(ctx, sessionID)
	}()
	wg.Wait()

	if sessionErr != nil {
		return nil, sessionErr
	}
	if alertsErr != nil {
		return nil, fmt.Errorf("list alerts: %w", alertsErr)
	}

	if alerts == nil {
		alerts = []model.Alert{}
	}
	sortAlerts(alerts)
	return &SessionDetail{Session: session, Alerts: alerts}, nil
}

// Review records a supervisor's sign-off on a session.
func (s *ProctoringService) Review(ctx context.Context, sessionID string, adminID int, notes string) (*model.ProctoringSession, error) {
	session, err := s.sessions.MarkReviewed(ctx, sessionID, adminID, notes, s.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("review session: %w", err)
	}
	return session, nil
}

// announce publishes a lifecycle event without holding up the caller.
func (s *ProctoringService) announce(ev notify.Event) {
	if s.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, ev.ExamID, ev); err != nil {
			s.log.Warn().Err(err).Str("session_id", ev.SessionID).Str("kind", string(ev.Kind)).Msg("Failed to publish session event")
		}
	}()
}

// ExamSnapshot returns the active sessions of one exam, newest first.
func (s *ProctoringService) ExamSnapshot(ctx context.Context, examID uuid.UUID) ([]model.ProctoringSession, error) {
	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ProctoringSession, 0, len(active))
	for _, session := range active {
		if session.ExamID == examID {
			out = append(out, session)
		}
	}
	return out, nil
}
