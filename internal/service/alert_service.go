package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/config"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/notify"
)

const (
	enqueueTimeout  = 2 * time.Second
	fallbackTimeout = 30 * time.Second
)

// EvidenceStore persists alert proof images.
type EvidenceStore interface {
	Save(ctx context.Context, sessionID, payload string) (string, error)
}

// EscalationQueue hands escalations to the background worker.
type EscalationQueue interface {
	Enqueue(ctx context.Context, esc notify.Escalation) error
}

// EscalationNotifier delivers an escalation in-process.
type EscalationNotifier interface {
	Notify(ctx context.Context, esc notify.Escalation)
}

// AlertOptions configures when alerts escalate.
type AlertOptions struct {
	Threshold   int
	CountSource config.EscalationCountSource
}

// AlertService classifies, stores and escalates detector alerts, and runs the
// supervisor review workflow.
type AlertService struct {
	sessions SessionStore
	alerts   AlertStore
	evidence EvidenceStore
	queue    EscalationQueue
	notifier EscalationNotifier
	opts     AlertOptions
	log      zerolog.Logger
	now      func() time.Time

	inflight sync.WaitGroup
}

// NewAlertService creates a new AlertService. queue may be nil, in which case
// escalations are always delivered in-process through notifier.
func NewAlertService(
	sessions SessionStore,
	alerts AlertStore,
	evidence EvidenceStore,
	queue EscalationQueue,
	notifier EscalationNotifier,
	opts AlertOptions,
	log zerolog.Logger,
) *AlertService {
	return &AlertService{
		sessions: sessions,
		alerts:   alerts,
		evidence: evidence,
		queue:    queue,
		notifier: notifier,
		opts:     opts,
		log:      log.With().Str("component", "alert_service").Logger(),
		now:      time.Now,
	}
}

// Submit records one detector event. A non-zero ownerID restricts the call to
// that student's sessions. The alert row and the session counters are written
// together or not at all; escalation happens in the background and can never
// fail the submission.
func (s *AlertService) Submit(ctx context.Context, req model.SubmitAlertRequest, ownerID int) (*model.Alert, error) {
	severity := req.Severity
	if severity == "" {
		severity = model.DefaultSeverity(req.Type)
	} else if !severity.Valid() {
		return nil, ErrInvalidSeverity
	}

	session, err := s.sessions.GetBySessionID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if ownerID != 0 && session.StudentID != ownerID {
		return nil, ErrSessionNotFound
	}

	alert := &model.Alert{
		SessionID: req.SessionID,
		Type:      req.Type,
		Message:   req.Message,
		Timestamp: s.now(),
		Severity:  severity,
		Metadata:  req.Metadata,
	}
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		alert.Timestamp = *req.Timestamp
	}

	if req.Evidence != "" {
		path, err := s.evidence.Save(ctx, req.SessionID, req.Evidence)
		if err != nil {
			return nil, fmt.Errorf("save evidence: %w", err)
		}
		alert.Evidence = true
		alert.EvidencePath = &path
	}

	counters, err := s.alerts.Record(ctx, alert)
	if err != nil {
		if alert.EvidencePath != nil {
			s.log.Warn().Str("path", *alert.EvidencePath).Msg("Evidence stored for an alert that was not recorded")
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("record alert: %w", err)
	}

	warningCount := req.WarningCount
	if s.opts.CountSource == config.CountSourceServer && counters != nil {
		warningCount = counters.TotalAlerts
	}
	if s.opts.Threshold > 0 && warningCount >= s.opts.Threshold {
		s.escalate(notify.Escalation{
			SessionID:    session.SessionID,
			ExamID:       session.ExamID,
			StudentID:    session.StudentID,
			WarningCount: warningCount,
			Alert:        notify.SummarizeAlert(alert),
			RaisedAt:     s.now(),
		})
	}

	return alert, nil
}

// escalate queues esc for the worker, falling back to in-process delivery
// when the queue is unavailable. It never blocks the caller.
func (s *AlertService) escalate(esc notify.Escalation) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Str("session_id", esc.SessionID).Msg("Escalation panicked")
			}
		}()

		if s.queue != nil {
			ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
			err := s.queue.Enqueue(ctx, esc)
			cancel()
			if err == nil {
				return
			}
			s.log.Warn().Err(err).Str("session_id", esc.SessionID).Msg("Escalation enqueue failed, delivering in-process")
		}

		if s.notifier == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), fallbackTimeout)
		defer cancel()
		s.notifier.Notify(ctx, esc)
	}()
}

// Wait blocks until background escalations started by Submit have finished.
func (s *AlertService) Wait() {
	s.inflight.Wait()
}

// UpdateStatus records a supervisor verdict on an alert. Flagging an alert of
// a session that is no longer active moves that session to "flagged".
func (s *AlertService) UpdateStatus(ctx context.Context, alertID uuid.UUID, req model.UpdateAlertStatusRequest, reviewerID int) (*model.Alert, error) {
	if !req.Status.Actionable() {
		return nil, ErrInvalidReviewStatus
	}

	alert, err := s.alerts.UpdateReview(ctx, alertID, req.Status, req.Notes, reviewerID, s.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("update alert review: %w", err)
	}

	if req.Status == model.ReviewFlagged {
		if err := s.sessions.MarkFlagged(ctx, alert.SessionID); err != nil {
			s.log.Warn().Err(err).Str("session_id", alert.SessionID).Msg("Failed to flag session")
		}
	}
	return alert, nil
}

func sortAlerts(alerts []model.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
}
