package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"golang.org/x/sync/errgroup"
)

// Directory resolves who to notify and the names shown in a notice.
type Directory interface {
	ExamSupervisors(ctx context.Context, examID uuid.UUID) ([]model.Recipient, error)
	PlatformAdmins(ctx context.Context) ([]model.Recipient, error)
	ExamTitle(ctx context.Context, examID uuid.UUID) (string, error)
	StudentName(ctx context.Context, studentID int) (string, error)
}

// Options tunes escalation delivery.
type Options struct {
	Threshold    int
	EmailTimeout time.Duration
	MaxParallel  int
	DashboardURL string
}

// Notifier escalates an alert to the exam's supervisors, or to the platform
// administrators when the exam has none. Both delivery channels are best
// effort: failures are logged and never returned.
type Notifier struct {
	dir         Directory
	broadcaster Broadcaster
	mailer      Mailer
	opts        Options
	log         zerolog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(dir Directory, broadcaster Broadcaster, mailer Mailer, opts Options, log zerolog.Logger) *Notifier {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	if opts.EmailTimeout <= 0 {
		opts.EmailTimeout = 10 * time.Second
	}
	return &Notifier{
		dir:         dir,
		broadcaster: broadcaster,
		mailer:      mailer,
		opts:        opts,
		log:         log.With().Str("component", "escalation_notifier").Logger(),
	}
}

// Threshold returns the warning count at which escalation starts.
func (n *Notifier) Threshold() int {
	return n.opts.Threshold
}

// Notify delivers esc if its warning count meets the threshold.
func (n *Notifier) Notify(ctx context.Context, esc Escalation) {
	log := n.log.With().
		Str("session_id", esc.SessionID).
		Str("exam_id", esc.ExamID.String()).
		Int("student_id", esc.StudentID).
		Int("warning_count", esc.WarningCount).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Escalation aborted by panic")
		}
	}()

	if esc.WarningCount < n.opts.Threshold {
		return
	}

	recipients := n.resolveRecipients(ctx, esc.ExamID, log)
	if len(recipients) == 0 {
		log.Warn().Msg("No supervisors or administrators to notify, escalation dropped")
		return
	}

	examTitle, err := n.dir.ExamTitle(ctx, esc.ExamID)
	if err != nil || examTitle == "" {
		examTitle = "Ujian " + esc.ExamID.String()
	}
	studentName, err := n.dir.StudentName(ctx, esc.StudentID)
	if err != nil || studentName == "" {
		studentName = fmt.Sprintf("Siswa #%d", esc.StudentID)
	}

	alert := esc.Alert
	ev := Event{
		Kind:         EventEscalation,
		SessionID:    esc.SessionID,
		ExamID:       esc.ExamID,
		ExamTitle:    examTitle,
		StudentID:    esc.StudentID,
		StudentName:  studentName,
		WarningCount: esc.WarningCount,
		Alert:        &alert,
		At:           time.Now(),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Real-time publish panicked")
			}
		}()
		if err := n.broadcaster.Publish(ctx, esc.ExamID, ev); err != nil {
			log.Warn().Err(err).Msg("Failed to publish escalation event")
		}
	}()

	n.sendEmails(ctx, emailData{
		ExamTitle:    examTitle,
		StudentName:  studentName,
		StudentID:    esc.StudentID,
		SessionID:    esc.SessionID,
		WarningCount: esc.WarningCount,
		Alert:        esc.Alert,
		SessionURL:   n.sessionURL(esc.SessionID),
	}, recipients, log)

	wg.Wait()
}

// resolveRecipients returns exam supervisors, falling back to platform
// administrators. Duplicate addresses are collapsed.
func (n *Notifier) resolveRecipients(ctx context.Context, examID uuid.UUID, log zerolog.Logger) []model.Recipient {
	supervisors, err := n.dir.ExamSupervisors(ctx, examID)
	if err != nil {
		log.Warn().Err(err).Msg("Supervisor lookup failed, falling back to administrators")
	}
	if recipients := dedupe(supervisors); len(recipients) > 0 {
		return recipients
	}

	admins, err := n.dir.PlatformAdmins(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Administrator lookup failed")
		return nil
	}
	return dedupe(admins)
}

func (n *Notifier) sendEmails(ctx context.Context, data emailData, recipients []model.Recipient, log zerolog.Logger) {
	// A plain Group: one failed send must not cancel the others.
	var g errgroup.Group
	g.SetLimit(n.opts.MaxParallel)

	for _, rc := range recipients {
		rc := rc
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("to", rc.Email).Msg("Email send panicked")
				}
			}()

			msg, err := renderEscalation(data, rc)
			if err != nil {
				log.Error().Err(err).Str("to", rc.Email).Msg("Failed to render escalation email")
				return nil
			}

			sendCtx, cancel := context.WithTimeout(ctx, n.opts.EmailTimeout)
			defer cancel()
			if err := n.mailer.Send(sendCtx, msg); err != nil {
				log.Warn().Err(err).Str("to", rc.Email).Msg("Failed to send escalation email")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (n *Notifier) sessionURL(sessionID string) string {
	base := strings.TrimRight(n.opts.DashboardURL, "/")
	return base + "/proctoring/sessions/" + url.PathEscape(sessionID)
}

func dedupe(in []model.Recipient) []model.Recipient {
	seen := make(map[string]bool, len(in))
	out := make([]model.Recipient, 0, len(in))
	for _, r := range in {
		key := strings.ToLower(strings.TrimSpace(r.Email))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
