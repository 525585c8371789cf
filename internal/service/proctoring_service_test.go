package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/model"
)

const firefoxLinux = "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"

type fixture struct {
	store      *memStore
	exams      *memExams
	examID     uuid.UUID
	studentID  int
	proctoring *ProctoringService
	alerts     *AlertService
	queue      *fakeQueue
	notifier   *fakeNotifier
}

func newFixture(t *testing.T, opts AlertOptions) *fixture {
	t.Helper()
	examID := uuid.New()
	f := &fixture{
		store:     newMemStore(),
		exams:     newMemExams(examID),
		examID:    examID,
		studentID: 7,
		queue:     &fakeQueue{},
		notifier:  &fakeNotifier{},
	}
	students := memStudents{7: true, 8: true}
	f.proctoring = NewProctoringService(f.store, f.store, f.exams, students, nil, zerolog.Nop())
	f.alerts = NewAlertService(f.store, f.store, failingEvidence{}, f.queue, f.notifier, opts, zerolog.Nop())
	return f
}

func (f *fixture) register(t *testing.T, sessionID string) *model.ProctoringSession {
	t.Helper()
	s, _, err := f.proctoring.Register(context.Background(), model.RegisterSessionRequest{
		SessionID:        sessionID,
		ExamID:           f.examID,
		StudentID:        f.studentID,
		UserAgent:        firefoxLinux,
		ScreenResolution: "1366x768",
	}, "10.1.1.1")
	if err != nil {
		t.Fatalf("Register(%s): %v", sessionID, err)
	}
	return s
}

func (f *fixture) submit(t *testing.T, sessionID string, typ model.AlertType, at time.Time) *model.Alert {
	t.Helper()
	a, err := f.alerts.Submit(context.Background(), model.SubmitAlertRequest{
		SessionID: sessionID,
		Type:      typ,
		Message:   string(typ),
		Timestamp: &at,
	}, 0)
	if err != nil {
		t.Fatalf("Submit(%s): %v", typ, err)
	}
	return a
}

func TestRegisterCreatesSession(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	s, created, err := f.proctoring.Register(context.Background(), model.RegisterSessionRequest{
		SessionID: "sess-x",
		ExamID:    f.examID,
		StudentID: f.studentID,
		UserAgent: firefoxLinux,
	}, "10.1.1.1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !created {
		t.Fatal("first registration should create")
	}
	if s.Status != model.ProctoringActive || s.Stats.TotalAlerts != 0 || s.Stats.MaxConsecutiveAlerts != 0 {
		t.Fatalf("unexpected new session %+v", s)
	}
	if s.Environment.Browser != "Firefox" || s.Environment.Timezone != "UTC" || s.Environment.IPAddress != "10.1.1.1" {
		t.Fatalf("unexpected environment %+v", s.Environment)
	}
	if s.StartTime.IsZero() {
		t.Fatal("start time should default to now")
	}
}

func TestReRegistrationUpdatesActiveSession(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	first := f.register(t, "sess-x")

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	second, created, err := f.proctoring.Register(context.Background(), model.RegisterSessionRequest{
		SessionID:        "sess-y",
		ExamID:           f.examID,
		StudentID:        f.studentID,
		StartTime:        &start,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ScreenResolution: "1920x1080",
		Timezone:         "Asia/Jakarta",
	}, "10.2.2.2")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if created {
		t.Fatal("re-registration must update, not create")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same session row, got %s and %s", first.ID, second.ID)
	}

	active := f.store.activeFor(f.examID, f.studentID)
	if len(active) != 1 {
		t.Fatalf("expected exactly one active session, got %d", len(active))
	}
	got := active[0]
	if got.SessionID != "sess-y" || !got.StartTime.Equal(start) {
		t.Fatalf("session id/start not updated: %+v", got)
	}
	if got.Environment.Browser != "Chrome" || got.Environment.ScreenResolution != "1920x1080" ||
		got.Environment.Timezone != "Asia/Jakarta" || got.Environment.IPAddress != "10.2.2.2" {
		t.Fatalf("environment not updated: %+v", got.Environment)
	}
}

func TestRegisterAfterEndStartsNewSession(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	first := f.register(t, "sess-1")
	if _, err := f.proctoring.End(context.Background(), "sess-1", nil, 0); err != nil {
		t.Fatalf("End: %v", err)
	}

	second := f.register(t, "sess-2")
	if second.ID == first.ID {
		t.Fatal("a finished session must not be reused")
	}
}

func TestRegisterErrors(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	f.register(t, "taken")

	other := uuid.New()
	f.exams.exams[other] = &model.Exam{ID: other}

	tests := []struct {
		name string
		req  model.RegisterSessionRequest
		want error
	}{
		{"unknown exam", model.RegisterSessionRequest{SessionID: "a", ExamID: uuid.New(), StudentID: 7}, ErrExamNotFound},
		{"unknown student", model.RegisterSessionRequest{SessionID: "a", ExamID: f.examID, StudentID: 999}, ErrStudentNotFound},
		{"session id owned by another session", model.RegisterSessionRequest{SessionID: "taken", ExamID: other, StudentID: 8}, ErrSessionIDConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.proctoring.Register(context.Background(), tt.req, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConcurrentRegistrationKeepsOneActiveSession(t *testing.T) {
	f := newFixture(t, AlertOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.proctoring.Register(context.Background(), model.RegisterSessionRequest{
				SessionID: fmt.Sprintf("sess-%d", i),
				ExamID:    f.examID,
				StudentID: f.studentID,
			}, "")
			if err != nil {
				t.Errorf("Register #%d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	if n := len(f.store.activeFor(f.examID, f.studentID)); n != 1 {
		t.Fatalf("expected one active session, got %d", n)
	}
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	f.register(t, "S")

	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		f.submit(t, "S", model.AlertNoFace, base.Add(time.Duration(i)*2*time.Second))
	}

	ended, err := f.proctoring.End(context.Background(), "S", nil, f.studentID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != model.ProctoringCompleted || ended.EndTime == nil {
		t.Fatalf("expected completed with end time, got %+v", ended)
	}
	st := ended.Stats
	if st.TotalAlerts != 3 || st.MaxConsecutiveAlerts != 3 || len(st.AlertsByType) != 1 || st.AlertsByType[model.AlertNoFace] != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestEndRecomputeOverridesIncrementalCounters(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	f.register(t, "S")

	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	// Arrives out of order: the incremental run is a lower bound.
	for _, off := range []time.Duration{20, 0, 10} {
		f.submit(t, "S", model.AlertMultipleFaces, base.Add(off*time.Second))
	}

	before, _ := f.proctoring.Get(context.Background(), "S")
	ended, err := f.proctoring.End(context.Background(), "S", nil, 0)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Stats.MaxConsecutiveAlerts != 3 {
		t.Fatalf("authoritative run = %d, want 3 (incremental was %d)",
			ended.Stats.MaxConsecutiveAlerts, before.Stats.MaxConsecutiveAlerts)
	}
}

func TestEndErrorsAndRetry(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	f.register(t, "S")

	if _, err := f.proctoring.End(context.Background(), "missing", nil, 0); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown session: %v", err)
	}
	if _, err := f.proctoring.End(context.Background(), "S", nil, 99); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("other student's session: %v", err)
	}

	end := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	first, err := f.proctoring.End(context.Background(), "S", &end, 0)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	later := end.Add(time.Hour)
	again, err := f.proctoring.End(context.Background(), "S", &later, 0)
	if err != nil {
		t.Fatalf("second End: %v", err)
	}
	if !again.EndTime.Equal(*first.EndTime) || again.Status != model.ProctoringCompleted {
		t.Fatalf("retry changed the session: %+v", again)
	}
}

func TestTerminate(t *testing.T) {
	tests := []struct {
		name      string
		reason    string
		wantNotes string
	}{
		{"with reason", "Caught with a phone", "Caught with a phone"},
		{"default reason", "", DefaultTerminationNote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, AlertOptions{})
			f.register(t, "S")
			f.submit(t, "S", model.AlertForbiddenObject, time.Now())

			s, err := f.proctoring.Terminate(context.Background(), "S", tt.reason, 1)
			if err != nil {
				t.Fatalf("Terminate: %v", err)
			}
			if s.Status != model.ProctoringTerminated || s.Notes != tt.wantNotes || s.EndTime == nil {
				t.Fatalf("unexpected session %+v", s)
			}
			if s.Stats.TotalAlerts != 1 {
				t.Fatalf("stats not recomputed: %+v", s.Stats)
			}
		})
	}
}

func TestListActiveAndDetail(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	older := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	for _, r := range []struct {
		id      string
		student int
		start   time.Time
	}{{"old", 7, older}, {"new", 8, newer}} {
		start := r.start
		if _, _, err := f.proctoring.Register(context.Background(), model.RegisterSessionRequest{
			SessionID: r.id, ExamID: f.examID, StudentID: r.student, StartTime: &start,
		}, ""); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	sessions, err := f.proctoring.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "new" || sessions[1].SessionID != "old" {
		t.Fatalf("expected newest first, got %+v", sessions)
	}

	f.submit(t, "old", model.AlertFocusLost, older.Add(30*time.Second))
	f.submit(t, "old", model.AlertNoFace, older.Add(10*time.Second))

	detail, err := f.proctoring.Detail(context.Background(), "old")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(detail.Alerts) != 2 || detail.Alerts[0].Type != model.AlertNoFace {
		t.Fatalf("expected alerts oldest first, got %+v", detail.Alerts)
	}

	if _, err := f.proctoring.Detail(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session: %v", err)
	}
}

func TestReviewSession(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	f.register(t, "S")

	s, err := f.proctoring.Review(context.Background(), "S", 3, "Looks fine")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if !s.Reviewed || s.ReviewedBy == nil || *s.ReviewedBy != 3 || s.ReviewDate == nil || s.Notes != "Looks fine" {
		t.Fatalf("unexpected review stamp %+v", s)
	}

	if _, err := f.proctoring.Review(context.Background(), "missing", 3, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session: %v", err)
	}
}


func TestExamSnapshot(t *testing.T) {
	f := newFixture(t, AlertOptions{})
	f.register(t, "mine")

	other := uuid.New()
	f.exams.exams[other] = &model.Exam{ID: other}
	if _, _, err := f.proctoring.Register(context.Background(), model.RegisterSessionRequest{
		SessionID: "theirs", ExamID: other, StudentID: 8,
	}, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sessions, err := f.proctoring.ExamSnapshot(context.Background(), f.examID)
	if err != nil {
		t.Fatalf("ExamSnapshot: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "mine" {
		t.Fatalf("expected only this exam's session, got %+v", sessions)
	}

	if _, err := f.proctoring.ExamSnapshot(context.Background(), uuid.New()); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("unknown exam: %v", err)
	}
}
