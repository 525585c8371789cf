package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/notify"
	"github.com/stemsi/exstem-proctoring/internal/repository"
	"github.com/stemsi/exstem-proctoring/internal/stats"
)

// memStore mimics the Postgres repositories: the one-active upsert, the
// unique session id and the atomic per-alert counter update.
type memStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*model.ProctoringSession
	trackers  map[uuid.UUID]*stats.Tracker
	alerts    []model.Alert
	recordErr error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uuid.UUID]*model.ProctoringSession),
		trackers: make(map[uuid.UUID]*stats.Tracker),
	}
}

func copySession(s *model.ProctoringSession) *model.ProctoringSession {
	out := *s
	out.Stats.AlertsByType = make(map[model.AlertType]int, len(s.Stats.AlertsByType))
	for k, v := range s.Stats.AlertsByType {
		out.Stats.AlertsByType[k] = v
	}
	return &out
}

func (m *memStore) bySessionID(id string) *model.ProctoringSession {
	for _, s := range m.sessions {
		if s.SessionID == id {
			return s
		}
	}
	return nil
}

func (m *memStore) Upsert(_ context.Context, in *model.ProctoringSession) (*model.ProctoringSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active *model.ProctoringSession
	for _, s := range m.sessions {
		if s.ExamID == in.ExamID && s.StudentID == in.StudentID && s.Status == model.ProctoringActive {
			active = s
		}
	}
	if owner := m.bySessionID(in.SessionID); owner != nil && owner != active {
		return nil, false, repository.ErrDuplicateSessionID
	}

	now := time.Now()
	if active != nil {
		active.SessionID = in.SessionID
		active.StartTime = in.StartTime
		active.Environment = in.Environment
		active.UpdatedAt = now
		return copySession(active), false, nil
	}

	s := &model.ProctoringSession{
		ID:          uuid.New(),
		SessionID:   in.SessionID,
		ExamID:      in.ExamID,
		StudentID:   in.StudentID,
		StartTime:   in.StartTime,
		Status:      model.ProctoringActive,
		Environment: in.Environment,
		Stats:       model.SessionStats{AlertsByType: map[model.AlertType]int{}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.sessions[s.ID] = s
	m.trackers[s.ID] = &stats.Tracker{}
	return copySession(s), true, nil
}

func (m *memStore) GetBySessionID(_ context.Context, id string) (*model.ProctoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.bySessionID(id); s != nil {
		return copySession(s), nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) ListActive(context.Context) ([]model.ProctoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ProctoringSession
	for _, s := range m.sessions {
		if s.Status == model.ProctoringActive {
			out = append(out, *copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m *memStore) Close(_ context.Context, id string, status model.ProctoringStatus, end time.Time, notes *string, st model.SessionStats) (*model.ProctoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.bySessionID(id)
	if s == nil {
		return nil, pgx.ErrNoRows
	}
	s.Status = status
	s.EndTime = &end
	if notes != nil {
		s.Notes = *notes
	}
	s.Stats = st
	return copySession(s), nil
}

func (m *memStore) MarkReviewed(_ context.Context, id string, adminID int, notes string, at time.Time) (*model.ProctoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.bySessionID(id)
	if s == nil {
		return nil, pgx.ErrNoRows
	}
	s.Reviewed = true
	s.ReviewedBy = &adminID
	s.ReviewDate = &at
	if notes != "" {
		s.Notes = notes
	}
	return copySession(s), nil
}

func (m *memStore) MarkFlagged(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.bySessionID(id); s != nil && s.Status != model.ProctoringActive {
		s.Status = model.ProctoringFlagged
		s.Reviewed = false
	}
	return nil
}

func (m *memStore) Record(_ context.Context, a *model.Alert) (*model.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	s := m.bySessionID(a.SessionID)
	if s == nil {
		return nil, pgx.ErrNoRows
	}

	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.ReviewStatus = model.ReviewPending
	m.alerts = append(m.alerts, *a)

	tr := m.trackers[s.ID]
	tr.Observe(*a)
	s.Stats = tr.Stats()
	st := s.Stats
	return &st, nil
}

func (m *memStore) ListBySession(_ context.Context, id string) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Alert
	for _, a := range m.alerts {
		if a.SessionID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			out := a
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) UpdateReview(_ context.Context, id uuid.UUID, status model.ReviewStatus, notes string, reviewer int, at time.Time) (*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			a := &m.alerts[i]
			a.ReviewStatus = status
			a.ReviewNotes = notes
			a.ReviewedBy = &reviewer
			a.ReviewDate = &at
			out := *a
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) alertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func (m *memStore) activeFor(examID uuid.UUID, studentID int) []model.ProctoringSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ProctoringSession
	for _, s := range m.sessions {
		if s.ExamID == examID && s.StudentID == studentID && s.Status == model.ProctoringActive {
			out = append(out, *copySession(s))
		}
	}
	return out
}

type memExams struct {
	exams       map[uuid.UUID]*model.Exam
	supervisors map[uuid.UUID][]int
	err         error
}

func newMemExams(ids ...uuid.UUID) *memExams {
	m := &memExams{exams: map[uuid.UUID]*model.Exam{}, supervisors: map[uuid.UUID][]int{}}
	for _, id := range ids {
		m.exams[id] = &model.Exam{ID: id, Title: "Ujian " + id.String()[:8]}
	}
	return m
}

func (m *memExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	if m.err != nil {
		return nil, m.err
	}
	if e, ok := m.exams[id]; ok {
		return e, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memExams) ListSupervisors(_ context.Context, examID uuid.UUID) ([]model.ExamSupervisor, error) {
	out := []model.ExamSupervisor{}
	for _, id := range m.supervisors[examID] {
		out = append(out, model.ExamSupervisor{ExamID: examID, AdminID: id})
	}
	return out, nil
}

func (m *memExams) AssignSupervisor(_ context.Context, examID uuid.UUID, adminID int) error {
	for _, id := range m.supervisors[examID] {
		if id == adminID {
			return nil
		}
	}
	m.supervisors[examID] = append(m.supervisors[examID], adminID)
	return nil
}

func (m *memExams) RemoveSupervisor(_ context.Context, examID uuid.UUID, adminID int) (bool, error) {
	ids := m.supervisors[examID]
	for i, id := range ids {
		if id == adminID {
			m.supervisors[examID] = append(ids[:i], ids[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memStudents map[int]bool

func (m memStudents) GetByID(_ context.Context, id int) (*model.Student, error) {
	if m[id] {
		return &model.Student{ID: id, Name: "Siswa"}, nil
	}
	return nil, pgx.ErrNoRows
}

type memAdmins map[int]bool

func (m memAdmins) GetByID(_ context.Context, id int) (*model.Admin, error) {
	if m[id] {
		return &model.Admin{ID: id}, nil
	}
	return nil, pgx.ErrNoRows
}

type fakeQueue struct {
	mu  sync.Mutex
	got []notify.Escalation
	err error
}

func (q *fakeQueue) Enqueue(_ context.Context, esc notify.Escalation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.got = append(q.got, esc)
	return nil
}

func (q *fakeQueue) jobs() []notify.Escalation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]notify.Escalation(nil), q.got...)
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []notify.Escalation
}

func (n *fakeNotifier) Notify(_ context.Context, esc notify.Escalation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, esc)
}

func (n *fakeNotifier) calls() []notify.Escalation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Escalation(nil), n.got...)
}

type failingEvidence struct{}

func (failingEvidence) Save(context.Context, string, string) (string, error) {
	return "", errors.New("disk full")
}
