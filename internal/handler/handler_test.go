package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/evidence"
	"github.com/stemsi/exstem-proctoring/internal/middleware"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/response"
	"github.com/stemsi/exstem-proctoring/internal/service"
	"github.com/stemsi/exstem-proctoring/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// stubStore answers the reads these tests need. Any other call panics on the
// nil embedded interface, which flags an unexpected store access.
type stubStore struct {
	service.SessionStore
	service.AlertStore
	sessions map[string]*model.ProctoringSession
}

func (s *stubStore) GetBySessionID(_ context.Context, id string) (*model.ProctoringSession, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *stubStore) ListActive(context.Context) ([]model.ProctoringSession, error) {
	var out []model.ProctoringSession
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out, nil
}

func (s *stubStore) ListBySession(context.Context, string) ([]model.Alert, error) {
	return nil, nil
}

func (s *stubStore) UpdateReview(context.Context, uuid.UUID, model.ReviewStatus, string, int, time.Time) (*model.Alert, error) {
	return nil, pgx.ErrNoRows
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func asClaims(claims *service.Claims) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, claims)
		c.Next()
	}
}

func studentClaims(id int) *service.Claims {
	return &service.Claims{TokenType: service.TokenTypeStudent, UserID: id}
}

func do(t *testing.T, r http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v (%s)", err, w.Body.String())
		}
	}
	return w.Code, env
}

func newTestRouter(store *stubStore) *gin.Engine {
	log := zerolog.Nop()
	proctoring := service.NewProctoringService(store, store, nil, nil, nil, log)
	alerts := service.NewAlertService(store, store, nil, nil, nil, service.AlertOptions{}, log)
	ph := NewProctoringHandler(proctoring, log)
	ah := NewAlertHandler(alerts, log)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	student := r.Group("/api/v1/proctoring", asClaims(studentClaims(7)))
	student.POST("/session", ph.RegisterSession)
	student.POST("/session/end", ph.EndSession)
	student.POST("/alert", ah.SubmitAlert)

	admin := r.Group("/api/v1/admin/proctoring", asClaims(&service.Claims{TokenType: service.TokenTypeAdmin, UserID: 1}))
	admin.GET("/sessions/active", ph.ListActiveSessions)
	admin.GET("/session/:sessionId", ph.GetSessionDetail)
	admin.PUT("/alert/:alertId/status", ah.UpdateAlertStatus)
	return r
}

func TestFailWithMapsServiceErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
		{fmt.Errorf("wrapped: %w", service.ErrExamNotFound), http.StatusNotFound, response.ErrExamNotFound},
		{service.ErrAlertNotFound, http.StatusNotFound, response.ErrAlertNotFound},
		{service.ErrInvalidReviewStatus, http.StatusBadRequest, response.ErrInvalidReviewStatus},
		{service.ErrSessionIDConflict, http.StatusConflict, response.ErrSessionIDTaken},
		{fmt.Errorf("save evidence: %w", evidence.ErrInvalidPayload), http.StatusBadRequest, response.ErrInvalidEvidence},
		{fmt.Errorf("save evidence: %w", evidence.ErrTooLarge), http.StatusRequestEntityTooLarge, response.ErrEvidenceTooLarge},
		{errors.New("connection refused"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			r := gin.New()
			r.GET("/", func(c *gin.Context) { failWith(c, zerolog.Nop(), tt.err) })
			status, env := do(t, r, http.MethodGet, "/", nil)
			if status != tt.status || env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("got %d %+v, want %d %s", status, env.Error, tt.status, tt.code)
			}
		})
	}
}

func TestRegisterSessionRequest(t *testing.T) {
	r := newTestRouter(&stubStore{})

	status, env := do(t, r, http.MethodPost, "/api/v1/proctoring/session", gin.H{"examId": uuid.New()})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != response.ErrValidation {
		t.Fatalf("missing fields: %d %+v", status, env.Error)
	}
	if _, ok := env.Error.Fields["sessionId"]; !ok {
		t.Fatalf("expected a sessionId field error, got %+v", env.Error.Fields)
	}

	status, env = do(t, r, http.MethodPost, "/api/v1/proctoring/session", gin.H{
		"sessionId": "S", "examId": uuid.New(), "studentId": 8,
	})
	if status != http.StatusForbidden || env.Error.Code != response.ErrForbidden {
		t.Fatalf("registering for another student: %d %+v", status, env.Error)
	}
}

func TestEndSessionOwnedByAnotherStudent(t *testing.T) {
	store := &stubStore{sessions: map[string]*model.ProctoringSession{
		"S": {SessionID: "S", StudentID: 8, Status: model.ProctoringActive},
	}}
	r := newTestRouter(store)

	status, env := do(t, r, http.MethodPost, "/api/v1/proctoring/session/end", gin.H{"sessionId": "S"})
	if status != http.StatusNotFound || env.Error.Code != response.ErrSessionNotFound {
		t.Fatalf("got %d %+v", status, env.Error)
	}
}

func TestSubmitAlertRejections(t *testing.T) {
	r := newTestRouter(&stubStore{})

	status, env := do(t, r, http.MethodPost, "/api/v1/proctoring/alert", gin.H{
		"sessionId": "S", "type": model.AlertNoFace, "severity": "urgent",
	})
	if status != http.StatusBadRequest || env.Error.Code != response.ErrInvalidSeverity {
		t.Fatalf("invalid severity: %d %+v", status, env.Error)
	}

	status, env = do(t, r, http.MethodPost, "/api/v1/proctoring/alert", gin.H{
		"sessionId": "missing", "type": model.AlertNoFace,
	})
	if status != http.StatusNotFound || env.Error.Code != response.ErrSessionNotFound {
		t.Fatalf("unknown session: %d %+v", status, env.Error)
	}
}

func TestUpdateAlertStatusRejections(t *testing.T) {
	r := newTestRouter(&stubStore{})
	path := "/api/v1/admin/proctoring/alert/" + uuid.NewString() + "/status"

	tests := []struct {
		name   string
		path   string
		body   gin.H
		status int
		code   response.ErrCode
	}{
		{"bad id", "/api/v1/admin/proctoring/alert/42/status", gin.H{"status": "reviewed"}, http.StatusBadRequest, response.ErrInvalidID},
		{"pending", path, gin.H{"status": "pending"}, http.StatusBadRequest, response.ErrInvalidReviewStatus},
		{"unknown status", path, gin.H{"status": "approved"}, http.StatusBadRequest, response.ErrInvalidReviewStatus},
		{"unknown alert", path, gin.H{"status": "dismissed"}, http.StatusNotFound, response.ErrAlertNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, r, http.MethodPut, tt.path, tt.body)
			if status != tt.status || env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("got %d %+v, want %d %s", status, env.Error, tt.status, tt.code)
			}
		})
	}
}

func TestListActiveAndDetail(t *testing.T) {
	store := &stubStore{sessions: map[string]*model.ProctoringSession{
		"S": {SessionID: "S", StudentID: 7, Status: model.ProctoringActive},
	}}
	r := newTestRouter(store)

	status, env := do(t, r, http.MethodGet, "/api/v1/admin/proctoring/sessions/active", nil)
	if status != http.StatusOK {
		t.Fatalf("active: %d %+v", status, env.Error)
	}
	var list struct {
		Count    int                       `json:"count"`
		Sessions []model.ProctoringSession `json:"sessions"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 1 || len(list.Sessions) != 1 || list.Sessions[0].SessionID != "S" {
		t.Fatalf("unexpected list %+v", list)
	}

	status, env = do(t, r, http.MethodGet, "/api/v1/admin/proctoring/session/S", nil)
	if status != http.StatusOK {
		t.Fatalf("detail: %d %+v", status, env.Error)
	}
	var detail struct {
		Session *model.ProctoringSession `json:"session"`
		Alerts  []model.Alert            `json:"alerts"`
	}
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Session == nil || detail.Alerts == nil {
		t.Fatalf("detail must carry the session and a non-null alert list: %s", env.Data)
	}

	status, env = do(t, r, http.MethodGet, "/api/v1/admin/proctoring/session/missing", nil)
	if status != http.StatusNotFound || env.Error.Code != response.ErrSessionNotFound {
		t.Fatalf("missing detail: %d %+v", status, env.Error)
	}
}

func TestGetEvidence(t *testing.T) {
	store := evidence.NewFileStore(t.TempDir(), 1<<20)
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}
	rel, err := store.Save(context.Background(), "S", base64.StdEncoding.EncodeToString(jpeg))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := gin.New()
	r.GET("/evidence/*path", NewEvidenceHandler(store).GetEvidence)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"stored file", "/evidence" + rel, http.StatusOK},
		{"unknown file", "/evidence/S/nope.jpg", http.StatusNotFound},
		{"traversal", "/evidence/../../etc/passwd", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status == http.StatusOK && !bytes.Equal(w.Body.Bytes(), jpeg) {
				t.Fatal("served bytes differ from the stored evidence")
			}
		})
	}
}
