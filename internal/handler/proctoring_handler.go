package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/middleware"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/response"
	"github.com/stemsi/exstem-proctoring/internal/service"
	"github.com/stemsi/exstem-proctoring/internal/validator"
)

// ProctoringHandler serves the session lifecycle to students and supervisors.
type ProctoringHandler struct {
	proctoringService *service.ProctoringService
	log               zerolog.Logger
}

// NewProctoringHandler creates a new ProctoringHandler.
func NewProctoringHandler(proctoringService *service.ProctoringService, log zerolog.Logger) *ProctoringHandler {
	return &ProctoringHandler{
		proctoringService: proctoringService,
		log:               log.With().Str("component", "proctoring_handler").Logger(),
	}
}

// RegisterSession godoc
// POST /api/v1/proctoring/session
// Starts monitoring. Re-registering while a session is active updates it.
func (h *ProctoringHandler) RegisterSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.RegisterSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.StudentID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	session, created, err := h.proctoringService.Register(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	status, message := http.StatusOK, "Proctoring session updated"
	if created {
		status, message = http.StatusCreated, "Proctoring session registered"
	}
	response.Success(c, status, gin.H{"message": message, "session": session})
}

// EndSession godoc
// POST /api/v1/proctoring/session/end
// Closes the caller's session and settles its statistics.
func (h *ProctoringHandler) EndSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.EndSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.proctoringService.End(c.Request.Context(), req.SessionID, req.EndTime, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Proctoring session ended", "session": session})
}

// ListActiveSessions godoc
// GET /api/v1/admin/proctoring/sessions/active
func (h *ProctoringHandler) ListActiveSessions(c *gin.Context) {
	sessions, err := h.proctoringService.ListActive(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": len(sessions), "sessions": sessions})
}

// GetSessionDetail godoc
// GET /api/v1/admin/proctoring/session/:sessionId
func (h *ProctoringHandler) GetSessionDetail(c *gin.Context) {
	detail, err := h.proctoringService.Detail(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// TerminateSession godoc
// POST /api/v1/admin/proctoring/session/:sessionId/terminate
func (h *ProctoringHandler) TerminateSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.TerminateSessionRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	session, err := h.proctoringService.Terminate(c.Request.Context(), c.Param("sessionId"), req.Reason, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Proctoring session terminated", "session": session})
}

// ReviewSession godoc
// PUT /api/v1/admin/proctoring/session/:sessionId/review
func (h *ProctoringHandler) ReviewSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ReviewSessionRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	session, err := h.proctoringService.Review(c.Request.Context(), c.Param("sessionId"), claims.UserID, req.Notes)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Proctoring session reviewed", "session": session})
}
