package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/response"
	"github.com/stemsi/exstem-proctoring/internal/service"
	"github.com/stemsi/exstem-proctoring/internal/validator"
)

// SupervisorHandler manages which admins watch which exams.
type SupervisorHandler struct {
	supervisorService *service.SupervisorService
	log               zerolog.Logger
}

// NewSupervisorHandler creates a new SupervisorHandler.
func NewSupervisorHandler(supervisorService *service.SupervisorService, log zerolog.Logger) *SupervisorHandler {
	return &SupervisorHandler{
		supervisorService: supervisorService,
		log:               log.With().Str("component", "supervisor_handler").Logger(),
	}
}

// ListSupervisors godoc
// GET /api/v1/admin/exams/:exam_id/supervisors
func (h *SupervisorHandler) ListSupervisors(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	supervisors, err := h.supervisorService.List(c.Request.Context(), examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"supervisors": supervisors})
}

// AssignSupervisor godoc
// POST /api/v1/admin/exams/:exam_id/supervisors
func (h *SupervisorHandler) AssignSupervisor(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AssignSupervisorRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	supervisors, err := h.supervisorService.Assign(c.Request.Context(), examID, req.AdminID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"supervisors": supervisors})
}

// RemoveSupervisor godoc
// DELETE /api/v1/admin/exams/:exam_id/supervisors/:admin_id
func (h *SupervisorHandler) RemoveSupervisor(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	adminID, err := strconv.Atoi(c.Param("admin_id"))
	if err != nil || adminID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.supervisorService.Remove(c.Request.Context(), examID, adminID); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Supervisor removed"})
}
