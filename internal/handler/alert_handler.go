package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/middleware"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/response"
	"github.com/stemsi/exstem-proctoring/internal/service"
	"github.com/stemsi/exstem-proctoring/internal/validator"
)

// AlertHandler ingests detector alerts and records supervisor verdicts.
type AlertHandler struct {
	alertService *service.AlertService
	log          zerolog.Logger
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(alertService *service.AlertService, log zerolog.Logger) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
		log:          log.With().Str("component", "alert_handler").Logger(),
	}
}

// SubmitAlert godoc
// POST /api/v1/proctoring/alert
func (h *AlertHandler) SubmitAlert(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitAlertRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	alert, err := h.alertService.Submit(c.Request.Context(), req, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"message": "Alert recorded", "alert": alert})
}

// UpdateAlertStatus godoc
// PUT /api/v1/admin/proctoring/alert/:alertId/status
func (h *AlertHandler) UpdateAlertStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	alertID, err := uuid.Parse(c.Param("alertId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateAlertStatusRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	alert, err := h.alertService.UpdateStatus(c.Request.Context(), alertID, req, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Alert status updated", "alert": alert})
}
