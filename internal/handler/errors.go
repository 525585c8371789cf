package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/evidence"
	"github.com/stemsi/exstem-proctoring/internal/response"
	"github.com/stemsi/exstem-proctoring/internal/service"
)

var errorCodes = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrStudentNotFound, http.StatusNotFound, response.ErrStudentNotFound},
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrAlertNotFound, http.StatusNotFound, response.ErrAlertNotFound},
	{service.ErrAdminNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrNotAssigned, http.StatusNotFound, response.ErrNotFound},
	{service.ErrInvalidReviewStatus, http.StatusBadRequest, response.ErrInvalidReviewStatus},
	{service.ErrInvalidSeverity, http.StatusBadRequest, response.ErrInvalidSeverity},
	{service.ErrSessionIDConflict, http.StatusConflict, response.ErrSessionIDTaken},
	{evidence.ErrTooLarge, http.StatusRequestEntityTooLarge, response.ErrEvidenceTooLarge},
	{evidence.ErrInvalidPayload, http.StatusBadRequest, response.ErrInvalidEvidence},
	{evidence.ErrInvalidSessionID, http.StatusBadRequest, response.ErrInvalidEvidence},
}

// failWith writes the response for a service error. Anything unknown is
// logged and reported as a 500.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			response.Fail(c, e.status, e.code)
			return
		}
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
