package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctoring/internal/evidence"
	"github.com/stemsi/exstem-proctoring/internal/response"
)

// EvidenceHandler serves stored alert images to supervisors.
type EvidenceHandler struct {
	store *evidence.FileStore
}

// NewEvidenceHandler creates a new EvidenceHandler.
func NewEvidenceHandler(store *evidence.FileStore) *EvidenceHandler {
	return &EvidenceHandler{store: store}
}

// GetEvidence godoc
// GET /api/v1/admin/proctoring/evidence/*path
// path is the evidencePath stored on the alert.
func (h *EvidenceHandler) GetEvidence(c *gin.Context) {
	file, err := h.store.Resolve(c.Param("path"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	c.File(file)
}
