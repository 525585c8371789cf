package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctoring/internal/response"
)

// MaxBody caps the request body. Requests announcing a larger body are
// rejected up front; the rest fail while binding once the cap is hit.
func MaxBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			response.AbortFail(c, http.StatusRequestEntityTooLarge, response.ErrEvidenceTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
