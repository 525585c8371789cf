package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// PrivateCache marks responses as cacheable by the requesting browser only.
// Evidence images never change once written, but they are not public.
func PrivateCache(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d, immutable", maxAgeSeconds))
		c.Next()
	}
}

// NoStore disables caching for live data such as the active-session list.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
