package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole runs after RequireAuth and admits only the listed roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	roles := make(map[string]bool, len(allowed))
	for _, role := range allowed {
		roles[role] = true
	}
	return func(c *gin.Context) {
		if !roles[c.GetString("user_role")] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequestBodyLimit refuses declared oversize bodies outright and caps the
// rest while they are read.
func RequestBodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request_too_large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
