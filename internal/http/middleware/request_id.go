package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/loangraph/reconciler/internal/lenderapi"
)

// RequestID reuses the caller's X-Request-ID or mints one, echoes it back and
// hands it to the lender API client.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(lenderapi.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(lenderapi.RequestIDHeader, id)
		c.Request = c.Request.WithContext(lenderapi.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
