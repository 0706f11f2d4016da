package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loangraph/reconciler/internal/auth"
)

// RequireAuth accepts the access cookie or, when allowBearer is set, a bearer
// header. The raw token rides the request context so outbound calls to the
// lender API act as the same user.
func RequireAuth(jwt *auth.JWTManager, allowBearer bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.AccessToken(c.Request, allowBearer)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := jwt.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_role", claims.Role)
		c.Request = c.Request.WithContext(auth.ContextWithToken(c.Request.Context(), token))
		c.Next()
	}
}
