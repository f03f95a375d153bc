package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// Middleware authenticates requests with an "Authorization: Bearer <jwt>"
// header. Browsers cannot set headers on websocket upgrades, so the
// "token" query parameter is accepted too.
func Middleware(tokenizer Tokenizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if h := c.GetHeader("Authorization"); h != "" {
			if !strings.HasPrefix(h, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "malformed authorization header"})
				return
			}
			tokenStr = strings.TrimPrefix(h, "Bearer ")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing token"})
			return
		}

		claims, err := tokenizer.Validate(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid or expired token"})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// MustUserID returns the id set by Middleware. It panics on unauthenticated routes.
func MustUserID(c *gin.Context) string {
	return c.MustGet(userIDKey).(string)
}
