package middleware

import (
	"github.com/gin-gonic/gin"
)

// DevUserID is used for requests without an authenticated user in development
const DevUserID = "00000000-0000-0000-0000-000000000001"

// DevelopmentAuthMiddleware is a simple auth middleware for development
func DevelopmentAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			userID = c.GetHeader("X-User-ID")
		}
		if userID == "" {
			userID = DevUserID
		}

		// RBAC middleware checks staff_id first
		c.Set("userId", userID)
		c.Set("user_id", userID)
		c.Set("staff_id", userID)
		c.Next()
	}
}
