package mw

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader carries the shared admin token.
const AdminTokenHeader = "X-Admin-Token"

// IsAdminKey is the gin context key set by Admin.
const IsAdminKey = "isAdmin"

// Admin marks the request as admin when it carries the configured token. An
// empty token disables admin access entirely.
func Admin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := c.GetHeader(AdminTokenHeader)
		isAdmin := token != "" && supplied != "" &&
			subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) == 1
		c.Set(IsAdminKey, isAdmin)
		c.Next()
	}
}

// IsAdmin reports whether Admin accepted the request's token.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(IsAdminKey)
}

// RequireAdmin rejects requests Admin did not mark.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not authorized: admin token required", "kind": "authorization"})
			return
		}
		c.Next()
	}
}
