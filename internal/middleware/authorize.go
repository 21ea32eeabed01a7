package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qdmz/webchaxun/internal/security"
)

func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentSession(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "login_required",
				"redirect": "/login",
			})
			return
		}
		c.Next()
	}
}

// RequirePermission implies RequireLogin.
func RequirePermission(resolver *security.PermissionResolver, perm security.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := CurrentSession(c)
		if !sess.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "login_required",
				"redirect": "/login",
			})
			return
		}
		if !resolver.HasPermission(sess, perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission_denied"})
			return
		}
		c.Next()
	}
}
