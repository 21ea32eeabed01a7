package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qdmz/webchaxun/internal/models"
)

const (
	sessionKey   = "current_session"
	requestIDKey = "request_id"
)

// CurrentSession returns the session attached by Session. It is never nil
// behind that middleware.
func CurrentSession(c *gin.Context) *models.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*models.Session)
	return sess
}
