package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const errBodyTooLarge = "request body too large"

// BodyLimit caps the request body at max bytes. A declared Content-Length
// above the cap is refused before anything reads the body; an undeclared
// length fails with *http.MaxBytesError once the reader passes the cap.
func BodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			abortBodyTooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		c.Next()
	}
}

// IsBodyTooLarge reports whether err came from a body cut off by BodyLimit.
func IsBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func abortBodyTooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": errBodyTooLarge})
}
