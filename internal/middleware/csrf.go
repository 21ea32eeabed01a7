package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/security"
)

const (
	csrfHeader = "X-CSRF-Token"
	csrfField  = "csrf_token"

	maxFormMemory = 8 << 20
)

// CSRF spends the submitted token on every state-changing request before
// the handler runs.
func CSRF(store *security.CSRFStore, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		token := c.GetHeader(csrfHeader)
		if token == "" {
			var err error
			token, err = formToken(c)
			if IsBodyTooLarge(err) {
				abortBodyTooLarge(c)
				return
			}
		}

		sess := CurrentSession(c)
		sessionID := ""
		if sess != nil {
			sessionID = sess.ID
		}

		ok, err := store.Validate(c.Request.Context(), sessionID, token)
		if err != nil {
			log.Error().Err(err).Msg("csrf validation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return
		}
		if !ok {
			log.Warn().
				Str("ip", c.ClientIP()).
				Str("path", c.FullPath()).
				Bool("token_present", token != "").
				Msg("csrf token rejected")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": common.ErrCSRF.Error()})
			return
		}
		c.Next()
	}
}

// formToken reads the token field from a urlencoded or multipart body.
// Parse failures other than an oversized body leave the token empty.
func formToken(c *gin.Context) (string, error) {
	err := c.Request.ParseMultipartForm(maxFormMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "", err
	}
	return c.Request.PostFormValue(csrfField), nil
}
