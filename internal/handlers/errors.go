package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qdmz/webchaxun/internal/common"
)

// respondError maps the error taxonomy onto HTTP. Unknown errors are
// logged in full and answered with a generic 500.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	var (
		verr *common.ValidationError
		rl   *common.RateLimitError
	)
	switch {
	case errors.As(err, &verr):
		body := gin.H{"error": verr.Message}
		if verr.Field != "" {
			body["field"] = verr.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, common.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": common.ErrInvalidCredentials.Error()})
	case errors.As(err, &rl):
		seconds := int(math.Ceil(rl.Remaining.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             common.ErrRateLimited.Error(),
			"retryAfterSeconds": seconds,
		})
	case errors.Is(err, common.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission_denied"})
	case errors.Is(err, common.ErrCSRF):
		c.JSON(http.StatusForbidden, gin.H{"error": common.ErrCSRF.Error()})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, common.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "already_exists"})
	default:
		_ = c.Error(err)
		h.log.Error().
			Err(err).
			Str("path", c.FullPath()).
			Str("request_id", c.GetString("request_id")).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}
}
