package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qdmz/webchaxun/internal/middleware"
	"github.com/qdmz/webchaxun/internal/models"
	"github.com/qdmz/webchaxun/internal/security"
	"github.com/qdmz/webchaxun/internal/service"
)

type loginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

type meResponse struct {
	ID          string                `json:"id"`
	Username    string                `json:"username"`
	Role        models.UserRole       `json:"role"`
	LoginTime   string                `json:"loginTime,omitempty"`
	Permissions []security.Permission `json:"permissions"`
}

func (h HandlerSet) me(sess *models.Session) meResponse {
	resp := meResponse{
		ID:          sess.UserID,
		Username:    security.SanitizeOutput(sess.Username),
		Role:        sess.Role,
		Permissions: h.permissions.Permissions(sess),
	}
	if !sess.LoginTime.IsZero() {
		resp.LoginTime = sess.LoginTime.UTC().Format("2006-01-02T15:04:05Z")
	}
	return resp
}

// CSRFToken issues one token per call. A page with several forms asks once
// per form.
func (h HandlerSet) CSRFToken(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	token, err := h.csrf.Generate(c.Request.Context(), sess.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"csrfToken": token})
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	sess := middleware.CurrentSession(c)
	_, err := h.auth.Login(c.Request.Context(), sess, service.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": h.me(sess)})
}

func (h HandlerSet) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.CurrentSession(c), c.ClientIP()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) LogoutRedirect(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.CurrentSession(c), c.ClientIP()); err != nil {
		h.log.Error().Err(err).Msg("logout failed")
	}
	c.Redirect(http.StatusFound, "/login")
}

func (h HandlerSet) Me(c *gin.Context) {
	c.JSON(http.StatusOK, h.me(middleware.CurrentSession(c)))
}

type changePasswordRequest struct {
	CurrentPassword string `form:"currentPassword" json:"currentPassword" binding:"required"`
	NewPassword     string `form:"newPassword" json:"newPassword" binding:"required"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current and new password are required"})
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), middleware.CurrentSession(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
