package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qdmz/webchaxun/internal/middleware"
	"github.com/qdmz/webchaxun/internal/models"
	"github.com/qdmz/webchaxun/internal/service"
)

type createUserRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
	Role     string `form:"role" json:"role"`
}

func (h HandlerSet) ListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h HandlerSet) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, email and password are required"})
		return
	}

	user, err := h.users.Create(c.Request.Context(), middleware.CurrentSession(c), service.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.UserRole(req.Role),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

type statusRequest struct {
	Status string `form:"status" json:"status" binding:"required"`
}

func (h HandlerSet) SetUserStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	err := h.users.SetStatus(c.Request.Context(), middleware.CurrentSession(c), c.Param("id"), models.UserStatus(req.Status))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type roleRequest struct {
	Role string `form:"role" json:"role" binding:"required"`
}

func (h HandlerSet) SetUserRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	err := h.users.SetRole(c.Request.Context(), middleware.CurrentSession(c), c.Param("id"), models.UserRole(req.Role))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), middleware.CurrentSession(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
