package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qdmz/webchaxun/internal/middleware"
	"github.com/qdmz/webchaxun/internal/service"
)

func (h HandlerSet) ListFiles(c *gin.Context) {
	files, err := h.files.List(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": files})
}

func (h HandlerSet) UploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if middleware.IsBodyTooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := header.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer f.Close()

	file, err := h.files.Upload(c.Request.Context(), middleware.CurrentSession(c), service.UploadInput{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     f,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

type renameRequest struct {
	Name string `form:"name" json:"name" binding:"required"`
}

func (h HandlerSet) RenameFile(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	file, err := h.files.Rename(c.Request.Context(), middleware.CurrentSession(c), c.Param("id"), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

func (h HandlerSet) DeleteFile(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), middleware.CurrentSession(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) DownloadFile(c *gin.Context) {
	url, err := h.files.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}
