package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/config"
	"github.com/qdmz/webchaxun/internal/middleware"
	"github.com/qdmz/webchaxun/internal/security"
	"github.com/qdmz/webchaxun/internal/service"
	"github.com/qdmz/webchaxun/internal/session"
)

// multipartOverhead is the room an upload body gets above the file size
// limit for boundaries, part headers and the csrf_token field.
const multipartOverhead = 1 << 20

// HealthCheck checks one backing service.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Config       *config.AppConfig
	Auth         *service.AuthService
	Users        *service.UserService
	Files        *service.FileService
	Sessions     *session.Manager
	CookieCodec  *securecookie.SecureCookie
	CSRF         *security.CSRFStore
	Permissions  *security.PermissionResolver
	HealthChecks map[string]HealthCheck
	Log          zerolog.Logger
}

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	auth         *service.AuthService
	users        *service.UserService
	files        *service.FileService
	sessions     *session.Manager
	codec        *securecookie.SecureCookie
	csrf         *security.CSRFStore
	permissions  *security.PermissionResolver
	healthChecks map[string]HealthCheck
	apiLimiter   *middleware.IPRateLimiter
	loginLimiter *middleware.IPRateLimiter
}

func NewHandlerSet(deps Deps) HandlerSet {
	rl := deps.Config.Security.RateLimit
	return HandlerSet{
		log:          deps.Log,
		cfg:          deps.Config,
		auth:         deps.Auth,
		users:        deps.Users,
		files:        deps.Files,
		sessions:     deps.Sessions,
		codec:        deps.CookieCodec,
		csrf:         deps.CSRF,
		permissions:  deps.Permissions,
		healthChecks: deps.HealthChecks,
		apiLimiter:   middleware.NewIPRateLimiter(rl.Requests, rl.Window, rl.Requests),
		loginLimiter: middleware.NewIPRateLimiter(rl.Requests, rl.Window, rl.LoginBurst),
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	sessionOpts := middleware.SessionOptions{
		CookieName: h.cfg.Session.CookieName,
		MaxAge:     h.cfg.Session.Timeout,
		TLS:        h.cfg.TLS.Enabled,
	}
	withSession := router.Group("")
	withSession.Use(
		middleware.RateLimit(h.apiLimiter),
		middleware.Session(h.sessions, h.codec, sessionOpts, h.log),
	)
	csrf := middleware.CSRF(h.csrf, h.log)

	withSession.GET("/logout", h.LogoutRedirect)

	v1 := withSession.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.GET("/csrf", h.CSRFToken)
		auth.POST("/login", middleware.RateLimit(h.loginLimiter), h.Login)
		auth.POST("/logout", csrf, h.Logout)

		protected := auth.Group("")
		protected.Use(middleware.RequireLogin())
		protected.GET("/me", h.Me)
		protected.POST("/password", csrf, h.ChangePassword)
	}

	users := v1.Group("/users")
	users.Use(middleware.RequirePermission(h.permissions, security.PermManageUsers), csrf)
	users.GET("", h.ListUsers)
	users.POST("", h.CreateUser)
	users.PATCH("/:id/status", h.SetUserStatus)
	users.PATCH("/:id/role", h.SetUserRole)
	users.DELETE("/:id", h.DeleteUser)

	canView := middleware.RequirePermission(h.permissions, security.PermViewFiles)
	canUpload := middleware.RequirePermission(h.permissions, security.PermUploadFiles)
	canDelete := middleware.RequirePermission(h.permissions, security.PermDeleteFiles)

	files := v1.Group("/files")
	files.GET("", canView, h.ListFiles)
	files.GET("/:id/download", canView, h.DownloadFile)
	files.POST("", middleware.BodyLimit(h.cfg.Upload.MaxSize+multipartOverhead), canUpload, csrf, h.UploadFile)
	files.PATCH("/:id", canUpload, csrf, h.RenameFile)
	files.DELETE("/:id", canDelete, csrf, h.DeleteFile)
}

func pageFromQuery(c *gin.Context) service.Page {
	page := service.Page{Number: 1, PerPage: 20}
	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 100 {
			page.PerPage = v
		}
	}
	if n := c.Query("page"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 1 {
			page.Number = v
		}
	}
	return page
}
