package middleware

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/session"
)

type SessionOptions struct {
	CookieName string
	MaxAge     time.Duration
	TLS        bool
}

// Session resolves the session cookie through the manager and attaches the
// session to the request. The cookie is written just before the response
// headers go out, so an id rotated by the handler reaches the client.
func Session(manager *session.Manager, codec *securecookie.SecureCookie, opts SessionOptions, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var id string
		if raw, err := c.Cookie(opts.CookieName); err == nil && raw != "" {
			if err := codec.Decode(opts.CookieName, raw, &id); err != nil {
				log.Debug().Err(err).Str("ip", c.ClientIP()).Msg("discarding undecodable session cookie")
				id = ""
			}
		}

		fp := session.Fingerprint{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
		sess, err := manager.Init(c.Request.Context(), id, fp)
		switch {
		case errors.Is(err, common.ErrSessionExpired):
			c.Header("X-Session-Expired", "1")
		case errors.Is(err, common.ErrFingerprintMismatch):
			clearCookie(c, opts)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "session_invalid",
				"redirect": "/login",
			})
			return
		case err != nil:
			log.Error().Err(err).Msg("session init failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return
		}
		c.Set(sessionKey, sess)

		w := &cookieWriter{ResponseWriter: c.Writer}
		w.write = func() {
			current := CurrentSession(c)
			if current == nil || current.ID == "" {
				return
			}
			encoded, err := codec.Encode(opts.CookieName, current.ID)
			if err != nil {
				log.Error().Err(err).Msg("encode session cookie failed")
				return
			}
			http.SetCookie(w.ResponseWriter, sessionCookie(c, opts, encoded, int(opts.MaxAge.Seconds())))
		}
		c.Writer = w

		c.Next()

		if !w.ResponseWriter.Written() {
			w.setCookie()
		}
	}
}

func sessionCookie(c *gin.Context, opts SessionOptions, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.TLS || isHTTPS(c),
		SameSite: http.SameSiteStrictMode,
	}
}

func clearCookie(c *gin.Context, opts SessionOptions) {
	http.SetCookie(c.Writer, sessionCookie(c, opts, "", -1))
}

// cookieWriter adds the session cookie once, right before the header is
// committed.
type cookieWriter struct {
	gin.ResponseWriter
	once  sync.Once
	write func()
}

func (w *cookieWriter) setCookie() {
	w.once.Do(w.write)
}

func (w *cookieWriter) WriteHeader(code int) {
	w.setCookie()
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) WriteHeaderNow() {
	w.setCookie()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *cookieWriter) Write(data []byte) (int, error) {
	w.setCookie()
	return w.ResponseWriter.Write(data)
}

func (w *cookieWriter) WriteString(s string) (int, error) {
	w.setCookie()
	return w.ResponseWriter.WriteString(s)
}
