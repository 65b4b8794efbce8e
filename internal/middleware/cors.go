package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/config"

	"github.com/gin-gonic/gin"
)

// DevCORS enables credentialed CORS for loopback origins in development, so a
// frontend dev server on another port can send the token and csrf cookies.
func DevCORS(cfg config.Config) gin.HandlerFunc {
	allowHeaders := strings.Join([]string{"Authorization", "Content-Type", auth.CSRFHeaderName}, ", ")
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin == "" || !cfg.IsDev() {
			c.Next()
			return
		}

		if IsLoopbackOrigin(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// IsLoopbackOrigin reports whether origin is an http(s) origin on localhost.
func IsLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
