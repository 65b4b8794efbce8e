package handlers

import (
	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/middleware"

	"github.com/gin-gonic/gin"
)

// authContextFrom returns the authorization result stored by the auth
// middleware. Routes without it are a wiring bug, so the caller gets a 500.
func authContextFrom(c *gin.Context) (*auth.AuthorizationContext, bool) {
	ac, ok := middleware.AuthContext(c)
	if !ok || ac.Anonymous {
		return nil, false
	}
	return ac, true
}
