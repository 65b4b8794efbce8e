package handlers

import (
	"errors"
	"net/http"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/logging"
	"jwt-cookie-ws/internal/middleware"
	"jwt-cookie-ws/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errInvalidCredentials = errors.New("invalid credentials")

func writeAPIError(c *gin.Context, err error) {
	if err == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
		return
	}

	if _, ok := auth.KindOf(err); ok {
		middleware.WriteAuthError(c, err)
		return
	}

	// Safe typed errors; raw errors are never echoed.
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "not found"})
		return
	case errors.Is(err, models.ErrUsernameTaken):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"detail": "username already taken"})
		return
	case errors.Is(err, errInvalidCredentials):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid credentials"})
		return
	case auth.IsPasswordValidationError(err):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	logging.FromContext(c.Request.Context()).Error("internal error", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}

func writeBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": msg})
}
