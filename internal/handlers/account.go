package handlers

import (
	"errors"
	"net/http"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/models"

	"github.com/gin-gonic/gin"
)

type meResponse struct {
	Subject string       `json:"subject"`
	Claims  *auth.Claims `json:"claims"`
	// User is nil for subjects without an account, such as the demo subject.
	User *models.User `json:"user"`
}

func MeHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := authContextFrom(c)
		if !ok {
			writeAPIError(c, errors.New("me handler without auth context"))
			return
		}
		resp := meResponse{Subject: ac.Subject(), Claims: ac.Claims}
		u, err := models.GetUserByUsername(c.Request.Context(), d.DB, ac.Subject())
		switch {
		case err == nil:
			resp.User = u
		case !errors.Is(err, models.ErrNotFound):
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePasswordHandler must run behind middleware.RequireFresh.
func ChangePasswordHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := authContextFrom(c)
		if !ok {
			writeAPIError(c, errors.New("password handler without auth context"))
			return
		}
		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "invalid json")
			return
		}

		ctx := c.Request.Context()
		u, err := models.GetUserByUsername(ctx, d.DB, ac.Subject())
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if err := auth.ComparePasswordHash(u.PasswordHash, req.CurrentPassword); err != nil {
			writeAPIError(c, errInvalidCredentials)
			return
		}
		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if err := models.UpdatePasswordHash(ctx, d.DB, u.ID, hash); err != nil {
			writeAPIError(c, err)
			return
		}

		notifySubject(d, u.Username, "password_changed", gin.H{"user_id": u.ID})
		c.Status(http.StatusNoContent)
	}
}
