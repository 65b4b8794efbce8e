package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/logging"
	"jwt-cookie-ws/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// demoSubject is the subject /get-cookie mints tokens for.
const demoSubject = "test"

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	User *models.User `json:"user"`
	// CSRF mirrors the csrf_access_token cookie for clients that cannot read cookies.
	CSRF string `json:"csrf_access_token,omitempty"`
}

func RegisterHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req authRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "invalid json")
			return
		}

		req.Username = strings.TrimSpace(req.Username)
		uLen := utf8.RuneCountInString(req.Username)
		if uLen < 3 || uLen > 32 {
			writeBadRequest(c, "username must be 3-32 characters")
			return
		}

		// Passwords are not trimmed: leading/trailing spaces are valid characters.
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		u, err := models.CreateUser(c.Request.Context(), d.DB, req.Username, hash)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		access, err := issueLoginCookies(c, d, u.Username)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusCreated, authResponse{User: u, CSRF: access.CSRF})
	}
}

func LoginHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req authRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "invalid json")
			return
		}

		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			writeBadRequest(c, "username and password required")
			return
		}

		u, err := models.GetUserByUsername(c.Request.Context(), d.DB, req.Username)
		if errors.Is(err, models.ErrNotFound) {
			writeAPIError(c, errInvalidCredentials)
			return
		}
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if err := auth.ComparePasswordHash(u.PasswordHash, req.Password); err != nil {
			writeAPIError(c, errInvalidCredentials)
			return
		}

		access, err := issueLoginCookies(c, d, u.Username)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, authResponse{User: u, CSRF: access.CSRF})
	}
}

// RefreshHandler trades a refresh token for a new, non-fresh access token.
// It must run behind middleware.RequireRefresh.
func RefreshHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := authContextFrom(c)
		if !ok {
			writeAPIError(c, errors.New("refresh handler without auth context"))
			return
		}
		access, err := d.Issuer.CreateAccessToken(ac.Subject(), false)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		setCookies(c, d.Authorizer.Settings().AccessCookies(access))
		c.JSON(http.StatusOK, gin.H{"ok": true, "csrf_access_token": access.CSRF})
	}
}

// LogoutHandler revokes the caller's tokens, clears the cookies and closes the
// caller's sockets. It must run behind an access-token middleware.
func LogoutHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := authContextFrom(c)
		if !ok {
			writeAPIError(c, errors.New("logout handler without auth context"))
			return
		}
		ctx := c.Request.Context()

		if d.Denylist != nil {
			if err := revoke(ctx, d, ac.Claims); err != nil {
				writeAPIError(c, err)
				return
			}
			if refresh := currentRefreshToken(c, d); refresh != nil {
				if err := revoke(ctx, d, refresh.Claims); err != nil {
					writeAPIError(c, err)
					return
				}
			}
		}

		setCookies(c, d.Authorizer.Settings().UnsetCookies())
		disconnectSubject(d, ac.Subject())
		logging.FromContext(ctx).Info("logout", zap.String("subject", ac.Subject()))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// GetCookieHandler issues a fresh access token and a refresh token for the
// demo subject. Development only.
func GetCookieHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := issueLoginCookies(c, d, demoSubject); err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "Successfully login"})
	}
}

// issueLoginCookies sets a fresh access token and a refresh token as cookies.
func issueLoginCookies(c *gin.Context, d Deps, subject string) (auth.Token, error) {
	access, err := d.Issuer.CreateAccessToken(subject, true)
	if err != nil {
		return auth.Token{}, err
	}
	refresh, err := d.Issuer.CreateRefreshToken(subject)
	if err != nil {
		return auth.Token{}, err
	}
	s := d.Authorizer.Settings()
	setCookies(c, s.AccessCookies(access))
	setCookies(c, s.RefreshCookies(refresh))
	return access, nil
}

// currentRefreshToken verifies the refresh cookie, if any. The request already
// passed the access-token csrf check, so the refresh csrf is taken from its
// own cookie.
func currentRefreshToken(c *gin.Context, d Deps) *auth.AuthorizationContext {
	cookies := d.Authorizer.Settings().Cookies
	raw, _ := c.Cookie(cookies.TokenCookieName(auth.TypeRefresh))
	if raw == "" {
		return nil
	}
	csrf, _ := c.Cookie(cookies.CSRFCookieName(auth.TypeRefresh))
	ac, err := d.Authorizer.Authorize(c.Request.Context(), auth.Request{
		TokenCookie: raw,
		CSRF:        csrf,
		Required:    auth.TypeRefresh,
		Transport:   auth.TransportHTTP,
		Method:      c.Request.Method,
	})
	if err != nil {
		return nil
	}
	return ac
}

func revoke(ctx context.Context, d Deps, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	return d.Denylist.Revoke(ctx, claims.ID, string(claims.Type), claims.ExpiresAt.Time)
}

func setCookies(c *gin.Context, cookies []*http.Cookie) {
	for _, ck := range cookies {
		http.SetCookie(c.Writer, ck)
	}
}
