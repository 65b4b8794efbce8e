package auth_test

import (
	"context"
	"testing"
	"time"

	"jwt-cookie-ws/internal/auth"

	"github.com/stretchr/testify/require"
)

func TestCreateAccessToken(t *testing.T) {
	s := auth.DefaultSettings(testSecret)
	iss := newIssuer(t, s)

	tok, err := iss.CreateAccessToken("test", true)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Raw)
	require.NotEmpty(t, tok.CSRF)
	require.Equal(t, tok.CSRF, tok.Claims.CSRF)
	require.Equal(t, auth.TypeAccess, tok.Claims.Type)
	require.True(t, tok.Claims.Fresh)
	require.NotEmpty(t, tok.Claims.ID)
	require.Equal(t, t0.Add(15*time.Minute), tok.Claims.ExpiresAt.Time)

	a := newAuthorizer(t, s)
	ac, err := a.Authorize(context.Background(), auth.Request{TokenCookie: tok.Raw, CSRF: tok.CSRF, Required: auth.TypeAccess})
	require.NoError(t, err)
	require.Equal(t, "test", ac.Subject())
	require.Equal(t, tok.Claims.ID, ac.Claims.ID)
}

func TestCreateRefreshToken(t *testing.T) {
	s := auth.DefaultSettings(testSecret)
	iss := newIssuer(t, s)

	access, err := iss.CreateAccessToken("test", true)
	require.NoError(t, err)
	refresh, err := iss.CreateRefreshToken("test")
	require.NoError(t, err)

	require.Equal(t, auth.TypeRefresh, refresh.Claims.Type)
	require.False(t, refresh.Claims.Fresh)
	require.NotEqual(t, access.CSRF, refresh.CSRF)
	require.NotEqual(t, access.Claims.ID, refresh.Claims.ID)
	require.Equal(t, t0.Add(30*24*time.Hour), refresh.Claims.ExpiresAt.Time)

	a := newAuthorizer(t, s)
	_, err = a.Authorize(context.Background(), auth.Request{TokenCookie: refresh.Raw, CSRF: refresh.CSRF, Required: auth.TypeRefresh})
	require.NoError(t, err)
}

func TestCreateToken_NoCSRFWhenDisabled(t *testing.T) {
	s := auth.DefaultSettings(testSecret)
	s.CSRFProtect = false
	tok, err := newIssuer(t, s).CreateAccessToken("test", false)
	require.NoError(t, err)
	require.Empty(t, tok.CSRF)
	require.Empty(t, tok.Claims.CSRF)
}

func TestCreateToken_RequiresSubject(t *testing.T) {
	_, err := newIssuer(t, auth.DefaultSettings(testSecret)).CreateAccessToken("", true)
	require.Error(t, err)
}

func TestIssuedTokenExpires(t *testing.T) {
	s := auth.DefaultSettings(testSecret)
	tok, err := newIssuer(t, s).CreateAccessToken("test", true)
	require.NoError(t, err)

	later := func() time.Time { return t0.Add(15*time.Minute + time.Second) }
	a := newAuthorizer(t, s, auth.WithClock(later))
	_, err = a.Authorize(context.Background(), auth.Request{TokenCookie: tok.Raw, CSRF: tok.CSRF})
	requireKind(t, err, auth.KindExpiredToken)
}

func TestNewCSRFToken(t *testing.T) {
	a, err := auth.NewCSRFToken()
	require.NoError(t, err)
	b, err := auth.NewCSRFToken()
	require.NoError(t, err)
	require.Len(t, a, 22)
	require.NotEqual(t, a, b)
}
