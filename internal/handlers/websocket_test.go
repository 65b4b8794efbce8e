package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/config"
)

func (s *testServer) wsURL(path string, query url.Values) string {
	u := "ws" + strings.TrimPrefix(s.URL, "http") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// dial opens a socket carrying the given cookies.
func (s *testServer) dial(t *testing.T, path string, query url.Values, cookies map[string]string) *websocket.Conn {
	t.Helper()
	h := http.Header{}
	for name, value := range cookies {
		h.Add("Cookie", (&http.Cookie{Name: name, Value: value}).String())
	}
	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL(path, query), h)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	typ, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	return string(msg)
}

// requireRejected asserts the server sent exactly one text frame, msg, and
// then closed the connection.
func requireRejected(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.Equal(t, msg, readText(t, conn))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func requireLoggedIn(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.Equal(t, "Successfully Login!", readText(t, conn))
	decoded := readText(t, conn)
	require.True(t, strings.HasPrefix(decoded, "Here your decoded token: "), decoded)
	var claims map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(decoded, "Here your decoded token: ")), &claims))
	return claims
}

func accessToken(t *testing.T, s *testServer, subject string, fresh bool) auth.Token {
	t.Helper()
	tok, err := s.deps.Issuer.CreateAccessToken(subject, fresh)
	require.NoError(t, err)
	return tok
}

func csrfQuery(v string) url.Values {
	return url.Values{auth.CSRFQueryParam: {v}}
}

func TestWebSocket_Authorized(t *testing.T) {
	s := newTestServer(t, nil)
	tok := accessToken(t, s, "test", false)

	conn := s.dial(t, "/ws", csrfQuery(tok.CSRF), map[string]string{auth.AccessCookieName: tok.Raw})
	claims := requireLoggedIn(t, conn)
	require.Equal(t, "test", claims["sub"])
	require.Equal(t, "access", claims["type"])
	require.Equal(t, tok.CSRF, claims["csrf"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(readText(t, conn)), &env))
	require.Equal(t, "pong", env["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"claims"}`)))
	require.NoError(t, json.Unmarshal([]byte(readText(t, conn)), &env))
	require.Equal(t, "claims", env["type"])
	require.Equal(t, "test", env["payload"].(map[string]any)["sub"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.Equal(t, "hello", readText(t, conn))

	require.Equal(t, 1.0, testutil.ToFloat64(s.deps.Metrics.WSAuthorizations.WithLabelValues("ok")))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.deps.Metrics.WSSessionsActive) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocket_Rejections(t *testing.T) {
	s := newTestServer(t, nil)
	tok := accessToken(t, s, "test", false)
	expired, err := s.deps.Issuer.WithClock(func() time.Time {
		return time.Now().Add(-15*time.Minute - time.Second)
	}).CreateAccessToken("test", false)
	require.NoError(t, err)
	refresh, err := s.deps.Issuer.CreateRefreshToken("test")
	require.NoError(t, err)

	cases := []struct {
		name    string
		query   url.Values
		cookies map[string]string
		want    string
	}{
		{
			name:  "missing cookie",
			query: csrfQuery(tok.CSRF),
			want:  "Missing cookie access_token_cookie",
		},
		{
			name:    "missing csrf",
			cookies: map[string]string{auth.AccessCookieName: tok.Raw},
			want:    "Missing CSRF Token",
		},
		{
			name:    "csrf mismatch",
			query:   csrfQuery("xyz999"),
			cookies: map[string]string{auth.AccessCookieName: tok.Raw},
			want:    "CSRF double submit tokens do not match",
		},
		{
			name:    "expired",
			query:   csrfQuery(expired.CSRF),
			cookies: map[string]string{auth.AccessCookieName: expired.Raw},
			want:    "Signature has expired",
		},
		{
			name:    "refresh token in access cookie",
			query:   csrfQuery(refresh.CSRF),
			cookies: map[string]string{auth.AccessCookieName: refresh.Raw},
			want:    "Only access tokens are allowed",
		},
		{
			name:    "garbage",
			query:   csrfQuery("abc123"),
			cookies: map[string]string{auth.AccessCookieName: "abc.def.ghi"},
			want:    "Malformed token",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := s.dial(t, "/ws", tc.query, tc.cookies)
			requireRejected(t, conn, tc.want)
		})
	}

	require.Equal(t, 1.0, testutil.ToFloat64(s.deps.Metrics.WSAuthorizations.WithLabelValues("csrf_mismatch")))
	require.Equal(t, 1.0, testutil.ToFloat64(s.deps.Metrics.WSAuthorizations.WithLabelValues("expired_token")))
	require.Zero(t, testutil.ToFloat64(s.deps.Metrics.WSSessionsActive))
}

func TestWebSocket_Variants(t *testing.T) {
	s := newTestServer(t, nil)
	stale := accessToken(t, s, "test", false)
	fresh := accessToken(t, s, "test", true)
	refresh, err := s.deps.Issuer.CreateRefreshToken("test")
	require.NoError(t, err)

	conn := s.dial(t, "/ws/fresh", csrfQuery(stale.CSRF), map[string]string{auth.AccessCookieName: stale.Raw})
	requireRejected(t, conn, "Fresh token required")

	conn = s.dial(t, "/ws/fresh", csrfQuery(fresh.CSRF), map[string]string{auth.AccessCookieName: fresh.Raw})
	require.Equal(t, true, requireLoggedIn(t, conn)["fresh"])

	conn = s.dial(t, "/ws/refresh", csrfQuery(fresh.CSRF), map[string]string{auth.AccessCookieName: fresh.Raw})
	requireRejected(t, conn, "Missing cookie refresh_token_cookie")

	conn = s.dial(t, "/ws/refresh", csrfQuery(refresh.CSRF), map[string]string{auth.RefreshCookieName: refresh.Raw})
	require.Equal(t, "refresh", requireLoggedIn(t, conn)["type"])

	conn = s.dial(t, "/ws/optional", nil, nil)
	require.Equal(t, "Successfully Login!", readText(t, conn))
	require.Equal(t, "Here your decoded token: null", readText(t, conn))

	// A token that is present is still checked in optional mode.
	conn = s.dial(t, "/ws/optional", csrfQuery("nope"), map[string]string{auth.AccessCookieName: stale.Raw})
	requireRejected(t, conn, "CSRF double submit tokens do not match")
}

func TestWebSocket_HeaderTokenSkipsCSRF(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.TokenLocation = []string{auth.LocationCookies, auth.LocationHeaders}
	})
	tok := accessToken(t, s, "test", false)

	conn := s.dial(t, "/ws", url.Values{auth.TokenQueryParam: {tok.Raw}}, nil)
	require.Equal(t, "test", requireLoggedIn(t, conn)["sub"])

	h := http.Header{"Authorization": {"Bearer " + tok.Raw}}
	conn2, _, err := websocket.DefaultDialer.Dial(s.wsURL("/ws", nil), h)
	require.NoError(t, err)
	defer conn2.Close()
	require.Equal(t, "test", requireLoggedIn(t, conn2)["sub"])
}

func TestWebSocket_LogoutClosesSessions(t *testing.T) {
	s := newTestServer(t, nil)
	status, _ := s.request(t, http.MethodGet, "/get-cookie", nil, "")
	require.Equal(t, http.StatusOK, status)
	access := s.cookie(t, auth.AccessCookieName)
	csrf := s.cookie(t, auth.AccessCSRFCookieName)

	conn := s.dial(t, "/ws", csrfQuery(csrf), map[string]string{auth.AccessCookieName: access})
	requireLoggedIn(t, conn)
	require.Eventually(t, func() bool {
		h, _ := s.deps.Hubs()
		return h.Count() == 1
	}, time.Second, 10*time.Millisecond)

	status, _ = s.request(t, http.MethodPost, "/api/auth/logout", nil, csrf)
	require.Equal(t, http.StatusOK, status)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	conn = s.dial(t, "/ws", csrfQuery(csrf), map[string]string{auth.AccessCookieName: access})
	requireRejected(t, conn, "Token has been revoked")
}

func TestWebSocket_OriginPolicy(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.AppEnv = "production"
		c.CookieSecure = true
		c.WSAllowedOrigins = []string{"https://app.example"}
	})
	tok := accessToken(t, s, "test", false)
	h := http.Header{}
	h.Add("Cookie", (&http.Cookie{Name: auth.AccessCookieName, Value: tok.Raw}).String())

	h.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL("/ws", csrfQuery(tok.CSRF)), h)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	h.Set("Origin", "https://app.example")
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL("/ws", csrfQuery(tok.CSRF)), h)
	require.NoError(t, err)
	defer conn.Close()
	requireLoggedIn(t, conn)
}

type failingDenylist struct{}

func (failingDenylist) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("denylist unavailable")
}

func TestWebSocket_InternalErrorCloses(t *testing.T) {
	s := newTestServer(t, nil, auth.WithDenylist(failingDenylist{}))
	tok := accessToken(t, s, "test", false)

	conn := s.dial(t, "/ws", csrfQuery(tok.CSRF), map[string]string{auth.AccessCookieName: tok.Raw})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "expected a 1011 close with no text frame, got %v", err)

	require.Equal(t, 1.0, testutil.ToFloat64(s.deps.Metrics.WSAuthorizations.WithLabelValues("error")))
	require.Zero(t, testutil.ToFloat64(s.deps.Metrics.WSSessionsActive))
	h, ok := s.deps.Hubs()
	require.True(t, ok)
	require.Zero(t, h.Count())

	u, err := url.Parse(s.URL)
	require.NoError(t, err)
	s.jar.SetCookies(u, []*http.Cookie{{Name: auth.AccessCookieName, Value: tok.Raw}})
	status, body := s.request(t, http.MethodGet, "/api/me", nil, "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "internal server error", body["detail"])
}
