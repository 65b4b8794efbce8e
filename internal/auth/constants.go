package auth

// Default cookie names. The token cookies are HttpOnly; the csrf cookies are
// readable by page script so it can resubmit the value out-of-band.
const (
	AccessCookieName      = "access_token_cookie"
	RefreshCookieName     = "refresh_token_cookie"
	AccessCSRFCookieName  = "csrf_access_token"
	RefreshCSRFCookieName = "csrf_refresh_token"
)

// CSRFHeaderName carries the csrf value on ordinary HTTP requests.
const CSRFHeaderName = "X-CSRF-Token"

// CSRFQueryParam carries the csrf value on the WebSocket handshake, since
// browser script cannot attach custom headers to the upgrade request.
const CSRFQueryParam = "csrf_token"

// TokenQueryParam carries a header-location token on the WebSocket handshake.
const TokenQueryParam = "token"

// Token locations.
const (
	LocationCookies = "cookies"
	LocationHeaders = "headers"
)
