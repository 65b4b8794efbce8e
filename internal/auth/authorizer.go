package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Transport int

const (
	TransportWebSocket Transport = iota
	TransportHTTP
)

// Denylist reports whether a token id has been revoked.
type Denylist interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Request is everything the authorizer looks at. Empty strings mean absent.
type Request struct {
	// TokenCookie is the value of the token cookie matching Required.
	TokenCookie string
	// CSRF is the value supplied out-of-band: the csrf_token handshake
	// parameter for WebSockets, the X-CSRF-Token header for HTTP.
	CSRF string
	// HeaderToken is a bearer token (Authorization header or token query param).
	HeaderToken string

	Required     TokenType
	RequireFresh bool
	// Optional accepts a request carrying no token at all. A token that is
	// present is still fully checked.
	Optional bool

	Transport Transport
	// Method is the HTTP method; ignored for WebSockets.
	Method string
}

// AuthorizationContext holds the decoded claims for the lifetime of a
// connection or request.
type AuthorizationContext struct {
	Claims    *Claims
	Raw       string
	Location  string
	Anonymous bool
}

func (a *AuthorizationContext) Subject() string {
	if a == nil || a.Claims == nil {
		return ""
	}
	return a.Claims.Subject
}

// Authorizer checks tokens against Settings. It holds no mutable state and is
// safe for concurrent use.
type Authorizer struct {
	settings Settings
	now      func() time.Time
	denylist Denylist
}

type Option func(*Authorizer)

func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) { a.now = now }
}

// WithDenylist enables revocation checks when Settings.DenylistEnabled is set.
func WithDenylist(d Denylist) Option {
	return func(a *Authorizer) { a.denylist = d }
}

func NewAuthorizer(s Settings, opts ...Option) (*Authorizer, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("authorizer settings: %w", err)
	}
	a := &Authorizer{settings: s, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	if s.DenylistEnabled && a.denylist == nil {
		return nil, errors.New("authorizer settings: denylist enabled but no denylist configured")
	}
	return a, nil
}

func (a *Authorizer) Settings() Settings {
	return a.settings
}

// Authorize returns an *Error for every failure the client can act on. Any
// other error comes from a collaborator (the denylist) and is returned as is.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (*AuthorizationContext, error) {
	required := req.Required
	if required == "" {
		required = TypeAccess
	}

	raw, location := a.selectToken(req)
	if raw == "" {
		if req.Optional {
			return &AuthorizationContext{Anonymous: true}, nil
		}
		return nil, a.missingToken(required)
	}

	claims, err := parseToken(raw, a.settings, a.now)
	if err != nil {
		return nil, verificationError(err)
	}

	if claims.Type != required {
		return nil, newError(KindWrongTokenType, fmt.Sprintf("Only %s tokens are allowed", required), nil)
	}

	if req.RequireFresh && !claims.Fresh {
		return nil, newError(KindFreshRequired, "Fresh token required", nil)
	}

	if a.csrfEnforced(req, location) {
		if req.CSRF == "" {
			return nil, newError(KindMissingCSRF, "Missing CSRF Token", nil)
		}
		if claims.CSRF == "" {
			return nil, newError(KindInvalidToken, "Missing claim: csrf", nil)
		}
		if subtle.ConstantTimeCompare([]byte(req.CSRF), []byte(claims.CSRF)) != 1 {
			return nil, newError(KindCSRFMismatch, "CSRF double submit tokens do not match", nil)
		}
	}

	if a.settings.DenylistEnabled && a.settings.DenylistChecks[claims.Type] {
		if claims.ID == "" {
			return nil, newError(KindInvalidToken, "Missing claim: jti", nil)
		}
		revoked, err := a.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("denylist lookup: %w", err)
		}
		if revoked {
			return nil, newError(KindRevokedToken, "Token has been revoked", nil)
		}
	}

	return &AuthorizationContext{Claims: claims, Raw: raw, Location: location}, nil
}

// selectToken prefers a header token when headers are enabled and one was
// sent, and falls back to the cookie. Only cookie tokens are csrf-bound.
func (a *Authorizer) selectToken(req Request) (string, string) {
	if a.settings.TokenLocation.Headers() {
		if t := strings.TrimSpace(req.HeaderToken); t != "" {
			return t, LocationHeaders
		}
	}
	if a.settings.TokenLocation.Cookies() {
		if t := strings.TrimSpace(req.TokenCookie); t != "" {
			return t, LocationCookies
		}
	}
	return "", ""
}

func (a *Authorizer) csrfEnforced(req Request, location string) bool {
	if !a.settings.CSRFProtect || location != LocationCookies {
		return false
	}
	if req.Transport == TransportWebSocket {
		return true
	}
	return a.settings.CSRFMethods[strings.ToUpper(req.Method)]
}

func (a *Authorizer) missingToken(required TokenType) *Error {
	if a.settings.TokenLocation.Cookies() {
		name := a.settings.Cookies.TokenCookieName(required)
		return newError(KindMissingToken, "Missing cookie "+name, nil)
	}
	return newError(KindMissingToken, "Missing Authorization Header", nil)
}

func verificationError(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(KindExpiredToken, "Signature has expired", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(KindInvalidToken, "Malformed token", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newError(KindInvalidToken, "Signature verification failed", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return newError(KindInvalidToken, "The token is not yet valid (nbf)", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return newError(KindInvalidToken, "Invalid issuer", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return newError(KindInvalidToken, "Missing claim: exp", err)
	default:
		return newError(KindInvalidToken, "Invalid token", err)
	}
}
