package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// LocationSet is the set of transports a token may be read from.
type LocationSet map[string]bool

func NewLocationSet(locations ...string) LocationSet {
	s := LocationSet{}
	for _, l := range locations {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			s[l] = true
		}
	}
	return s
}

func (s LocationSet) Cookies() bool { return s[LocationCookies] }
func (s LocationSet) Headers() bool { return s[LocationHeaders] }

// CookieSettings controls the attributes of the token and csrf cookies.
type CookieSettings struct {
	AccessName      string
	RefreshName     string
	AccessCSRFName  string
	RefreshCSRFName string

	AccessPath  string
	RefreshPath string
	Domain      string
	Secure      bool
	SameSite    http.SameSite

	// MaxAge of zero makes session cookies.
	MaxAge time.Duration
}

// Settings is fixed at process start and shared read-only by every request.
type Settings struct {
	SecretKey string
	Issuer    string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration

	TokenLocation LocationSet
	CSRFProtect   bool
	// CSRFMethods lists the HTTP methods that must carry a csrf header.
	// WebSocket handshakes are always checked when CSRFProtect is on.
	CSRFMethods map[string]bool

	Cookies CookieSettings

	DenylistEnabled bool
	DenylistChecks  map[TokenType]bool
}

// DefaultSettings mirrors the defaults of the browser flow: cookies only,
// csrf double submit on, 15 minute access and 30 day refresh tokens.
func DefaultSettings(secret string) Settings {
	return Settings{
		SecretKey:     secret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		TokenLocation: NewLocationSet(LocationCookies),
		CSRFProtect:   true,
		CSRFMethods: map[string]bool{
			http.MethodPost:   true,
			http.MethodPut:    true,
			http.MethodPatch:  true,
			http.MethodDelete: true,
		},
		Cookies: CookieSettings{
			AccessName:      AccessCookieName,
			RefreshName:     RefreshCookieName,
			AccessCSRFName:  AccessCSRFCookieName,
			RefreshCSRFName: RefreshCSRFCookieName,
			AccessPath:      "/",
			RefreshPath:     "/",
			SameSite:        http.SameSiteLaxMode,
		},
		DenylistChecks: map[TokenType]bool{TypeAccess: true, TypeRefresh: true},
	}
}

func (s Settings) Validate() error {
	var errs []error
	if s.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if s.AccessTTL <= 0 || s.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if s.Leeway < 0 {
		errs = append(errs, errors.New("leeway must not be negative"))
	}
	if !s.TokenLocation.Cookies() && !s.TokenLocation.Headers() {
		errs = append(errs, errors.New("at least one token location is required"))
	}
	if s.TokenLocation.Cookies() && (s.Cookies.AccessName == "" || s.Cookies.RefreshName == "") {
		errs = append(errs, errors.New("cookie names are required when cookies are enabled"))
	}
	return errors.Join(errs...)
}

// TokenCookieName returns the cookie that carries tokens of the given type.
func (c CookieSettings) TokenCookieName(typ TokenType) string {
	if typ == TypeRefresh {
		return c.RefreshName
	}
	return c.AccessName
}

// CSRFCookieName returns the companion csrf cookie for tokens of the given type.
func (c CookieSettings) CSRFCookieName(typ TokenType) string {
	if typ == TypeRefresh {
		return c.RefreshCSRFName
	}
	return c.AccessCSRFName
}
