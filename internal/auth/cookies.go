package auth

import (
	"net/http"
	"time"
)

// AccessCookies returns the HttpOnly access token cookie and its script-readable csrf companion.
func (s Settings) AccessCookies(tok Token) []*http.Cookie {
	return s.tokenCookies(tok, s.Cookies.AccessName, s.Cookies.AccessCSRFName, s.Cookies.AccessPath)
}

// RefreshCookies returns the HttpOnly refresh token cookie and its script-readable csrf companion.
func (s Settings) RefreshCookies(tok Token) []*http.Cookie {
	return s.tokenCookies(tok, s.Cookies.RefreshName, s.Cookies.RefreshCSRFName, s.Cookies.RefreshPath)
}

// UnsetCookies expires every token and csrf cookie.
func (s Settings) UnsetCookies() []*http.Cookie {
	c := s.Cookies
	out := []*http.Cookie{
		s.expired(c.AccessName, c.AccessPath, true),
		s.expired(c.RefreshName, c.RefreshPath, true),
	}
	if s.CSRFProtect {
		out = append(out,
			s.expired(c.AccessCSRFName, c.AccessPath, false),
			s.expired(c.RefreshCSRFName, c.RefreshPath, false),
		)
	}
	return out
}

func (s Settings) tokenCookies(tok Token, name, csrfName, path string) []*http.Cookie {
	out := []*http.Cookie{s.cookie(name, tok.Raw, path, true)}
	if s.CSRFProtect && tok.CSRF != "" {
		out = append(out, s.cookie(csrfName, tok.CSRF, path, false))
	}
	return out
}

func (s Settings) cookie(name, value, path string, httpOnly bool) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   s.Cookies.Domain,
		Secure:   s.Cookies.Secure,
		HttpOnly: httpOnly,
		SameSite: s.Cookies.SameSite,
	}
	if s.Cookies.MaxAge > 0 {
		ck.MaxAge = int(s.Cookies.MaxAge / time.Second)
	}
	return ck
}

func (s Settings) expired(name, path string, httpOnly bool) *http.Cookie {
	ck := s.cookie(name, "", path, httpOnly)
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	return ck
}
