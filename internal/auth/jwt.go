package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Issuer mints access and refresh tokens signed with the process secret.
type Issuer struct {
	settings Settings
	now      func() time.Time
}

func NewIssuer(s Settings) (*Issuer, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("issuer settings: %w", err)
	}
	return &Issuer{settings: s, now: time.Now}, nil
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

func (i *Issuer) CreateAccessToken(subject string, fresh bool) (Token, error) {
	return i.create(subject, TypeAccess, fresh, i.settings.AccessTTL)
}

func (i *Issuer) CreateRefreshToken(subject string) (Token, error) {
	return i.create(subject, TypeRefresh, false, i.settings.RefreshTTL)
}

func (i *Issuer) create(subject string, typ TokenType, fresh bool, ttl time.Duration) (Token, error) {
	if subject == "" {
		return Token{}, fmt.Errorf("subject required")
	}
	now := i.now().UTC()
	claims := Claims{
		Type:  typ,
		Fresh: fresh && typ == TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.settings.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ulid.Make().String(),
		},
	}
	if i.settings.CSRFProtect && i.settings.TokenLocation.Cookies() {
		csrf, err := NewCSRFToken()
		if err != nil {
			return Token{}, err
		}
		claims.CSRF = csrf
	}
	raw, err := i.Sign(claims)
	if err != nil {
		return Token{}, err
	}
	return Token{Raw: raw, CSRF: claims.CSRF, Claims: claims}, nil
}

// Sign signs claims exactly as given.
func (i *Issuer) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(i.settings.SecretKey))
}

// NewCSRFToken returns 128 bits of randomness, base64url encoded.
func NewCSRFToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func parseToken(raw string, s Settings, now func() time.Time) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	}
	if s.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(s.Leeway))
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}

	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.SecretKey), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
