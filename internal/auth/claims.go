package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Claims are the decoded contents of an access or refresh token.
type Claims struct {
	Type TokenType `json:"type"`
	// Fresh is only meaningful on access tokens minted directly from a login.
	Fresh bool `json:"fresh"`
	// CSRF is bound to the token at issuance; empty when csrf protection is off.
	CSRF string `json:"csrf,omitempty"`
	jwt.RegisteredClaims
}

// Token is a signed token together with the csrf value the client must echo.
type Token struct {
	Raw    string
	CSRF   string
	Claims Claims
}
