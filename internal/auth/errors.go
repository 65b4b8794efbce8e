package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an authorization failure. Every kind is recoverable by the
// client; none of them is fatal to the process.
type Kind int

const (
	KindMissingToken Kind = iota + 1
	KindInvalidToken
	KindExpiredToken
	KindWrongTokenType
	KindMissingCSRF
	KindCSRFMismatch
	KindFreshRequired
	KindRevokedToken
)

func (k Kind) String() string {
	switch k {
	case KindMissingToken:
		return "missing_token"
	case KindInvalidToken:
		return "invalid_token"
	case KindExpiredToken:
		return "expired_token"
	case KindWrongTokenType:
		return "wrong_token_type"
	case KindMissingCSRF:
		return "missing_csrf"
	case KindCSRFMismatch:
		return "csrf_mismatch"
	case KindFreshRequired:
		return "fresh_required"
	case KindRevokedToken:
		return "revoked_token"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// HTTPStatus follows the status codes browsers already see from the cookie flow:
// 422 for tokens that are present but fail to decode or have the wrong type
// (expiry included), 401 for everything else.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidToken, KindExpiredToken, KindWrongTokenType:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusUnauthorized
	}
}

// Error is an authorization failure with a message safe to show the peer.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, &auth.Error{Kind: auth.KindExpiredToken}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// KindOf returns the failure kind of err, or false when err is not an
// authorization failure.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}
