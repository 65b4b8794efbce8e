// Package denylist records token ids that were revoked before they expired.
package denylist

import (
	"context"
	"errors"
	"time"
)

var ErrEmptyJTI = errors.New("denylist: empty jti")

// Store is a revocation list keyed by the token's jti. Entries only need to
// live until the token would have expired anyway.
type Store interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti, tokenType string, expiresAt time.Time) error
}
