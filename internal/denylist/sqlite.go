package denylist

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore keeps revoked ids in the revoked_tokens table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, ErrEmptyJTI
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM revoked_tokens WHERE jti = ?`, jti,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Revoke(ctx context.Context, jti, tokenType string, expiresAt time.Time) error {
	if jti == "" {
		return ErrEmptyJTI
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens(jti, token_type, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(jti) DO NOTHING`,
		jti, tokenType, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert revoked token: %w", err)
	}
	return nil
}

// Purge deletes entries whose tokens have expired and returns how many went.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, s.now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	return res.RowsAffected()
}
