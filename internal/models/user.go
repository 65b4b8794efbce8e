package models

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// User is an account that can log in. Its username is the token subject.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

const userColumns = `id, username, password_hash, created_at`

func CreateUser(ctx context.Context, db *sql.DB, username, passwordHash string) (*User, error) {
	username = strings.TrimSpace(username)
	res, err := db.ExecContext(ctx,
		`INSERT INTO users(username, password_hash) VALUES (?, ?)`,
		username, passwordHash,
	)
	if IsUniqueConstraint(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return GetUserByID(ctx, db, id)
}

func GetUserByID(ctx context.Context, db *sql.DB, id int64) (*User, error) {
	return scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*User, error) {
	return scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`,
		strings.TrimSpace(username),
	))
}

func UpdatePasswordHash(ctx context.Context, db *sql.DB, userID int64, passwordHash string) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
