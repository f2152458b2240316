package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sisl-bd/eshop/internal/platform/db"
	"github.com/sisl-bd/eshop/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByLogin(ctx context.Context, login string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	TouchLogin(ctx context.Context, userID int64, at time.Time) error
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool}
}

// FindByLogin fetches a user by username or email, ignoring case.
func (r *PGRepository) FindByLogin(ctx context.Context, login string) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, `SELECT id, username, COALESCE(email, ''), password_hash, is_active, is_staff, created_at, last_login_at
FROM users
WHERE lower(username) = lower($1) OR (email IS NOT NULL AND lower(email) = lower($1))
ORDER BY lower(username) = lower($1) DESC
LIMIT 1`, strings.TrimSpace(login)).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsStaff, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user and fills its id.
func (r *PGRepository) CreateUser(ctx context.Context, user *User) error {
	var email any
	if user.Email != "" {
		email = user.Email
	}
	err := r.db.QueryRow(ctx, `INSERT INTO users (username, email, password_hash, is_active, is_staff)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		user.Username, email, user.PasswordHash, user.IsActive, user.IsStaff).Scan(&user.ID, &user.CreatedAt)
	if _, unique := db.UniqueViolation(err); unique {
		return shared.ErrDuplicate
	}
	return err
}

// TouchLogin records the last successful login.
func (r *PGRepository) TouchLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, at, userID)
	return err
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO sessions (id, user_id, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at`,
		id, userID, time.Now().UTC(), expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
