package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	userColumns = `id, username, email, password_hash, role, prediction_count, created_at, updated_at, last_login_at`

	emailUniqueIndex = "users_email_key"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, user User) (User, error) {
	const query = `
INSERT INTO users (id, username, email, password_hash, role, prediction_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, now(), now())
RETURNING ` + userColumns
	var created User
	err := sqlscan.Get(ctx, r.DB, &created, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == emailUniqueIndex {
				return User{}, ErrEmailExists
			}
			return User{}, ErrUsernameExists
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 LIMIT 1`, userID)
}

func (r *PGRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) LIMIT 1`, email)
}

func (r *PGRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1) LIMIT 1`, username)
}

func (r *PGRepo) IncrementPredictionCount(ctx context.Context, userID string) error {
	const query = `UPDATE users SET prediction_count = prediction_count + 1, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, userID)
}

func (r *PGRepo) TouchLogin(ctx context.Context, userID string, at time.Time) error {
	const query = `UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, userID, at.UTC())
}

func (r *PGRepo) getOne(ctx context.Context, query string, arg string) (User, error) {
	var user User
	if err := sqlscan.Get(ctx, r.DB, &user, query, arg); err != nil {
		if sqlscan.NotFound(err) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func (r *PGRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
