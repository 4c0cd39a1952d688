package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/mobile-seat-admission/internal/model"
)

// UserRepo reads users for the mobile login flow.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, customer_id, login, full_name, password_hash, is_active, created_at`

// GetByLogin returns the user with the given login or ErrUserNotFound.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE login = ? LIMIT 1`, login)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, q, arg).Scan(
		&u.ID, &u.CustomerID, &u.Login, &u.FullName, &u.PasswordHash, &u.IsActive, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
