package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users and permissions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	if r == nil {
		return User{}, errors.New("directory repository not initialised")
	}
	var user User
	err := r.pool.QueryRow(ctx, `SELECT id, email, name, reports_to, is_active, created_at, modified_at
FROM users WHERE id=$1`, id).
		Scan(&user.ID, &user.Email, &user.Name, &user.ReportsTo, &user.IsActive, &user.CreatedAt, &user.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user User, passwordHash []byte) (int64, error) {
	if r == nil {
		return 0, errors.New("directory repository not initialised")
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, reports_to, is_active, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id`,
		user.Email, user.Name, passwordHash, user.ReportsTo, user.IsActive).Scan(&id)
	return id, err
}

func (r *Repository) SetReportsTo(ctx context.Context, userID int64, managerID *int64) error {
	if r == nil {
		return errors.New("directory repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE users SET reports_to=$2, modified_at=NOW() WHERE id=$1`, userID, managerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	if r == nil {
		return false, errors.New("directory repository not initialised")
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM user_permissions WHERE user_id=$1 AND permission=$2 LIMIT 1`,
		userID, permission).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

func (r *Repository) GrantPermission(ctx context.Context, userID int64, permission string) error {
	if r == nil {
		return errors.New("directory repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO user_permissions (user_id, permission, granted_at)
VALUES ($1, $2, NOW()) ON CONFLICT (user_id, permission) DO NOTHING`, userID, permission)
	return err
}
