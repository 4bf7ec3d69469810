package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messenger-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts the user directory.
type UserRepository interface {
	CreateUser(ctx context.Context, username, avatarURL string) (models.User, error)
	GetUser(ctx context.Context, userID int) (models.User, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.User, error)
	SetPresence(ctx context.Context, userID int, online bool, at time.Time) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a user row.
func (r *UserRepo) CreateUser(ctx context.Context, username, avatarURL string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (username, avatar_url) VALUES ($1, $2)
        RETURNING id, username, avatar_url, online, last_seen, created_at`, username, avatarURL).
		StructScan(&user)
	return user, err
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, avatar_url, online, last_seen, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches multiple users in one query.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, username, avatar_url, online, last_seen, created_at FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return users, err
}

// SetPresence records online state and last-seen time.
func (r *UserRepo) SetPresence(ctx context.Context, userID int, online bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET online=$2, last_seen=$3 WHERE id=$1`, userID, online, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
