package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"tradejournal/internal/models"
)

// Ошибки репозитория пользователей
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// UserRepository - работа с таблицей users
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository создает новый экземпляр репозитория
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создает пользователя с уже захешированным токеном
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, display_name, token_hash, created_at)
		VALUES ($1, $2, $3, $4)`

	user.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query, user.ID, user.DisplayName, user.TokenHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return err
	}

	return nil
}

// GetByID возвращает пользователя
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, display_name, token_hash, created_at
		FROM users
		WHERE id = $1`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.DisplayName, &user.TokenHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

// GetTokenHash возвращает bcrypt хеш токена пользователя
func (r *UserRepository) GetTokenHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT token_hash FROM users WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	return hash, nil
}

// UpdateTokenHash заменяет токен пользователя
func (r *UserRepository) UpdateTokenHash(ctx context.Context, id, hash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET token_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}

	return expectAffected(result, ErrUserNotFound)
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
// (Postgres 23505 или SQLite "UNIQUE constraint failed")
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "23505") ||
		strings.Contains(errStr, "UNIQUE constraint failed")
}
