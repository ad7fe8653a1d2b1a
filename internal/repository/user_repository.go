package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/abdikee/fejrul-islam-sub000/internal/models"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

// UserRepository отвечает за чтение таблицы users.
// Флаги верификации и номер телефона пишутся только внутри транзакций
// VerificationRepository, здесь таблица не мутируется.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, email, username, password_hash, role, phone,
		       email_verified, phone_verified, is_active, last_login_at,
		       created_at, updated_at
		FROM users
		WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}

	return &user, nil
}

// PhoneInUse проверяет, подтверждён ли такой номер у другого активного
// аккаунта. excludeID исключает собственный аккаунт при смене номера.
func (r *UserRepository) PhoneInUse(ctx context.Context, phone string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE phone = $1 AND phone_verified = TRUE AND is_active = TRUE AND id <> $2
		)
	`
	if err := r.db.GetContext(ctx, &exists, query, phone, excludeID); err != nil {
		return false, fmt.Errorf("user repository: phone in use %w", err)
	}

	return exists, nil
}
