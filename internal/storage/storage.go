package storage

import (
	"context"
	"errors"
	"time"

	"github.com/axconkr/ai-marketplace/auth-service/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/refresh-token).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UpdatePasswordHash заменяет хэш пароля (прозрачный rehash при входе).
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-token в БД.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит refresh-токен по его хэшу.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RevokeRefreshToken пытается отозвать refresh-токен, если он ещё активен.
	// Возвращает:
	//   (true, nil)  — токен был активен и отозван сейчас;
	//   (false, nil) — токен существует, но уже был отозван;
	//   (false, ErrNotFound) — токен не найден.
	RevokeRefreshToken(ctx context.Context, hash string) (bool, error)
	// RevokeAllByUser отзывает все активные refresh-токены пользователя
	// (logout everywhere). Возвращает число отозванных токенов.
	RevokeAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	// DeleteRefreshToken удаляет одну запись (ленивая очистка просроченной
	// сессии при обнаружении). Отсутствие записи — не ошибка.
	DeleteRefreshToken(ctx context.Context, hash string) error
	// DeleteExpiredTokens удаляет все просроченные токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
