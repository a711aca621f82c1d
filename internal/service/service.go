// service содержит бизнес-логику auth-сервиса:
// регистрацию/аутентификацию пользователей, выпуск/проверку токенов,
// ротацию refresh-сессий и работу с хранилищем через интерфейсы из
// пакета storage.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.Storage) потокобезопасно.
//   - Ошибки возвращаются и далее маппятся HTTP-слоем на статусы
//     (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"

	"github.com/axconkr/ai-marketplace/auth-service/internal/config"
	"github.com/axconkr/ai-marketplace/auth-service/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Наружу оба случая неразличимы (анти-enumeration). HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен (access/refresh) некорректен по формату/подписи
	// или имеет неожиданный kind. HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. HTTP 401,
	// в логах отличим от ErrInvalidToken (метрики "истёк" vs "подделан").
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — refresh-токен отозван (logout/rotation/compromise)
	// и недействителен независимо от срока. HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrSessionNotFound — подпись refresh-токена верна, но серверной записи
	// сессии нет (отзыв с удалением или подделка полезной нагрузки). HTTP 401.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired — серверная запись сессии просрочена; запись удаляется
	// как побочный эффект обнаружения (ленивая очистка). HTTP 401.
	ErrSessionExpired = errors.New("session expired")

	// ErrForbidden — подлинность подтверждена, но роли недостаточно. HTTP 403,
	// отличим от 401: клиент видит разницу «войдите» / «нет прав».
	ErrForbidden = errors.New("insufficient role")

	// ErrEmailTaken — e-mail уже занят другим пользователем. HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrRefreshTokenCollision — исчерпаны попытки сохранить уникальный хэш
	// refresh-токена (крайне редкие коллизии). HTTP 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")

	// ErrInvalidEmail — e-mail имеет некорректный формат. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrInvalidRole — роль вне закрытого множества buyer/seller/verifier/admin.
	// HTTP 400.
	ErrInvalidRole = errors.New("invalid role")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности. HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrNoSecret — не задан секрет подписи токенов. Фатально на старте:
	// молча «пропускать» неподписанные токены недопустимо. HTTP 500.
	ErrNoSecret = errors.New("jwt secret is not configured")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
}

// New создаёт новый экземпляр Service.
// Пустой секрет подписи — ошибка конфигурации, а не повод для дефолта.
func New(storage storage.Storage, cfg config.AuthConfig) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrNoSecret
	}

	return &Service{
		storage: storage,
		cfg:     cfg,
	}, nil
}
