package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — серверное состояние refresh-сессии.
// В БД хранится только SHA-256 хэш предъявляемого токена: утечка таблицы
// не даёт пригодных к использованию токенов.
type RefreshToken struct {
	RefreshTokenHash string
	UserID           uuid.UUID
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Revoked          bool
}
