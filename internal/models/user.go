package models

import (
	"time"

	"github.com/google/uuid"
)

// User - модель пользователя маркетплейса.
//
// PasswordHash может быть пустым для аккаунтов, созданных через внешний
// OAuth-провайдер: такие пользователи не могут входить по паролю.
type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	DisplayName   string
	Role          Role
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
