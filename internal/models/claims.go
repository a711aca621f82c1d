package models

import "github.com/google/uuid"

// Claims — проверенные identity-поля из подписанного токена.
// Нигде не персистятся: живут один запрос.
type Claims struct {
	UserID uuid.UUID
	Email  string
	Role   Role
	Name   string
}
