package models

import (
	"fmt"
	"strings"
)

// Role — закрытое множество ролей маркетплейса.
// Внешние строки нормализуются и проверяются через ParseRole на каждой
// границе (вход регистрации, claims токена); «сырые» строки дальше
// авторизации не проходят.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleVerifier Role = "verifier"
	RoleAdmin    Role = "admin"
)

// ParseRole нормализует внешнюю строку и отклоняет неизвестные роли.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}

	return role, nil
}

// Valid сообщает, входит ли роль в закрытое множество.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleVerifier, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }
