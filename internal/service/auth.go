package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/axconkr/ai-marketplace/auth-service/internal/models"
	"github.com/axconkr/ai-marketplace/auth-service/internal/pkg/log"
	"github.com/axconkr/ai-marketplace/auth-service/internal/pkg/redact"
	"github.com/axconkr/ai-marketplace/auth-service/internal/storage"
	"github.com/google/uuid"
)

// RegisterParams — входные данные регистрации.
type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

// RegisterUser регистрирует нового пользователя и сразу выдает пару токенов.
// Пустая роль означает buyer; неизвестная роль отклоняется на границе.
func (s *Service) RegisterUser(ctx context.Context, in RegisterParams) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(in.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	role := models.RoleBuyer
	if in.Role != "" {
		role, err = models.ParseRole(in.Role)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidRole)
		}
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hashedPassword,
		DisplayName:  in.DisplayName,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user, "")
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// LoginUser выполняет вход по email+пароль.
// «Пользователь не найден» и «пароль неверен» наружу неразличимы.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.LoginUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	s.maybeRehashPassword(ctx, user, password)

	pair, err := s.issueTokenPair(ctx, user, "")
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// RefreshToken обменивает refresh-токен на новую пару токенов.
// Старый токен отзывается атомарно (rotate-on-use): из двух конкурентных
// обновлений одним и тем же токеном выигрывает ровно одно.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RefreshToken"

	if _, err := s.parseToken(refreshToken, TokenKindRefresh); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hash := hashToken(refreshToken)

	session, err := s.validateRefreshSession(ctx, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// RevokeToken отзывает один refresh-токен (logout одного устройства).
// Операция идемпотентна: незнакомый или уже отозванный токен — не ошибка.
func (s *Service) RevokeToken(ctx context.Context, refreshToken string) error {
	const op = "service.auth.RevokeToken"

	lg := log.From(ctx)

	hash := hashToken(refreshToken)

	revoked, err := s.storage.RevokeRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("revoke_unknown_token",
				slog.String("op", op),
			)
			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !revoked {
		lg.Warn("revoke_already_revoked",
			slog.String("op", op),
		)
	}

	return nil
}

// RevokeAllTokens отзывает все активные refresh-токены пользователя
// (logout everywhere).
func (s *Service) RevokeAllTokens(ctx context.Context, userID uuid.UUID) error {
	const op = "service.auth.RevokeAllTokens"

	n, err := s.storage.RevokeAllByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("revoke_all_tokens",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.Int64("revoked", n),
	)

	return nil
}

// ValidateToken проверяет access-токен и возвращает проверенные claims.
// Выполняется без I/O: access-токен самодостаточен в подписанном конверте.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (*models.Claims, error) {
	const op = "service.auth.ValidateToken"

	claims, err := s.parseToken(accessToken, TokenKindAccess)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return claims, nil
}

// maybeRehashPassword прозрачно повышает cost-фактор хэша при входе.
// Ошибка апгрейда не мешает входу: пользователь уже аутентифицирован.
func (s *Service) maybeRehashPassword(ctx context.Context, user *models.User, password string) {
	const op = "service.auth.maybeRehashPassword"

	if !passwordNeedsRehash(user.PasswordHash, s.cfg.BcryptCost) {
		return
	}

	lg := log.From(ctx)

	newHash, err := hashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		lg.Warn("password_rehash_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(user.Email)),
			slog.String("err", err.Error()),
		)
		return
	}

	if err := s.storage.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		lg.Warn("password_rehash_store_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(user.Email)),
			slog.String("err", err.Error()),
		)
		return
	}

	user.PasswordHash = newHash
}

// issueTokenPair выпускает новую пару access+refresh токенов.
// Если oldRefreshHash != "", атомарно отзывает старый refresh-токен.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, oldRefreshHash string) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	now := time.Now().UTC()

	accessToken, err := s.generateToken(ctx, user, TokenKindAccess, s.cfg.AccessTokenTTL, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if oldRefreshHash != "" {
		revoked, err := s.storage.RevokeRefreshToken(ctx, oldRefreshHash)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if !revoked {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}
	}

	plain, err := s.issueRefreshToken(ctx, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}
