package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/axconkr/ai-marketplace/auth-service/internal/models"
	"github.com/axconkr/ai-marketplace/auth-service/internal/pkg/log"
	"github.com/axconkr/ai-marketplace/auth-service/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind — дискриминатор назначения токена. Refresh-токен, предъявленный
// там, где ждут access (и наоборот), невалиден: refresh нельзя использовать
// как bearer-учётку для защищённых ресурсов.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

type tokenClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Name   string `json:"name,omitempty"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// generateToken выпускает подписанный токен заданного kind с абсолютным
// сроком действия. jti случайный: два токена одного пользователя в одну
// секунду не совпадают.
func (s *Service) generateToken(ctx context.Context, user *models.User, kind TokenKind, ttl time.Duration, now time.Time) (string, error) {
	const op = "service.token.generateToken"

	lg := log.From(ctx)

	claims := tokenClaims{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role.String(),
		Name:   user.DisplayName,
		Kind:   string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		lg.Error("token_sign_failed",
			slog.String("op", op),
			slog.String("kind", string(kind)),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// parseToken валидирует подпись/срок/issuer/audience и kind токена.
// Просроченный токен — ErrTokenExpired; всё остальное (битая структура,
// чужой секрет, неожиданный kind, неизвестная роль) — ErrInvalidToken.
// Leeway не используется: выпуск и проверка происходят в одном процессе,
// расхождения часов между ними нет, и exp действует строго.
func (s *Service) parseToken(tokenStr string, kind TokenKind) (*models.Claims, error) {
	const op = "service.token.parseToken"

	token, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if claims.Kind != string(kind) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return &models.Claims{
		UserID: uid,
		Email:  claims.Email,
		Role:   role,
		Name:   claims.Name,
	}, nil
}

// hashToken — хэш предъявляемого токена для хранения/поиска (sha256 → base64url).
func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// issueRefreshToken выпускает refresh-токен и сохраняет его хэш в хранилище.
func (s *Service) issueRefreshToken(ctx context.Context, user *models.User, now time.Time) (string, error) {
	const (
		op          = "service.token.issueRefreshToken"
		maxAttempts = 5
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		plain, err := s.generateToken(ctx, user, TokenKindRefresh, s.cfg.RefreshTokenTTL, now)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		token := &models.RefreshToken{
			RefreshTokenHash: hashToken(plain),
			UserID:           user.ID,
			CreatedAt:        now,
			ExpiresAt:        now.Add(s.cfg.RefreshTokenTTL),
			Revoked:          false,
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		return plain, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// validateRefreshSession проверяет серверное состояние refresh-сессии по хэшу.
// Просроченная запись удаляется как побочный эффект обнаружения.
func (s *Service) validateRefreshSession(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "service.token.validateRefreshSession"

	lg := log.From(ctx)

	token, err := s.storage.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if token.Revoked {
		lg.Warn("refresh_revoked",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	if time.Now().UTC().After(token.ExpiresAt) {
		lg.Warn("refresh_session_expired",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)

		// Ленивая очистка: stale-запись больше никому не нужна.
		if err := s.storage.DeleteRefreshToken(ctx, hash); err != nil {
			lg.Error("refresh_lazy_cleanup_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrSessionExpired)
	}

	return token, nil
}
