package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/axconkr/ai-marketplace/auth-service/internal/models"
	"github.com/axconkr/ai-marketplace/auth-service/internal/transport/http/httperr"
)

// TokenVerifier проверяет подпись/срок access-токена и возвращает claims.
// Реализуется сервисом аутентификации.
type TokenVerifier interface {
	ValidateToken(ctx context.Context, accessToken string) (*models.Claims, error)
}

// AccessTokenCookie — каноническое имя cookie с access-токеном.
// Едино для всех обработчиков: исторический разнобой имён ломал логаут.
const AccessTokenCookie = "access_token"

type ctxKey int

const ctxClaims ctxKey = iota

// ClaimsFrom возвращает claims текущего запроса.
// ok == false, если запрос прошёл без аутентификации (OptionalAuth).
func ClaimsFrom(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(ctxClaims).(*models.Claims)
	return claims, ok
}

// RequireAuth пропускает запрос только с валидным access-токеном.
// Токен ищется сначала в cookie, затем в Authorization: Bearer.
// Любой дефект токена (нет, просрочен, битая подпись) -> единый 401.
func RequireAuth(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(v, r)
			if !ok {
				httperr.WriteUnauthorized(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole — RequireAuth плюс проверка роли из claims.
// Порядок строгий: сначала подлинность (401), потом права (403) —
// невалидный токен никогда не даёт 403.
func RequireRole(v TokenVerifier, roles ...models.Role) Middleware {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(v, r)
			if !ok {
				httperr.WriteUnauthorized(w, r)
				return
			}

			if _, ok := allowed[claims.Role]; !ok {
				httperr.WriteForbidden(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth кладёт claims в контекст, если валидный токен есть,
// и молча пропускает запрос дальше, если нет. Невалидный токен
// эквивалентен его отсутствию — для публичных страниц с персонализацией.
func OptionalAuth(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, ok := authenticate(v, r); ok {
				r = r.WithContext(context.WithValue(r.Context(), ctxClaims, claims))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(v TokenVerifier, r *http.Request) (*models.Claims, bool) {
	token := extractToken(r)
	if token == "" {
		return nil, false
	}

	claims, err := v.ValidateToken(r.Context(), token)
	if err != nil {
		return nil, false
	}

	return claims, true
}

// extractToken достаёт access-токен из запроса: cookie в приоритете,
// затем Authorization: Bearer (для API-клиентов без cookie).
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) && len(auth) > len(prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}

	return ""
}
