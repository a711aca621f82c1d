// handlers реализует REST-эндпойнты аутентификации поверх доменного сервиса.
//
// Слой отвечает за: парсинг/валидацию JSON, cookie с токенами, rate-limit
// чувствительных операций и маппинг доменных ошибок в HTTP (через httperr).
// Бизнес-логики здесь нет.
package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/axconkr/ai-marketplace/auth-service/internal/models"
	"github.com/axconkr/ai-marketplace/auth-service/internal/ratelimit"
	"github.com/axconkr/ai-marketplace/auth-service/internal/service"
)

// AuthService — контракт доменного сервиса, нужный HTTP-слою.
// Сужен до используемых операций, чтобы тесты могли подставить стаб.
type AuthService interface {
	RegisterUser(ctx context.Context, in service.RegisterParams) (*models.TokenPair, *models.User, error)
	LoginUser(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, *models.User, error)
	RevokeToken(ctx context.Context, refreshToken string) error
	RevokeAllTokens(ctx context.Context, userID uuid.UUID) error
	ValidateToken(ctx context.Context, accessToken string) (*models.Claims, error)
}

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	auth          AuthService
	loginLimit    ratelimit.Limiter
	registerLimit ratelimit.Limiter

	refreshTTL   time.Duration
	refreshPath  string
	secureCookie bool
}

// Options — параметры сборки хендлеров.
type Options struct {
	// RefreshTTL задаёт время жизни refresh-cookie (совпадает с TTL токена).
	RefreshTTL time.Duration
	// BasePath — префикс, под которым смонтирован роутер (например, "/api").
	// Должен совпадать с Options.BasePath роутера: от него зависит Path
	// refresh-cookie, иначе браузер не пришлёт её на <BasePath>/auth/refresh.
	BasePath string
	// SecureCookie включает флаг Secure у cookie (выключен только в dev без TLS).
	SecureCookie bool
}

func New(auth AuthService, loginLimit, registerLimit ratelimit.Limiter, opts Options) *Handlers {
	return &Handlers{
		auth:          auth,
		loginLimit:    loginLimit,
		registerLimit: registerLimit,
		refreshTTL:    opts.RefreshTTL,
		refreshPath:   strings.TrimSuffix(opts.BasePath, "/") + "/auth",
		secureCookie:  opts.SecureCookie,
	}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через httperr.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// clientIP выводит идентификатор клиента для rate-limit ключей.
// Сначала X-Forwarded-For (первый адрес в списке — исходный клиент),
// затем RemoteAddr. Это эвристика за доверенным прокси, не строгая identity.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			xff = xff[:idx]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
