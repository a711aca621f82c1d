// httperr стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает доменную ошибку сервиса, а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Таблица маппинга:
//   - ErrInvalidEmail/ErrWeakPassword/ErrEmptyPassword/ErrInvalidRole -> 400
//   - ErrInvalidCredentials/ErrInvalidToken/ErrTokenExpired/ErrTokenRevoked/
//     ErrSessionNotFound/ErrSessionExpired -> 401 (наружу неразличимы,
//     в логах — различимы)
//   - ErrForbidden -> 403
//   - ErrEmailTaken -> 409
//   - прочее -> 500/internal без деталей внутренних ошибок
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/axconkr/ai-marketplace/auth-service/internal/service"
)

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и унифицированный ответ.
// err == nil — это программная ошибка вызова: возвращаем 500/internal, чтобы
// не послать "200 OK" с телом ошибки и не маскировать баг.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return http.StatusInternalServerError, envelope("internal", "internal error")
	}

	switch {
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword),
		errors.Is(err, service.ErrInvalidRole):
		return http.StatusBadRequest, envelope("invalid_argument", "invalid argument")

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenRevoked),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized, envelope("unauthenticated", "unauthenticated")

	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, envelope("permission_denied", "permission denied")

	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, envelope("already_exists", "already exists")

	default:
		return http.StatusInternalServerError, envelope("internal", "internal error")
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)
	write(w, r, status, resp)
}

// WriteInvalidArgument — локальная ошибка парсинга входных данных -> 400.
func WriteInvalidArgument(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusBadRequest, envelope("invalid_argument", "invalid argument"))
}

// WriteUnauthorized — нет/невалидный bearer-токен -> 401.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusUnauthorized, envelope("unauthenticated", "unauthenticated"))
}

// WriteForbidden — подлинность есть, прав нет -> 403.
func WriteForbidden(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusForbidden, envelope("permission_denied", "permission denied"))
}

// WriteRateLimited — бюджет попыток исчерпан -> 429 c Retry-After
// как подсказкой клиенту для backoff.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, resetAt time.Time) {
	retry := time.Until(resetAt).Round(time.Second)
	if retry < time.Second {
		retry = time.Second
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))

	write(w, r, http.StatusTooManyRequests, envelope("rate_limited", "too many attempts"))
}

func envelope(code, msg string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

func write(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
