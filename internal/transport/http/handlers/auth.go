package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/axconkr/ai-marketplace/auth-service/internal/models"
	"github.com/axconkr/ai-marketplace/auth-service/internal/pkg/log"
	"github.com/axconkr/ai-marketplace/auth-service/internal/ratelimit"
	"github.com/axconkr/ai-marketplace/auth-service/internal/service"
	"github.com/axconkr/ai-marketplace/auth-service/internal/transport/http/httperr"
	"github.com/axconkr/ai-marketplace/auth-service/internal/transport/http/middleware"
)

// RefreshTokenCookie — каноническое имя cookie с refresh-токеном.
const RefreshTokenCookie = "refresh_token"

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name,omitempty"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// meResponse строится из claims токена; в них нет email_verified,
// поэтому у ответа /auth/me этого поля нет вовсе — лучше, чем врать "false".
type meResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
}

type authResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    int64        `json:"expires_at"`
	User         userResponse `json:"user"`
}

// RegisterUser — POST /auth/register.
// Лимитируется по IP: регистрация дешёвая для клиента и дорогая для нас (bcrypt).
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	if limited, resetAt := h.allow(r, h.registerLimit, "register:"+clientIP(r)); limited {
		httperr.WriteRateLimited(w, r, resetAt)
		return
	}

	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteInvalidArgument(w, r)
		return
	}

	pair, user, err := h.auth.RegisterUser(r.Context(), service.RegisterParams{
		Email:       in.Email,
		Password:    in.Password,
		DisplayName: in.DisplayName,
		Role:        in.Role,
	})
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	h.setAuthCookies(w, pair)
	writeJSON(w, http.StatusCreated, toAuthResponse(pair, user))
}

// LoginUser — POST /auth/login.
// Бюджет попыток считается до проверки пароля: неудачные попытки жгут бюджет,
// успешный вход сбрасывает счётчик.
func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	key := "login:" + clientIP(r)

	if limited, resetAt := h.allow(r, h.loginLimit, key); limited {
		httperr.WriteRateLimited(w, r, resetAt)
		return
	}

	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteInvalidArgument(w, r)
		return
	}

	pair, user, err := h.auth.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	// Легитимного пользователя не штрафуем за прежние неудачи.
	if err := h.loginLimit.Reset(r.Context(), key); err != nil {
		log.From(r.Context()).Warn("rate limit reset failed",
			slog.String("op", "handlers.LoginUser"),
			slog.String("err", err.Error()))
	}

	h.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, toAuthResponse(pair, user))
}

// RefreshToken — POST /auth/refresh.
// Refresh-токен берётся из cookie, для API-клиентов — из тела запроса.
// Старая сессия отзывается, выдаётся новая пара (ротация).
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := h.refreshTokenFrom(r)
	if token == "" {
		httperr.WriteUnauthorized(w, r)
		return
	}

	pair, user, err := h.auth.RefreshToken(r.Context(), token)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	h.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, toAuthResponse(pair, user))
}

// Logout — POST /auth/logout.
// Идемпотентен: отзыв уже отозванной/чужой/несуществующей сессии — это 204,
// а не ошибка. Cookie чистятся всегда.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.refreshTokenFrom(r); token != "" {
		if err := h.auth.RevokeToken(r.Context(), token); err != nil {
			h.clearAuthCookies(w)
			httperr.WriteError(w, r, err)
			return
		}
	}

	h.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll — POST /auth/logout_all (RequireAuth).
// Отзывает все refresh-сессии текущего пользователя.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		httperr.WriteUnauthorized(w, r)
		return
	}

	if err := h.auth.RevokeAllTokens(r.Context(), claims.UserID); err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	h.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me — GET /auth/me (RequireAuth).
// Отдаёт identity текущего запроса из проверенных claims, без похода в БД.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		httperr.WriteUnauthorized(w, r)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:          claims.UserID.String(),
		Email:       claims.Email,
		DisplayName: claims.Name,
		Role:        claims.Role.String(),
	})
}

// AdminLogoutUser — POST /auth/admin/users/{id}/logout (RequireRole admin).
// Принудительно завершает все сессии указанного пользователя.
func (h *Handlers) AdminLogoutUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.WriteInvalidArgument(w, r)
		return
	}

	if err := h.auth.RevokeAllTokens(r.Context(), userID); err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// allow спрашивает лимитер; ошибки бэкенда трактуются как fail-open:
// лимитер смягчает перебор, но недоступный Redis не должен ронять логин.
func (h *Handlers) allow(r *http.Request, limiter ratelimit.Limiter, key string) (bool, time.Time) {
	res, err := limiter.Check(r.Context(), key)
	if err != nil {
		log.From(r.Context()).Warn("rate limit check failed, allowing request",
			slog.String("key", key),
			slog.String("err", err.Error()))
		return false, time.Time{}
	}

	return res.Limited, res.ResetAt
}

// refreshTokenFrom достаёт refresh-токен: cookie в приоритете, затем тело.
func (h *Handlers) refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(RefreshTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	var in refreshRequest
	if err := decodeStrict(r, &in); err == nil {
		return in.RefreshToken
	}

	return ""
}

// setAuthCookies выставляет HttpOnly-cookie с токенами.
// Access-cookie живёт до истечения токена, refresh — весь свой TTL.
func (h *Handlers) setAuthCookies(w http.ResponseWriter, pair *models.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     h.refreshPath,
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     h.refreshPath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func toAuthResponse(pair *models.TokenPair, user *models.User) authResponse {
	return authResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt.Unix(),
		User: userResponse{
			ID:            user.ID.String(),
			Email:         user.Email,
			DisplayName:   user.DisplayName,
			Role:          user.Role.String(),
			EmailVerified: user.EmailVerified,
		},
	}
}
