package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/axconkr/ai-marketplace/auth-service/internal/models"
	"github.com/axconkr/ai-marketplace/auth-service/internal/ratelimit"
	"github.com/axconkr/ai-marketplace/auth-service/internal/service"
	"github.com/axconkr/ai-marketplace/auth-service/internal/transport/http/handlers"
)

// routerStub реализует и handlers.AuthService, и middleware.TokenVerifier.
type routerStub struct {
	claims *models.Claims
}

func (s *routerStub) RegisterUser(context.Context, service.RegisterParams) (*models.TokenPair, *models.User, error) {
	return nil, nil, service.ErrEmailTaken
}

func (s *routerStub) LoginUser(context.Context, string, string) (*models.TokenPair, *models.User, error) {
	return nil, nil, service.ErrInvalidCredentials
}

func (s *routerStub) RefreshToken(context.Context, string) (*models.TokenPair, *models.User, error) {
	return nil, nil, service.ErrSessionNotFound
}

func (s *routerStub) RevokeToken(context.Context, string) error { return nil }

func (s *routerStub) RevokeAllTokens(context.Context, uuid.UUID) error { return nil }

func (s *routerStub) ValidateToken(_ context.Context, token string) (*models.Claims, error) {
	if token == "valid-token" && s.claims != nil {
		return s.claims, nil
	}
	return nil, service.ErrInvalidToken
}

func newTestRouter(role models.Role) http.Handler {
	stub := &routerStub{claims: &models.Claims{
		UserID: uuid.New(),
		Email:  "user@example.com",
		Role:   role,
	}}

	h := handlers.New(stub,
		ratelimit.NewMemoryLimiter(5, time.Minute),
		ratelimit.NewMemoryLimiter(3, time.Hour),
		handlers.Options{RefreshTTL: 720 * time.Hour},
	)

	return NewRouter(h, stub, Options{Timeout: time.Second})
}

func TestRouter_ProtectedRoutes_RequireToken(t *testing.T) {
	router := newTestRouter(models.RoleBuyer)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/auth/logout_all"},
		{http.MethodPost, "/auth/admin/users/" + uuid.NewString() + "/logout"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouter_Me_WithBearer(t *testing.T) {
	router := newTestRouter(models.RoleSeller)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "user@example.com", body["email"])
	require.Equal(t, "seller", body["role"])
	// В claims нет email_verified — ответ не должен придумывать значение.
	require.NotContains(t, body, "email_verified")
}

func TestRouter_AdminRoute_ForbiddenForBuyer(t *testing.T) {
	router := newTestRouter(models.RoleBuyer)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/admin/users/"+uuid.NewString()+"/logout", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouter_AdminRoute_OKForAdmin(t *testing.T) {
	router := newTestRouter(models.RoleAdmin)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/admin/users/"+uuid.NewString()+"/logout", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRouter_BasePath(t *testing.T) {
	stub := &routerStub{}
	h := handlers.New(stub,
		ratelimit.NewMemoryLimiter(5, time.Minute),
		ratelimit.NewMemoryLimiter(3, time.Hour),
		handlers.Options{RefreshTTL: 720 * time.Hour, BasePath: "/api"},
	)
	router := NewRouter(h, stub, Options{BasePath: "/api"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
