package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/axconkr/ai-marketplace/auth-service/internal/models"
	"github.com/axconkr/ai-marketplace/auth-service/internal/storage"
	"github.com/axconkr/ai-marketplace/auth-service/mocks"
)

func tokenTestUser() *models.User {
	return &models.User{
		ID:          uuid.New(),
		Email:       "user@example.com",
		DisplayName: "User",
		Role:        models.RoleBuyer,
	}
}

func TestGenerateAndParseToken_RoundTrip(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := tokenTestUser()
	now := time.Now().UTC()

	signed, err := svc.generateToken(context.Background(), user, TokenKindAccess, time.Minute, now)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := svc.parseToken(signed, TokenKindAccess)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, user.Email, claims.Email)
	require.Equal(t, user.Role, claims.Role)
	require.Equal(t, user.DisplayName, claims.Name)
}

func TestParseToken_Expired(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := tokenTestUser()
	// Выпущен час назад с минутным TTL — давно истёк.
	past := time.Now().Add(-time.Hour).UTC()

	signed, err := svc.generateToken(context.Background(), user, TokenKindAccess, time.Minute, past)
	require.NoError(t, err)

	_, err = svc.parseToken(signed, TokenKindAccess)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseToken_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := tokenTestUser()
	now := time.Now().UTC()

	// exp секунду в прошлом: токен уже недействителен.
	signed, err := svc.generateToken(context.Background(), user, TokenKindAccess, time.Minute, now.Add(-time.Minute-time.Second))
	require.NoError(t, err)

	_, err = svc.parseToken(signed, TokenKindAccess)
	require.ErrorIs(t, err, ErrTokenExpired)

	// exp секунду в будущем: токен ещё действителен.
	signed, err = svc.generateToken(context.Background(), user, TokenKindAccess, time.Minute, now.Add(-time.Minute+time.Second))
	require.NoError(t, err)

	claims, err := svc.parseToken(signed, TokenKindAccess)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	otherCfg := testCfg()
	otherCfg.JWTSecret = "different-secret"
	other, err := New(nil, otherCfg)
	require.NoError(t, err)

	signed, err := other.generateToken(context.Background(), tokenTestUser(), TokenKindAccess, time.Minute, time.Now().UTC())
	require.NoError(t, err)

	_, err = svc.parseToken(signed, TokenKindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_KindMismatch(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	signed, err := svc.generateToken(context.Background(), tokenTestUser(), TokenKindRefresh, time.Minute, time.Now().UTC())
	require.NoError(t, err)

	_, err = svc.parseToken(signed, TokenKindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_WrongIssuer(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	otherCfg := testCfg()
	otherCfg.Issuer = "rogue-service"
	other, err := New(nil, otherCfg)
	require.NoError(t, err)

	signed, err := other.generateToken(context.Background(), tokenTestUser(), TokenKindAccess, time.Minute, time.Now().UTC())
	require.NoError(t, err)

	_, err = svc.parseToken(signed, TokenKindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Malformed(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	for _, raw := range []string{"", "abc", "a.b.c", "Bearer x"} {
		_, err := svc.parseToken(raw, TokenKindAccess)
		require.ErrorIs(t, err, ErrInvalidToken, "token %q", raw)
	}
}

func TestHashToken_DeterministicAndOpaque(t *testing.T) {
	t.Parallel()

	h1 := hashToken("refresh-token-plain")
	h2 := hashToken("refresh-token-plain")
	h3 := hashToken("refresh-token-other")

	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
	require.NotContains(t, h1, "refresh-token")
}

func TestIssueRefreshToken_RetriesOnCollision(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := tokenTestUser()

	// Первая попытка ловит коллизию хэша, вторая проходит.
	gomock.InOrder(
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists),
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil),
	)

	plain, err := svc.issueRefreshToken(context.Background(), user, time.Now().UTC())
	require.NoError(t, err)
	require.NotEmpty(t, plain)
}

func TestIssueRefreshToken_CollisionBudgetExceeded(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
		Return(storage.ErrAlreadyExists).Times(5)

	_, err := svc.issueRefreshToken(context.Background(), tokenTestUser(), time.Now().UTC())
	require.ErrorIs(t, err, ErrRefreshTokenCollision)
}

func TestIssueRefreshToken_StoresHashNotPlaintext(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	svc, err := New(st, testCfg())
	require.NoError(t, err)

	user := tokenTestUser()
	now := time.Now().UTC()

	var saved *models.RefreshToken
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tok *models.RefreshToken) error {
			saved = tok
			return nil
		})

	plain, err := svc.issueRefreshToken(context.Background(), user, now)
	require.NoError(t, err)

	require.NotNil(t, saved)
	require.NotEqual(t, plain, saved.RefreshTokenHash)
	require.Equal(t, hashToken(plain), saved.RefreshTokenHash)
	require.Equal(t, user.ID, saved.UserID)
	require.WithinDuration(t, now.Add(svc.cfg.RefreshTokenTTL), saved.ExpiresAt, time.Second)
	require.False(t, saved.Revoked)
}
