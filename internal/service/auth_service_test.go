package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vemfalar/agenda-api/internal/models"
	"github.com/vemfalar/agenda-api/pkg/config"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

func TestAuthServiceTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour})

	token, err := svc.GenerateToken("user-1", "Maria Silva", models.RoleStudent)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "Maria Silva", claims.FullName)
	require.Equal(t, models.RoleStudent, claims.Role)

	actor := claims.Actor()
	require.NotNil(t, actor)
	require.Equal(t, "user-1", actor.ID)
}

func TestAuthServiceRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService(config.JWTConfig{Secret: "issuer-secret", Expiration: time.Hour})
	verifier := NewAuthService(config.JWTConfig{Secret: "other-secret", Expiration: time.Hour})

	token, err := issuer.GenerateToken("user-1", "Maria Silva", models.RoleStudent)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "test-secret", Expiration: -time.Minute})

	token, err := svc.GenerateToken("user-1", "Maria Silva", models.RoleStudent)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}

func TestAuthServiceRejectsGarbage(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour})

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
