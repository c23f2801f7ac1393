package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vemfalar/agenda-api/internal/models"
	"github.com/vemfalar/agenda-api/pkg/config"
	appErrors "github.com/vemfalar/agenda-api/pkg/errors"
)

// AuthService validates bearer tokens issued by the identity product. The
// scheduling engine never authenticates users itself; it only verifies the
// signature and extracts the actor.
type AuthService struct {
	cfg config.JWTConfig
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{cfg: cfg}
}

// ValidateToken parses and verifies a signed token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	if claims.UserID == "" || claims.Role == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token is missing identity claims")
	}
	return claims, nil
}

// GenerateToken issues a signed token for the given identity. Used by
// development tooling and tests; production tokens come from the identity
// product sharing the same secret.
func (s *AuthService) GenerateToken(userID, fullName string, role models.UserRole) (string, error) {
	now := time.Now()
	claims := &models.JWTClaims{
		UserID:   userID,
		FullName: fullName,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Expiration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}
