package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/enterprise/aml-screening/configs"
)

const issuer = "aml-screening"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims identifies the analyst a token was issued to
type Claims struct {
	AnalystID uuid.UUID `json:"analyst_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates HS256 analyst tokens
type JWTManager struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg configs.JWTConfig) *JWTManager {
	expiration := cfg.Expiration
	if expiration <= 0 {
		expiration = 12 * time.Hour
	}
	return &JWTManager{
		secret:     []byte(cfg.Secret),
		expiration: expiration,
	}
}

// Expiration returns the lifetime of issued tokens
func (m *JWTManager) Expiration() time.Duration {
	return m.expiration
}

// GenerateToken signs a token for the analyst
func (m *JWTManager) GenerateToken(analystID uuid.UUID, email, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		AnalystID: analystID,
		Email:     email,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   analystID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ValidateToken parses a token and returns its claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}
