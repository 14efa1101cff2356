package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise/aml-screening/internal/auth"
	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/repositories"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = auth.ErrWeakPassword
	ErrInvalidRole        = errors.New("role must be analyst or admin")
)

// AnalystStore persists analyst accounts
type AnalystStore interface {
	Create(ctx context.Context, a *models.Analyst) error
	GetByEmail(ctx context.Context, email string) (*models.Analyst, error)
}

// AuthService handles analyst authentication
type AuthService struct {
	analysts   AnalystStore
	jwtManager *auth.JWTManager
	passwords  *auth.PasswordHasher
}

// NewAuthService creates a new auth service
func NewAuthService(analysts AnalystStore, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		analysts:   analysts,
		jwtManager: jwtManager,
		passwords:  auth.NewPasswordHasher(auth.DefaultCost),
	}
}

// CreateAnalystRequest represents a request to create an analyst account
type CreateAnalystRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Token     string          `json:"token"`
	ExpiresIn int64           `json:"expires_in"`
	Analyst   AnalystResponse `json:"analyst"`
}

// AnalystResponse represents an analyst in responses
type AnalystResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
}

// CreateAnalyst registers a new analyst account
func (s *AuthService) CreateAnalyst(ctx context.Context, req *CreateAnalystRequest) (*AnalystResponse, error) {
	role := req.Role
	if role == "" {
		role = models.RoleAnalyst
	}
	if role != models.RoleAnalyst && role != models.RoleAdmin {
		return nil, ErrInvalidRole
	}

	hashed, err := s.passwords.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	analyst := &models.Analyst{
		Email:        req.Email,
		PasswordHash: hashed,
		Role:         role,
	}
	if err := s.analysts.Create(ctx, analyst); err != nil {
		if errors.Is(err, repositories.ErrAnalystExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create analyst: %w", err)
	}

	resp := toAnalystResponse(analyst)
	return &resp, nil
}

// Login authenticates an analyst and issues a token
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	analyst, err := s.analysts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrAnalystNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find analyst: %w", err)
	}

	if !s.passwords.Verify(req.Password, analyst.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtManager.GenerateToken(analyst.ID, analyst.Email, analyst.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.jwtManager.Expiration() / time.Second),
		Analyst:   toAnalystResponse(analyst),
	}, nil
}

func toAnalystResponse(a *models.Analyst) AnalystResponse {
	return AnalystResponse{
		ID:        a.ID,
		Email:     a.Email,
		Role:      a.Role,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}
