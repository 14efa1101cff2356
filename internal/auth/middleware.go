package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	AnalystIDKey        = "analyst_id"
	AnalystEmailKey     = "analyst_email"
	AnalystRoleKey      = "analyst_role"
)

// AuthMiddleware rejects requests without a valid analyst token
func AuthMiddleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid authorization header format",
			})
			return
		}

		claims, err := jwtManager.ValidateToken(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			message := "invalid token"
			if errors.Is(err, ErrExpiredToken) {
				message = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": message,
			})
			return
		}

		c.Set(AnalystIDKey, claims.AnalystID)
		c.Set(AnalystEmailKey, claims.Email)
		c.Set(AnalystRoleKey, claims.Role)

		c.Next()
	}
}

// RoleMiddleware only lets the listed roles through
func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetAnalystRoleFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "role not found in context",
			})
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "insufficient permissions",
		})
	}
}

// GetAnalystIDFromContext extracts the analyst ID set by AuthMiddleware
func GetAnalystIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(AnalystIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetAnalystEmailFromContext extracts the analyst email set by AuthMiddleware
func GetAnalystEmailFromContext(c *gin.Context) (string, bool) {
	v, exists := c.Get(AnalystEmailKey)
	if !exists {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}

// GetAnalystRoleFromContext extracts the analyst role set by AuthMiddleware
func GetAnalystRoleFromContext(c *gin.Context) (string, bool) {
	v, exists := c.Get(AnalystRoleKey)
	if !exists {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
