package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/enterprise/aml-screening/configs"
	"github.com/enterprise/aml-screening/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(configs.JWTConfig{Secret: "s3cret", Expiration: time.Hour})
	id := uuid.New()

	token, err := m.GenerateToken(id, "analyst@bank.test", models.RoleAnalyst)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.AnalystID)
	assert.Equal(t, "analyst@bank.test", claims.Email)
	assert.Equal(t, models.RoleAnalyst, claims.Role)
}

func TestJWTManager_RejectsForeignSecret(t *testing.T) {
	issued := NewJWTManager(configs.JWTConfig{Secret: "one"})
	token, err := issued.GenerateToken(uuid.New(), "a@b.test", models.RoleAdmin)
	require.NoError(t, err)

	_, err = NewJWTManager(configs.JWTConfig{Secret: "two"}).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager(configs.JWTConfig{Secret: "s3cret"})
	claims := &Claims{
		AnalystID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("Sup3rSecret")
	require.NoError(t, err)
	assert.True(t, h.Verify("Sup3rSecret", hash))
	assert.False(t, h.Verify("sup3rsecret", hash))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	_, err = h.Hash("weak")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, DefaultCost, NewPasswordHasher(0).cost)
	assert.Equal(t, bcrypt.MinCost, NewPasswordHasher(1).cost)
	assert.Equal(t, bcrypt.MaxCost, NewPasswordHasher(99).cost)
}

func TestCheckPasswordPolicy(t *testing.T) {
	assert.NoError(t, CheckPasswordPolicy("Sup3rSecret"))

	for password, reason := range map[string]string{
		"Short1A":                 "at least 8 characters",
		"alllowercase1":           "mix upper and lower case",
		"NoDigitsHere":            "include a digit",
		strings.Repeat("Aa1", 25): "at most 72 bytes",
	} {
		err := CheckPasswordPolicy(password)
		require.ErrorIs(t, err, ErrWeakPassword, password)
		assert.Contains(t, err.Error(), reason)
	}
}

func newProtectedRouter(m *JWTManager, roles ...string) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(m)}
	if len(roles) > 0 {
		handlers = append(handlers, RoleMiddleware(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		id, _ := GetAnalystIDFromContext(c)
		c.String(http.StatusOK, id.String())
	})
	r.GET("/protected", handlers...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	m := NewJWTManager(configs.JWTConfig{Secret: "s3cret"})
	id := uuid.New()
	analystToken, err := m.GenerateToken(id, "a@b.test", models.RoleAnalyst)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		roles  []string
		want   int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", nil, http.StatusUnauthorized},
		{"garbage token", "Bearer abc", nil, http.StatusUnauthorized},
		{"valid token", "Bearer " + analystToken, nil, http.StatusOK},
		{"role allowed", "Bearer " + analystToken, []string{models.RoleAnalyst, models.RoleAdmin}, http.StatusOK},
		{"role denied", "Bearer " + analystToken, []string{models.RoleAdmin}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set(AuthorizationHeader, tt.header)
			}
			w := httptest.NewRecorder()
			newProtectedRouter(m, tt.roles...).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, id.String(), w.Body.String())
			}
		})
	}
}
