package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/aml-screening/configs"
	"github.com/enterprise/aml-screening/internal/events"
	"github.com/enterprise/aml-screening/internal/ingestion"
	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/queue"
	"github.com/enterprise/aml-screening/internal/repositories"
	"github.com/enterprise/aml-screening/internal/scoring"
	"github.com/enterprise/aml-screening/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	mock   pgxmock.PgxPoolIface
	app    *app
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithCache(t, nil)
}

func newTestServerWithCache(t *testing.T, cacheClient *queue.CacheClient) *testServer {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	cfg := &configs.Config{
		Redis: configs.RedisConfig{RecentEventsKey: "recent", CountersKey: "counters"},
		JWT:   configs.JWTConfig{Secret: "test-secret", Expiration: time.Hour},
	}
	a := buildApp(cfg, repositories.NewDatabaseWithPool(mock), cacheClient, events.NoopPublisher{}, nil)
	return &testServer{router: newRouter(cfg.Server, a), mock: mock, app: a}
}

func (s *testServer) token(t *testing.T, role string) string {
	t.Helper()
	token, err := s.app.jwtManager.GenerateToken(uuid.New(), "analyst@bank.test", role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectPing()

	w := s.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "up", body["database"])
	assert.Equal(t, false, body["enrichment_enabled"])
	assert.Equal(t, "disabled", body["cache"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestHealth_DatabaseDown(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	w := s.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["database"])
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestRules_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/rules", "", "").Code)

	w := s.do(http.MethodGet, "/api/v1/rules", s.token(t, models.RoleAnalyst), "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rules []scoring.RuleInfo `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Rules, 10)
}

func TestLogin_UnknownAnalyst(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectQuery("FROM analysts").
		WithArgs("nobody@bank.test").
		WillReturnError(pgx.ErrNoRows)

	w := s.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"nobody@bank.test","password":"whatever"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestCreateAnalyst_AdminOnly(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/analysts", s.token(t, models.RoleAnalyst), `{"email":"x@bank.test","password":"Passw0rdX"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPreview_TransactionNotFound(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()
	s.mock.ExpectQuery("FROM transactions").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	w := s.do(http.MethodGet, fmt.Sprintf("/api/v1/transactions/%s/preview", id), s.token(t, models.RoleAnalyst), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestListTransactions_Filters(t *testing.T) {
	s := newTestServer(t)
	minAmount := decimal.NewFromInt(10000)

	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM transactions WHERE transaction_type = $1 AND amount >= $2")).
		WithArgs("withdrawal", minAmount).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	s.mock.ExpectQuery("ORDER BY transaction_date DESC").
		WithArgs("withdrawal", minAmount, 25, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	w := s.do(http.MethodGet, "/api/v1/transactions?type=withdrawal&min_amount=10000&limit=25", s.token(t, models.RoleAnalyst), "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Transactions []models.Transaction `json:"transactions"`
		Pagination   struct {
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotNil(t, body.Transactions)
	assert.Equal(t, 25, body.Pagination.Limit)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestListTransactions_InvalidAmount(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/transactions?max_amount=lots", s.token(t, models.RoleAnalyst), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestListCustomers_Filters(t *testing.T) {
	s := newTestServer(t)

	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM customers WHERE risk_score >= $1 AND country_code = $2")).
		WithArgs(4, "KP").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	s.mock.ExpectQuery("FROM customers").
		WithArgs(4, "KP", 50, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	w := s.do(http.MethodGet, "/api/v1/customers?risk_score=4&country_code=KP", s.token(t, models.RoleAnalyst), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":3`)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestGetFlag_InvalidID(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/flags/not-a-uuid", s.token(t, models.RoleAnalyst), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrichment_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, models.RoleAnalyst)

	w := s.do(http.MethodPost, "/api/v1/enrichment/analyze", token, `{"transaction_id":"`+uuid.NewString()+`","flag_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(http.MethodPost, "/api/v1/enrichment/pending", token, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestScreeningRun_InvalidTransactionID(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/screening/run", s.token(t, models.RoleAnalyst), `{"transaction_id":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{repositories.ErrTransactionNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", repositories.ErrFlagNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad amount", ingestion.ErrInvalidTransaction), http.StatusBadRequest},
		{services.ErrInvalidVerdict, http.StatusBadRequest},
		{scoring.ErrInvalidRange, http.StatusBadRequest},
		{repositories.ErrAnalystExists, http.StatusConflict},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "limits are per client")
}

func TestFlagEvents_RequireCache(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, models.RoleAnalyst)

	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/api/v1/events/recent", token, "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/api/v1/events/counters", token, "").Code)
}

func TestFlagEvents_FromCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cacheClient := queue.NewCacheClientFromRedis(client)

	ctx := context.Background()
	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, cacheClient.PushRecent(ctx, "recent", models.FlagEvent{Type: models.FlagEventCreated, FlagID: id}, 10))
	}
	_, err = cacheClient.HIncrBy(ctx, "counters", "type:flag.created", 3)
	require.NoError(t, err)

	s := newTestServerWithCache(t, cacheClient)
	token := s.token(t, models.RoleAnalyst)

	w := s.do(http.MethodGet, "/api/v1/events/recent?limit=2", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var recent struct {
		Events []models.FlagEvent `json:"events"`
		Count  int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recent))
	require.Equal(t, 2, recent.Count)
	assert.Equal(t, "f3", recent.Events[0].FlagID)

	w = s.do(http.MethodGet, "/api/v1/events/counters", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var counters struct {
		Counters map[string]int64 `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &counters))
	assert.Equal(t, int64(3), counters.Counters["type:flag.created"])

	s.mock.ExpectPing()
	w = s.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "up", health["cache"])
}
