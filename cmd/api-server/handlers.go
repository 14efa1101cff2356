package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/enterprise/aml-screening/configs"
	"github.com/enterprise/aml-screening/internal/auth"
	"github.com/enterprise/aml-screening/internal/enrichment"
	"github.com/enterprise/aml-screening/internal/ingestion"
	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/repositories"
	"github.com/enterprise/aml-screening/internal/scoring"
	"github.com/enterprise/aml-screening/internal/services"
)

func newRouter(cfg configs.ServerConfig, a *app) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())
	if cfg.RateLimit > 0 {
		router.Use(rateLimitMiddleware(NewRateLimiter(cfg.RateLimit, cfg.RateBurst)))
	}

	router.GET("/health", healthHandler(a))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", loginHandler(a.authService))

	protected := v1.Group("")
	protected.Use(auth.AuthMiddleware(a.jwtManager))

	analysts := protected.Group("/analysts")
	analysts.Use(auth.RoleMiddleware(models.RoleAdmin))
	{
		analysts.POST("", createAnalystHandler(a.authService))
	}

	screening := protected.Group("/screening")
	{
		screening.POST("/run", runScreeningHandler(a))
		screening.POST("/backtest", runBacktestHandler(a.backtest))
	}

	transactions := protected.Group("/transactions")
	{
		transactions.GET("", listTransactionsHandler(a.transactions))
		transactions.POST("", ingestTransactionHandler(a.ingestion))
		transactions.POST("/batch", ingestBatchHandler(a.ingestion))
		transactions.GET("/:id/preview", previewTransactionHandler(a))
		transactions.GET("/:id/analysis", transactionAnalysisHandler(a))
	}

	enrich := protected.Group("/enrichment")
	{
		enrich.POST("/analyze", analyzeFlagHandler(a))
		enrich.POST("/pending", analyzePendingHandler(a))
	}

	flags := protected.Group("/flags")
	{
		flags.GET("", listFlagsHandler(a.flags))
		flags.GET("/:id", getFlagHandler(a.flags))
		flags.POST("/:id/review", reviewFlagHandler(a.reviews))
	}

	protected.GET("/customers", listCustomersHandler(a.customers))
	protected.GET("/rules", listRulesHandler(a.engine))
	protected.GET("/summary", summaryHandler(a))
	protected.GET("/audit-logs", auditLogsHandler(a))

	flagEvents := protected.Group("/events")
	{
		flagEvents.GET("/recent", recentEventsHandler(a))
		flagEvents.GET("/counters", eventCountersHandler(a))
	}

	return router
}

// errorStatus maps service errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrInvalidTransaction),
		errors.Is(err, services.ErrInvalidVerdict),
		errors.Is(err, services.ErrWeakPassword),
		errors.Is(err, services.ErrInvalidRole),
		errors.Is(err, scoring.ErrInvalidRange),
		errors.Is(err, repositories.ErrDuplicateReference):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrAnalystExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

func healthHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		status, health, database := http.StatusOK, "healthy", "up"
		if err := a.db.HealthCheck(ctx); err != nil {
			status, health, database = http.StatusServiceUnavailable, "degraded", "down"
		}

		cache := "disabled"
		if a.cache != nil {
			cache = "up"
			if err := a.cache.Ping(ctx); err != nil {
				cache = "down"
			}
		}

		body := gin.H{
			"status":             health,
			"database":           database,
			"cache":              cache,
			"enrichment_enabled": a.orchestrator.EnrichmentEnabled(),
			"timestamp":          time.Now().Format(time.RFC3339),
		}
		if stats := a.db.Stats(); stats != nil {
			body["db_pool"] = gin.H{
				"total_conns":    stats.TotalConns(),
				"idle_conns":     stats.IdleConns(),
				"acquired_conns": stats.AcquiredConns(),
			}
		}
		c.JSON(status, body)
	}
}

func loginHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func createAnalystHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateAnalystRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.CreateAnalyst(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func runScreeningHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			TransactionID string `json:"transaction_id"`
			RunEnrichment bool   `json:"run_enrichment"`
		}
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		req := scoring.RunRequest{RunEnrichment: body.RunEnrichment}
		if body.TransactionID != "" {
			id, err := uuid.Parse(body.TransactionID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction_id"})
				return
			}
			req.TransactionID = &id
		}

		result, err := a.orchestrator.Run(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		if result.ChangedFlags() {
			a.analytics.InvalidateSummary(c.Request.Context())
		}

		c.JSON(http.StatusOK, result)
	}
}

func runBacktestHandler(backtest *scoring.BacktestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req scoring.BacktestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if req.SampleSize == 0 {
			req.SampleSize = 100
		}
		if req.StartDate.IsZero() {
			req.StartDate = time.Now().AddDate(0, 0, -30)
		}

		result, err := backtest.RunBacktest(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func ingestTransactionHandler(svc *ingestion.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestion.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		screen := c.Query("screen") == "true"
		resp, err := svc.IngestTransaction(c.Request.Context(), &req, screen)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func ingestBatchHandler(svc *ingestion.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestion.BatchTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := svc.IngestBatch(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func previewTransactionHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		tx, err := a.transactions.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		findings := a.engine.Preview(c.Request.Context(), tx)
		c.JSON(http.StatusOK, gin.H{
			"transaction_id": tx.ID,
			"findings":       findings,
			"would_flag":     len(findings) > 0,
		})
	}
}

func transactionAnalysisHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		tx, err := a.transactions.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		flags, err := a.flags.ListByTransaction(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		page, err := a.auditLogger.Query(c.Request.Context(), models.AuditQuery{TransactionID: &id})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"transaction": tx,
			"flags":       flags,
			"audit_logs":  page.Logs,
		})
	}
}

func analyzeFlagHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.classifier == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "enrichment is not configured"})
			return
		}

		var body struct {
			TransactionID string `json:"transaction_id" binding:"required"`
			FlagID        string `json:"flag_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		txID, err := uuid.Parse(body.TransactionID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction_id"})
			return
		}
		flagID, err := uuid.Parse(body.FlagID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flag_id"})
			return
		}

		result, err := a.classifier.Analyze(c.Request.Context(), txID, flagID)
		if err != nil {
			respondError(c, err)
			return
		}
		if result.Persisted() {
			a.analytics.InvalidateSummary(c.Request.Context())
		}

		status := http.StatusOK
		if result.Outcome == enrichment.OutcomeTransportError {
			status = http.StatusBadGateway
		}
		c.JSON(status, result)
	}
}

func analyzePendingHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.classifier == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "enrichment is not configured"})
			return
		}

		limit := getIntParam(c, "limit", 10)
		results, err := a.classifier.AnalyzePending(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}

		completed := 0
		for _, r := range results {
			if r.Outcome == enrichment.OutcomeCompleted {
				completed++
			}
		}
		if len(results) > 0 {
			a.analytics.InvalidateSummary(c.Request.Context())
		}

		c.JSON(http.StatusOK, gin.H{
			"results":   results,
			"analyzed":  len(results),
			"completed": completed,
			"failed":    len(results) - completed,
		})
	}
}

func listFlagsHandler(flags *repositories.FlagRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.FlagFilter{
			RiskLevel: c.Query("risk_level"),
			RuleName:  c.Query("rule_name"),
			Status:    c.Query("status"),
			Limit:     getIntParam(c, "limit", 50),
			Offset:    getOffsetParam(c),
		}

		list, total, err := flags.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"flags": list,
			"pagination": gin.H{
				"limit":  filter.Limit,
				"offset": filter.Offset,
				"total":  total,
			},
		})
	}
}

func listTransactionsHandler(transactions *repositories.TransactionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.TransactionFilter{
			TransactionType: c.Query("type"),
			Limit:           getIntParam(c, "limit", 50),
			Offset:          getOffsetParam(c),
		}
		var ok bool
		if filter.MinAmount, ok = decimalParam(c, "min_amount"); !ok {
			return
		}
		if filter.MaxAmount, ok = decimalParam(c, "max_amount"); !ok {
			return
		}

		list, total, err := transactions.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"transactions": list,
			"pagination": gin.H{
				"limit":  filter.Limit,
				"offset": filter.Offset,
				"total":  total,
			},
		})
	}
}

func listCustomersHandler(customers *repositories.CustomerRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.CustomerFilter{
			MinRiskScore: getIntParam(c, "risk_score", 0),
			CountryCode:  c.Query("country_code"),
			Limit:        getIntParam(c, "limit", 50),
			Offset:       getOffsetParam(c),
		}

		list, total, err := customers.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"customers": list,
			"pagination": gin.H{
				"limit":  filter.Limit,
				"offset": filter.Offset,
				"total":  total,
			},
		})
	}
}

func getFlagHandler(flags *repositories.FlagRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		flag, err := flags.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, flag)
	}
}

func reviewFlagHandler(reviews *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		var req services.ReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		reviewer, _ := auth.GetAnalystEmailFromContext(c)
		flag, err := reviews.ReviewFlag(c.Request.Context(), id, &req, reviewer)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, flag)
	}
}

func listRulesHandler(engine *scoring.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rules": engine.Rules()})
	}
}

func summaryHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := a.analytics.GetSummary(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func auditLogsHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := models.AuditQuery{
			Status: c.Query("status"),
			Limit:  getIntParam(c, "limit", 50),
			Offset: getOffsetParam(c),
		}
		if raw := c.Query("transaction_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction_id"})
				return
			}
			q.TransactionID = &id
		}

		page, err := a.auditLogger.Query(c.Request.Context(), q)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, page)
	}
}

// Helper functions

func uuidParam(c *gin.Context, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(key))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return uuid.Nil, false
	}
	return id, true
}

func getIntParam(c *gin.Context, key string, defaultValue int) int {
	if val := c.Query(key); val != "" {
		if result, err := strconv.Atoi(val); err == nil && result > 0 {
			return result
		}
	}
	return defaultValue
}

// decimalParam reads an optional amount query parameter, answering 400 when it does not parse
func decimalParam(c *gin.Context, key string) (*decimal.Decimal, bool) {
	val := c.Query(key)
	if val == "" {
		return nil, true
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return nil, false
	}
	return &d, true
}

func getOffsetParam(c *gin.Context) int {
	if val := c.Query("offset"); val != "" {
		if result, err := strconv.Atoi(val); err == nil && result >= 0 {
			return result
		}
	}
	return 0
}

func recentEventsHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.cache == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event cache is not available"})
			return
		}

		limit := min(getIntParam(c, "limit", 50), 1000)
		raw, err := a.cache.LRange(c.Request.Context(), a.redis.RecentEventsKey, 0, int64(limit-1))
		if err != nil {
			respondError(c, err)
			return
		}

		recent := make([]models.FlagEvent, 0, len(raw))
		for _, item := range raw {
			var event models.FlagEvent
			if err := json.Unmarshal([]byte(item), &event); err != nil {
				continue
			}
			recent = append(recent, event)
		}
		c.JSON(http.StatusOK, gin.H{"events": recent, "count": len(recent)})
	}
}

func eventCountersHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.cache == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event cache is not available"})
			return
		}

		raw, err := a.cache.HGetAll(c.Request.Context(), a.redis.CountersKey)
		if err != nil {
			respondError(c, err)
			return
		}

		counters := make(map[string]int64, len(raw))
		for field, value := range raw {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				continue
			}
			counters[field] = n
		}
		c.JSON(http.StatusOK, gin.H{"counters": counters})
	}
}
