package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Analyst represents a compliance analyst who can review flags
type Analyst struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Analyst roles
const (
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// Customer represents an account holder. Read-only to the screening core.
type Customer struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	AccountNumber string          `json:"account_number"`
	AccountType   string          `json:"account_type"` // checking, savings, business
	Balance       decimal.Decimal `json:"balance"`
	RiskScore     int             `json:"risk_score"` // 1-5
	IsSanctioned  bool            `json:"is_sanctioned"`
	CountryCode   string          `json:"country_code"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SanctionedEntity is a watch-list entry
type SanctionedEntity struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	EntityType       string    `json:"entity_type"` // individual, organization
	CountryCode      string    `json:"country_code"`
	SanctionsProgram string    `json:"sanctions_program"`
}

// Transaction represents a financial transaction
type Transaction struct {
	ID                  uuid.UUID       `json:"id"`
	SenderID            uuid.UUID       `json:"sender_id"`
	ReceiverID          *uuid.UUID      `json:"receiver_id,omitempty"`
	TransactionType     string          `json:"transaction_type"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Description         string          `json:"description"`
	Channel             string          `json:"channel"`
	CounterpartyName    string          `json:"counterparty_name"`
	CounterpartyAccount string          `json:"counterparty_account"`
	CounterpartyCountry string          `json:"counterparty_country"`
	TransactionDate     time.Time       `json:"transaction_date"`
	ReferenceNumber     string          `json:"reference_number"`
	Status              string          `json:"status"`
	IPAddress           string          `json:"ip_address"`
	LocationLat         *float64        `json:"location_lat,omitempty"`
	LocationLng         *float64        `json:"location_lng,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// TransactionType enum values
const (
	TransactionTypeTransfer   = "transfer"
	TransactionTypeWithdrawal = "withdrawal"
	TransactionTypeDeposit    = "deposit"
	TransactionTypePayment    = "payment"
)

// TransactionStatus enum values
const (
	TransactionStatusCompleted = "completed"
	TransactionStatusPending   = "pending"
	TransactionStatusFailed    = "failed"
)

// HistoryQuery selects a sender's other transactions within a time window.
// From is inclusive; To is exclusive unless InclusiveTo is set.
type HistoryQuery struct {
	SenderID    uuid.UUID
	ExcludeID   uuid.UUID
	From        time.Time
	To          time.Time
	InclusiveTo bool
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
}

// Flag records that a rule fired for a transaction
type Flag struct {
	ID              uuid.UUID   `json:"id"`
	TransactionID   uuid.UUID   `json:"transaction_id"`
	RuleName        string      `json:"rule_name"`
	RuleDescription string      `json:"rule_description"`
	RiskLevel       string      `json:"risk_level"`
	RiskScore       int         `json:"risk_score"`
	Status          string      `json:"status"`
	FlaggedBy       string      `json:"flagged_by"`
	FlaggedAt       time.Time   `json:"flagged_at"`
	Enrichment      *Enrichment `json:"enrichment,omitempty"`
	Review          *Review     `json:"review,omitempty"`
}

// Enrichment is the AI assessment attached to a flag
type Enrichment struct {
	RiskLevel       string    `json:"risk_level"`
	Explanation     string    `json:"explanation"`
	SuggestedAction string    `json:"suggested_action"`
	ConfidenceScore float64   `json:"confidence_score"`
	RiskFactors     []string  `json:"risk_factors"`
	ComplianceNotes string    `json:"compliance_notes,omitempty"`
	Model           string    `json:"model"`
	Outcome         string    `json:"outcome"` // completed, fallback
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// Review is an analyst's disposition of a flag
type Review struct {
	Verdict    string    `json:"verdict"`
	Notes      string    `json:"notes"`
	Reviewer   string    `json:"reviewer"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// RiskLevel enum values for rule flags
const (
	RiskLevelLow      = "low"
	RiskLevelMedium   = "medium"
	RiskLevelHigh     = "high"
	RiskLevelCritical = "critical"
)

// FlagStatus enum values
const (
	FlagStatusPending       = "pending"
	FlagStatusInvestigating = "investigating"
	FlagStatusCleared       = "cleared"
	FlagStatusEscalated     = "escalated"
	FlagStatusReviewed      = "reviewed"
)

// Enrichment outcomes stored with an assessment
const (
	EnrichmentCompleted = "completed"
	EnrichmentFallback  = "fallback"
)

// FlagFilter narrows flag listings
type FlagFilter struct {
	RiskLevel string
	RuleName  string
	Status    string
	Limit     int
	Offset    int
}

// TransactionFilter narrows transaction listings and counts. Zero fields match everything.
type TransactionFilter struct {
	TransactionType string
	MinAmount       *decimal.Decimal
	MaxAmount       *decimal.Decimal
	Since           time.Time
	Limit           int
	Offset          int
}

// CustomerFilter narrows customer listings and counts
type CustomerFilter struct {
	MinRiskScore int
	CountryCode  string
	Limit        int
	Offset       int
}

// AuditLogEntry records one call to the reasoning service
type AuditLogEntry struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	FlagID        *uuid.UUID `json:"flag_id,omitempty"`
	Prompt        string     `json:"prompt"`
	Model         string     `json:"model"`
	Temperature   float64    `json:"temperature"`
	MaxTokens     int        `json:"max_tokens"`
	Response      *string    `json:"response,omitempty"`
	TokensUsed    *int       `json:"tokens_used,omitempty"`
	LatencyMs     int64      `json:"latency_ms"`
	Status        string     `json:"status"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CostEstimate  *float64   `json:"cost_estimate,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AuditStatus enum values
const (
	AuditStatusSuccess = "success"
	AuditStatusError   = "error"
	AuditStatusTimeout = "timeout"
)

// AuditQuery filters audit log listings
type AuditQuery struct {
	TransactionID *uuid.UUID
	Status        string
	Limit         int
	Offset        int
}

// AuditStats aggregates audit entries matching a query
type AuditStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	SuccessRate float64 `json:"success_rate"`
	TotalCost   float64 `json:"total_cost"`
}

// RuleCount represents a rule and its trigger count
type RuleCount struct {
	RuleName string `json:"rule_name"`
	Count    int    `json:"count"`
}

// DailyCount is the number of flags raised on one day
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// FlagCounts are the headline numbers for the summary
type FlagCounts struct {
	Total    int
	Analyzed int
	Fallback int
}

// Summary is the dashboard view of flags and enrichment coverage
type Summary struct {
	ByRiskLevel           map[string]int `json:"by_risk_level"`
	ByEnrichmentLevel     map[string]int `json:"by_enrichment_level"`
	ByStatus              map[string]int `json:"by_status"`
	TotalFlagged          int            `json:"total_flagged"`
	Analyzed              int            `json:"analyzed"`
	FallbackCount         int            `json:"fallback_count"`
	CoveragePct           float64        `json:"coverage_pct"`
	TopRules              []RuleCount    `json:"top_rules"`
	RecentActivity        []DailyCount   `json:"recent_activity"`
	EnrichmentRequests    int            `json:"enrichment_requests"`
	EnrichmentSuccessRate float64        `json:"enrichment_success_rate"`
	EnrichmentTotalCost   float64        `json:"enrichment_total_cost"`
	TotalCustomers        int            `json:"total_customers"`
	TotalTransactions     int            `json:"total_transactions"`
	TransactionsLast7Days int            `json:"transactions_last_7_days"`
	FlagRate              float64        `json:"flag_rate"`
	GeneratedAt           time.Time      `json:"generated_at"`
}

// FlagEvent is published whenever a flag is created or enriched
type FlagEvent struct {
	Type          string    `json:"type"`
	FlagID        string    `json:"flag_id"`
	TransactionID string    `json:"transaction_id"`
	RuleName      string    `json:"rule_name"`
	RiskLevel     string    `json:"risk_level"`
	Outcome       string    `json:"outcome,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// FlagEvent types
const (
	FlagEventCreated  = "flag.created"
	FlagEventEnriched = "flag.enriched"
)
