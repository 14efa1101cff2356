package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/repositories"
)

// Rule names
const (
	RuleLargeCashWithdrawal  = "LARGE_CASH_WITHDRAWAL"
	RuleMultipleHighValue    = "MULTIPLE_HIGH_VALUE_SAME_DAY"
	RuleSanctionedCountry    = "SANCTIONED_COUNTRY_TRANSFER"
	RuleSanctionedEntity     = "OFAC_SANCTIONED_ENTITY"
	RuleStructuring          = "STRUCTURING_PATTERN"
	RuleRoundNumber          = "ROUND_NUMBER_PATTERN"
	RuleHighVelocity         = "HIGH_VELOCITY"
	RuleHighRiskCustomer     = "HIGH_RISK_CUSTOMER"
	RuleUnusualTime          = "UNUSUAL_TIME_PATTERN"
	RuleCrossBorderThreshold = "CROSS_BORDER_THRESHOLD"
)

var sanctionedCountries = map[string]bool{
	"AF": true, "IR": true, "KP": true, "SY": true,
	"MM": true, "BY": true, "RU": true,
}

var (
	largeCashThreshold    = decimal.NewFromInt(10000)
	highValueThreshold    = decimal.NewFromInt(5000)
	structuringFloor      = decimal.NewFromInt(9000)
	structuringHistoryCap = decimal.NewFromInt(9999)
	roundNumberUnit       = decimal.NewFromInt(1000)
	unusualTimeThreshold  = decimal.NewFromInt(1000)
	crossBorderThreshold  = decimal.NewFromInt(3000)
)

const (
	sameDayMinOthers  = 2
	velocityMinOthers = 5
	highRiskScore     = 4
	unusualHourStart  = 2
	unusualHourEnd    = 5
)

// HistoryContext answers the read-only lookups rules need about other records
type HistoryContext interface {
	CountSenderTransactions(ctx context.Context, q models.HistoryQuery) (int, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindSanctionedEntity(ctx context.Context, counterpartyName string) (*models.SanctionedEntity, error)
}

// DetectFunc inspects a transaction and reports whether the rule fired,
// along with the human-readable detail recorded on the flag.
type DetectFunc func(ctx context.Context, tx *models.Transaction, h HistoryContext) (string, bool, error)

// Rule represents a screening rule
type Rule struct {
	Name        string
	Description string
	Category    string
	RiskLevel   string
	RiskScore   int
	Detect      DetectFunc
}

// Finding is a fired rule, ready to be recorded as a flag
type Finding struct {
	RuleName    string `json:"rule_name"`
	Description string `json:"description"`
	RiskLevel   string `json:"risk_level"`
	RiskScore   int    `json:"risk_score"`
}

// RuleInfo describes a rule for catalog listings
type RuleInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	RiskLevel   string `json:"risk_level"`
	RiskScore   int    `json:"risk_score"`
}

// Evaluate runs the rule. Lookup failures are logged and treated as not fired.
func (r Rule) Evaluate(ctx context.Context, tx *models.Transaction, h HistoryContext) (*Finding, bool) {
	detail, fired, err := r.Detect(ctx, tx, h)
	if err != nil {
		log.Warn().
			Err(err).
			Str("rule", r.Name).
			Str("transaction_id", tx.ID.String()).
			Msg("Rule lookup failed, treating as not fired")
		return nil, false
	}
	if !fired {
		return nil, false
	}

	return &Finding{
		RuleName:    r.Name,
		Description: detail,
		RiskLevel:   r.RiskLevel,
		RiskScore:   r.RiskScore,
	}, true
}

// Info returns the catalog entry for the rule
func (r Rule) Info() RuleInfo {
	return RuleInfo{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		RiskLevel:   r.RiskLevel,
		RiskScore:   r.RiskScore,
	}
}

// DefaultRules returns the built-in AML rule catalog
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        RuleLargeCashWithdrawal,
			Description: "Cash withdrawal above $10,000",
			Category:    "cash",
			RiskLevel:   models.RiskLevelHigh,
			RiskScore:   85,
			Detect:      detectLargeCashWithdrawal,
		},
		{
			Name:        RuleMultipleHighValue,
			Description: "Three or more transactions of $5,000+ by the same sender on one day",
			Category:    "pattern",
			RiskLevel:   models.RiskLevelMedium,
			RiskScore:   70,
			Detect:      detectMultipleHighValue,
		},
		{
			Name:        RuleSanctionedCountry,
			Description: "Transfer or payment to a sanctioned jurisdiction",
			Category:    "sanctions",
			RiskLevel:   models.RiskLevelCritical,
			RiskScore:   95,
			Detect:      detectSanctionedCountry,
		},
		{
			Name:        RuleSanctionedEntity,
			Description: "Counterparty matches a sanctioned entity",
			Category:    "sanctions",
			RiskLevel:   models.RiskLevelCritical,
			RiskScore:   100,
			Detect:      detectSanctionedEntity,
		},
		{
			Name:        RuleStructuring,
			Description: "Amounts just under the $10,000 reporting threshold repeated within a week",
			Category:    "structuring",
			RiskLevel:   models.RiskLevelHigh,
			RiskScore:   80,
			Detect:      detectStructuring,
		},
		{
			Name:        RuleRoundNumber,
			Description: "Large transaction in an exact multiple of $1,000",
			Category:    "pattern",
			RiskLevel:   models.RiskLevelLow,
			RiskScore:   40,
			Detect:      detectRoundNumber,
		},
		{
			Name:        RuleHighVelocity,
			Description: "Six or more transactions by the same sender within one hour",
			Category:    "velocity",
			RiskLevel:   models.RiskLevelMedium,
			RiskScore:   65,
			Detect:      detectHighVelocity,
		},
		{
			Name:        RuleHighRiskCustomer,
			Description: "Large transaction by a customer with risk score 4 or higher",
			Category:    "customer",
			RiskLevel:   models.RiskLevelMedium,
			RiskScore:   60,
			Detect:      detectHighRiskCustomer,
		},
		{
			Name:        RuleUnusualTime,
			Description: "Transaction of $1,000+ between 02:00 and 05:59",
			Category:    "temporal",
			RiskLevel:   models.RiskLevelLow,
			RiskScore:   45,
			Detect:      detectUnusualTime,
		},
		{
			Name:        RuleCrossBorderThreshold,
			Description: "Cross-border transaction of $3,000 or more",
			Category:    "geography",
			RiskLevel:   models.RiskLevelMedium,
			RiskScore:   55,
			Detect:      detectCrossBorder,
		},
	}
}

func detectLargeCashWithdrawal(_ context.Context, tx *models.Transaction, _ HistoryContext) (string, bool, error) {
	if tx.TransactionType != models.TransactionTypeWithdrawal || !tx.Amount.GreaterThan(largeCashThreshold) {
		return "", false, nil
	}
	return fmt.Sprintf("Large cash withdrawal of %s", formatUSD(tx.Amount)), true, nil
}

func detectMultipleHighValue(ctx context.Context, tx *models.Transaction, h HistoryContext) (string, bool, error) {
	if tx.Amount.LessThan(highValueThreshold) {
		return "", false, nil
	}

	// Calendar days are UTC so replicas in different zones agree
	t := tx.TransactionDate.UTC()
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	count, err := h.CountSenderTransactions(ctx, models.HistoryQuery{
		SenderID:  tx.SenderID,
		ExcludeID: tx.ID,
		From:      dayStart,
		To:        dayStart.AddDate(0, 0, 1),
		MinAmount: &highValueThreshold,
	})
	if err != nil {
		return "", false, err
	}
	if count < sameDayMinOthers {
		return "", false, nil
	}
	return fmt.Sprintf("Multiple high-value transactions on same day (total: %d)", count+1), true, nil
}

func detectSanctionedCountry(_ context.Context, tx *models.Transaction, _ HistoryContext) (string, bool, error) {
	if tx.TransactionType != models.TransactionTypeTransfer && tx.TransactionType != models.TransactionTypePayment {
		return "", false, nil
	}
	if !sanctionedCountries[tx.CounterpartyCountry] {
		return "", false, nil
	}
	return fmt.Sprintf("Transfer to sanctioned country: %s", tx.CounterpartyCountry), true, nil
}

func detectSanctionedEntity(ctx context.Context, tx *models.Transaction, h HistoryContext) (string, bool, error) {
	if tx.CounterpartyName == "" {
		return "", false, nil
	}
	entity, err := h.FindSanctionedEntity(ctx, tx.CounterpartyName)
	if err != nil {
		return "", false, err
	}
	if entity == nil {
		return "", false, nil
	}
	return fmt.Sprintf("Transaction with sanctioned entity: %s", entity.Name), true, nil
}

func detectStructuring(ctx context.Context, tx *models.Transaction, h HistoryContext) (string, bool, error) {
	if tx.TransactionType != models.TransactionTypeTransfer && tx.TransactionType != models.TransactionTypeWithdrawal {
		return "", false, nil
	}
	if tx.Amount.LessThan(structuringFloor) || !tx.Amount.LessThan(largeCashThreshold) {
		return "", false, nil
	}

	count, err := h.CountSenderTransactions(ctx, models.HistoryQuery{
		SenderID:    tx.SenderID,
		ExcludeID:   tx.ID,
		From:        tx.TransactionDate.AddDate(0, 0, -7),
		To:          tx.TransactionDate,
		InclusiveTo: true,
		MinAmount:   &structuringFloor,
		MaxAmount:   &structuringHistoryCap,
	})
	if err != nil {
		return "", false, err
	}
	if count < 1 {
		return "", false, nil
	}
	return fmt.Sprintf("Potential structuring: %s (similar amounts in past week)", formatUSD(tx.Amount)), true, nil
}

func detectRoundNumber(_ context.Context, tx *models.Transaction, _ HistoryContext) (string, bool, error) {
	if tx.Amount.LessThan(largeCashThreshold) || !tx.Amount.Mod(roundNumberUnit).IsZero() {
		return "", false, nil
	}
	return fmt.Sprintf("Large round number transaction: %s", formatUSD(tx.Amount)), true, nil
}

func detectHighVelocity(ctx context.Context, tx *models.Transaction, h HistoryContext) (string, bool, error) {
	count, err := h.CountSenderTransactions(ctx, models.HistoryQuery{
		SenderID:    tx.SenderID,
		ExcludeID:   tx.ID,
		From:        tx.TransactionDate.Add(-time.Hour),
		To:          tx.TransactionDate,
		InclusiveTo: true,
	})
	if err != nil {
		return "", false, err
	}
	if count < velocityMinOthers {
		return "", false, nil
	}
	return fmt.Sprintf("High transaction velocity: %d transactions in 1 hour", count+1), true, nil
}

func detectHighRiskCustomer(ctx context.Context, tx *models.Transaction, h HistoryContext) (string, bool, error) {
	if tx.Amount.LessThan(highValueThreshold) {
		return "", false, nil
	}
	customer, err := lookupSender(ctx, tx, h)
	if err != nil || customer == nil {
		return "", false, err
	}
	if customer.RiskScore < highRiskScore {
		return "", false, nil
	}
	return fmt.Sprintf("High-risk customer (score: %d) large transaction", customer.RiskScore), true, nil
}

func detectUnusualTime(_ context.Context, tx *models.Transaction, _ HistoryContext) (string, bool, error) {
	at := tx.TransactionDate.UTC()
	hour := at.Hour()
	if hour < unusualHourStart || hour > unusualHourEnd || tx.Amount.LessThan(unusualTimeThreshold) {
		return "", false, nil
	}
	return fmt.Sprintf("Transaction at unusual time: %s", at.Format("15:04")), true, nil
}

func detectCrossBorder(ctx context.Context, tx *models.Transaction, h HistoryContext) (string, bool, error) {
	if tx.CounterpartyCountry == "" || tx.Amount.LessThan(crossBorderThreshold) {
		return "", false, nil
	}
	customer, err := lookupSender(ctx, tx, h)
	if err != nil || customer == nil {
		return "", false, err
	}
	if customer.CountryCode == "" || customer.CountryCode == tx.CounterpartyCountry {
		return "", false, nil
	}
	return fmt.Sprintf("Cross-border transaction: %s to %s", formatUSD(tx.Amount), tx.CounterpartyCountry), true, nil
}

// lookupSender returns nil without error when the sender record is missing
func lookupSender(ctx context.Context, tx *models.Transaction, h HistoryContext) (*models.Customer, error) {
	customer, err := h.GetCustomer(ctx, tx.SenderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return customer, nil
}

var usdPrinter = message.NewPrinter(language.English)

func formatUSD(amount decimal.Decimal) string {
	return usdPrinter.Sprintf("$%.2f", amount.Round(2).InexactFloat64())
}
